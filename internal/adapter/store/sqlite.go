package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"maestro-ai/internal/domain"
)

// SQLiteStore implements domain.MessageStore backed by SQLite.
//
// Saving a message whose ID already exists replaces the row and bumps its
// version; created_at is preserved so ordering stays stable across edits.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	dbPath string
}

// New opens (or creates) a SQLite database at dbPath, runs migrations, and
// returns a ready store.
func New(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrMessageStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	// Pragmas for performance.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrMessageStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrMessageStore, err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
		dbPath: dbPath,
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const upsertMessage = `
	INSERT INTO messages (id, session_id, agent_id, agent_name, role, content,
		mime_type, model, metadata, created_at, updated_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	ON CONFLICT(id) DO UPDATE SET
		session_id = excluded.session_id,
		agent_id   = excluded.agent_id,
		agent_name = excluded.agent_name,
		role       = excluded.role,
		content    = excluded.content,
		mime_type  = excluded.mime_type,
		model      = excluded.model,
		metadata   = excluded.metadata,
		updated_at = excluded.updated_at,
		version    = messages.version + 1
`

// Save implements domain.MessageStore.
func (s *SQLiteStore) Save(ctx context.Context, msg domain.Message) error {
	prepared, err := s.prepareMessage(&msg)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, upsertMessage, prepared...)
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrMessageStore, err)
	}
	return nil
}

// SaveMany implements domain.MessageStore. All messages are written in a
// single transaction: either every message persists or none do.
func (s *SQLiteStore) SaveMany(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrMessageStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, upsertMessage)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", domain.ErrMessageStore, err)
	}
	defer stmt.Close()

	for i := range msgs {
		prepared, err := s.prepareMessage(&msgs[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, prepared...); err != nil {
			return fmt.Errorf("%w: upsert message %q: %v", domain.ErrMessageStore, msgs[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrMessageStore, err)
	}
	return nil
}

// timeLayout is a fixed-width RFC 3339 encoding. Fractional seconds are
// always nine digits and the zone is always Z, so the TEXT column's byte
// order equals chronological order and ORDER BY created_at stays correct.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// prepareMessage validates msg, fills timestamps, and returns the
// upsert arguments in column order. Times are normalized to UTC so no
// offset suffix ever enters the column.
func (s *SQLiteStore) prepareMessage(msg *domain.Message) ([]any, error) {
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	} else {
		msg.CreatedAt = msg.CreatedAt.UTC()
	}
	msg.UpdatedAt = now

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal metadata: %v", domain.ErrMessageStore, err)
	}

	return []any{
		msg.ID,
		msg.SessionID,
		msg.AgentID,
		msg.AgentName,
		msg.Role,
		msg.Content,
		msg.MimeType,
		msg.Model,
		string(meta),
		msg.CreatedAt.Format(timeLayout),
		msg.UpdatedAt.Format(timeLayout),
	}, nil
}

const selectColumns = `id, session_id, agent_id, agent_name, role, content,
	mime_type, model, metadata, created_at, updated_at, version`

// GetByID implements domain.MessageStore.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Message, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM messages WHERE id = ?", id)

	msg, err := s.scanMessage(row)
	if err == sql.ErrNoRows {
		return domain.Message{}, domain.NewDomainError("SQLiteStore.GetByID", domain.ErrNotFound, id)
	}
	return msg, err
}

// GetBySession implements domain.MessageStore.
func (s *SQLiteStore) GetBySession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return s.query(ctx,
		"SELECT "+selectColumns+" FROM messages WHERE session_id = ? ORDER BY created_at ASC",
		sessionID)
}

// GetByAgent implements domain.MessageStore.
func (s *SQLiteStore) GetByAgent(ctx context.Context, agentID string) ([]domain.Message, error) {
	return s.query(ctx,
		"SELECT "+selectColumns+" FROM messages WHERE agent_id = ? ORDER BY created_at ASC",
		agentID)
}

// GetBySessionAndAgent implements domain.MessageStore.
func (s *SQLiteStore) GetBySessionAndAgent(ctx context.Context, sessionID, agentID string) ([]domain.Message, error) {
	return s.query(ctx,
		"SELECT "+selectColumns+" FROM messages WHERE session_id = ? AND agent_id = ? ORDER BY created_at ASC",
		sessionID, agentID)
}

// DeleteBySession implements domain.MessageStore.
func (s *SQLiteStore) DeleteBySession(ctx context.Context, sessionID string) error {
	return s.delete(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID)
}

// DeleteByAgent implements domain.MessageStore.
func (s *SQLiteStore) DeleteByAgent(ctx context.Context, agentID string) error {
	return s.delete(ctx, "DELETE FROM messages WHERE agent_id = ?", agentID)
}

// DeleteBySessionAndAgent implements domain.MessageStore.
func (s *SQLiteStore) DeleteBySessionAndAgent(ctx context.Context, sessionID, agentID string) error {
	return s.delete(ctx, "DELETE FROM messages WHERE session_id = ? AND agent_id = ?", sessionID, agentID)
}

// DeleteOlderThan removes all messages created before cutoff and returns the
// number of rows removed. Used by the retention sweeper.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE created_at < ?",
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("%w: delete older than: %v", domain.ErrMessageStore, err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// ListSessions returns the distinct session ids present in the store, most
// recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id FROM messages GROUP BY session_id ORDER BY MAX(created_at) DESC")
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", domain.ErrMessageStore, err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", domain.ErrMessageStore, err)
		}
		sessions = append(sessions, id)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrMessageStore, err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) delete(ctx context.Context, q string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("%w: delete: %v", domain.ErrMessageStore, err)
	}
	return nil
}

// scanMessage reads a single message row. Metadata/time parse errors are
// logged but not returned since they indicate data corruption, not a
// retrieval failure.
func (s *SQLiteStore) scanMessage(row interface{ Scan(dest ...any) error }) (domain.Message, error) {
	var (
		msg       domain.Message
		metaJSON  string
		createdAt string
		updatedAt string
	)

	err := row.Scan(
		&msg.ID, &msg.SessionID, &msg.AgentID, &msg.AgentName,
		&msg.Role, &msg.Content, &msg.MimeType, &msg.Model,
		&metaJSON, &createdAt, &updatedAt, &msg.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return msg, err
		}
		return msg, fmt.Errorf("%w: scan: %v", domain.ErrMessageStore, err)
	}

	if metaJSON != "" && metaJSON != "null" {
		if err := json.Unmarshal([]byte(metaJSON), &msg.Metadata); err != nil {
			s.logger.Warn("message store: bad metadata json", "id", msg.ID, "error", err)
		}
	}
	if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		s.logger.Warn("message store: bad created_at", "id", msg.ID, "error", err)
	}
	if msg.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		s.logger.Warn("message store: bad updated_at", "id", msg.ID, "error", err)
	}

	return msg, nil
}

var _ domain.MessageStore = (*SQLiteStore)(nil)
