package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"maestro-ai/internal/domain"
)

func msg(id, role, content string) domain.Message {
	return domain.Message{
		ID:        id,
		SessionID: "s1",
		AgentID:   "a1",
		Role:      role,
		Content:   content,
		MimeType:  domain.MimeMarkdown,
	}
}

func TestHistoryProjectionsStayInLockstep(t *testing.T) {
	h := NewHistory()

	h.Append(msg("m1", domain.RoleUser, "hello"))
	h.AppendRange([]domain.Message{
		msg("m2", domain.RoleAssistant, "hi"),
		msg("m3", domain.RoleUser, "bye"),
	})

	turns := h.Turns()
	msgs := h.Messages()
	if len(turns) != 3 || len(msgs) != 3 {
		t.Fatalf("lens = %d/%d, want 3/3", len(turns), len(msgs))
	}
	for i := range msgs {
		if turns[i].Role != msgs[i].Role || turns[i].Content != msgs[i].Content {
			t.Errorf("index %d: projections diverged: %+v vs %+v", i, turns[i], msgs[i])
		}
	}

	h.Remove("m2")
	if h.Len() != 2 {
		t.Fatalf("Len = %d after Remove, want 2", h.Len())
	}
	turns = h.Turns()
	if turns[0].Content != "hello" || turns[1].Content != "bye" {
		t.Errorf("Remove broke order: %v", turns)
	}

	// Removing an absent id is a silent no-op.
	h.Remove("nope")
	if h.Len() != 2 {
		t.Errorf("Len = %d after no-op Remove, want 2", h.Len())
	}

	h.Clear()
	if h.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", h.Len())
	}
}

func TestHistoryReplaceWithDedupsFirstSeen(t *testing.T) {
	h := NewHistory()
	h.Append(msg("old", domain.RoleUser, "stale"))

	h.ReplaceWith([]domain.Message{
		msg("m1", domain.RoleUser, "first"),
		msg("m1", domain.RoleUser, "duplicate"),
		msg("m2", domain.RoleAssistant, "second"),
	})

	msgs := h.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "first" {
		t.Errorf("first-seen did not win: %q", msgs[0].Content)
	}
	if msgs[1].ID != "m2" {
		t.Errorf("order lost: %v", msgs)
	}
}

func TestHistoryMergeIdempotent(t *testing.T) {
	h := NewHistory()
	h.Append(msg("m1", domain.RoleUser, "hello"))

	batch := []domain.Message{
		msg("m1", domain.RoleUser, "hello"),
		msg("m2", domain.RoleAssistant, "hi"),
	}

	h.Merge(batch)
	if h.Len() != 2 {
		t.Fatalf("Len = %d after first merge, want 2", h.Len())
	}

	h.Merge(batch)
	h.Merge(batch)
	if h.Len() != 2 {
		t.Errorf("Len = %d after repeated merges, want 2", h.Len())
	}
}

// mockStore is an in-memory MessageStore for usecase tests.
type mockStore struct {
	msgs      []domain.Message
	saveErr   error
	saveCalls int
}

func (m *mockStore) Save(ctx context.Context, msg domain.Message) error {
	return m.SaveMany(ctx, []domain.Message{msg})
}

func (m *mockStore) SaveMany(ctx context.Context, msgs []domain.Message) error {
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockStore) GetByID(ctx context.Context, id string) (domain.Message, error) {
	for _, msg := range m.msgs {
		if msg.ID == id {
			return msg, nil
		}
	}
	return domain.Message{}, domain.ErrNotFound
}

func (m *mockStore) GetBySession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var out []domain.Message
	for _, msg := range m.msgs {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockStore) GetByAgent(ctx context.Context, agentID string) ([]domain.Message, error) {
	var out []domain.Message
	for _, msg := range m.msgs {
		if msg.AgentID == agentID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockStore) GetBySessionAndAgent(ctx context.Context, sessionID, agentID string) ([]domain.Message, error) {
	var out []domain.Message
	for _, msg := range m.msgs {
		if msg.SessionID == sessionID && msg.AgentID == agentID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteBySession(ctx context.Context, sessionID string) error {
	kept := m.msgs[:0]
	for _, msg := range m.msgs {
		if msg.SessionID != sessionID {
			kept = append(kept, msg)
		}
	}
	m.msgs = kept
	return nil
}

func (m *mockStore) DeleteByAgent(ctx context.Context, agentID string) error {
	kept := m.msgs[:0]
	for _, msg := range m.msgs {
		if msg.AgentID != agentID {
			kept = append(kept, msg)
		}
	}
	m.msgs = kept
	return nil
}

func (m *mockStore) DeleteBySessionAndAgent(ctx context.Context, sessionID, agentID string) error {
	kept := m.msgs[:0]
	for _, msg := range m.msgs {
		if msg.SessionID != sessionID || msg.AgentID != agentID {
			kept = append(kept, msg)
		}
	}
	m.msgs = kept
	return nil
}

func TestHistoryRestoreSkipsBadRoles(t *testing.T) {
	store := &mockStore{msgs: []domain.Message{
		{ID: "m1", SessionID: "s1", AgentID: "a1", Role: "user", Content: "ok"},
		{ID: "m2", SessionID: "s1", AgentID: "a1", Role: "gremlin", Content: "bad"},
		{ID: "m3", SessionID: "s1", AgentID: "a1", Role: "ASSISTANT", Content: "case-folded"},
		{ID: "m4", SessionID: "s1", AgentID: "other", Role: "user", Content: "not ours"},
	}}

	h := NewHistory()
	err := h.Restore(context.Background(), store, "s1", "a1", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	msgs := h.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2 (bad role skipped, other agent excluded)", len(msgs))
	}
	if msgs[1].Role != domain.RoleAssistant {
		t.Errorf("role not canonicalized: %q", msgs[1].Role)
	}
}

func TestHistoryTranscript(t *testing.T) {
	h := NewHistory()
	h.AppendRange([]domain.Message{
		{ID: "m0", Role: domain.RoleSystem, Content: "you are a planner"},
		{ID: "m1", Role: domain.RoleUser, AgentName: "Router", Content: "plan a trip"},
		{ID: "m2", Role: domain.RoleAssistant, AgentName: "Planner", Content: "Day 1: fly out."},
	})

	got := h.Transcript()
	if strings.Contains(got, "you are a planner") {
		t.Error("system turn leaked into transcript")
	}
	if !strings.Contains(got, "### Router") || !strings.Contains(got, "### Planner") {
		t.Errorf("missing speaker headings:\n%s", got)
	}
	if !strings.Contains(got, "\n---\n") {
		t.Errorf("missing separator:\n%s", got)
	}
}

func TestHistoryConcurrentAppend(t *testing.T) {
	h := NewHistory()
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				h.Append(msg(fmt.Sprintf("g%d-m%d", g, i), domain.RoleUser, "x"))
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for writers")
		}
	}
	if h.Len() != 200 {
		t.Errorf("Len = %d, want 200", h.Len())
	}
	if len(h.Turns()) != len(h.Messages()) {
		t.Error("projections diverged under concurrency")
	}
}
