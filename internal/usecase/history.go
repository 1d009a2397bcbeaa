package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"maestro-ai/internal/domain"
)

// History holds one agent's view of a conversation in two lockstep
// projections: the turns sent to a completion provider and the full
// persisted messages. Both always have the same length and order.
type History struct {
	mu    sync.Mutex
	turns []domain.Turn
	msgs  []domain.Message
	seen  map[string]bool // message IDs already present
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{seen: make(map[string]bool)}
}

// Append adds one message to both projections.
func (h *History) Append(msg domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.append(msg)
}

// AppendRange adds messages in order.
func (h *History) AppendRange(msgs []domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range msgs {
		h.append(m)
	}
}

// append assumes h.mu is held.
func (h *History) append(msg domain.Message) {
	h.turns = append(h.turns, msg.Turn())
	h.msgs = append(h.msgs, msg)
	if msg.ID != "" {
		h.seen[msg.ID] = true
	}
}

// Clear empties both projections.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
	h.msgs = nil
	h.seen = make(map[string]bool)
}

// Remove deletes the message with the given id from both projections.
// A missing id is a silent no-op.
func (h *History) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if id == "" || !h.seen[id] {
		return
	}
	for i, m := range h.msgs {
		if m.ID == id {
			h.msgs = append(h.msgs[:i], h.msgs[i+1:]...)
			h.turns = append(h.turns[:i], h.turns[i+1:]...)
			break
		}
	}
	delete(h.seen, id)
}

// Len returns the number of messages held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// Turns returns a copy of the completion-call projection.
func (h *History) Turns() []domain.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Messages returns a copy of the persisted-entity projection.
func (h *History) Messages() []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// ReplaceWith swaps the history content for msgs, deduplicated by message ID
// with the first occurrence winning. Messages without an ID are kept as-is.
func (h *History) ReplaceWith(msgs []domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = nil
	h.msgs = nil
	h.seen = make(map[string]bool)
	for _, m := range msgs {
		if m.ID != "" && h.seen[m.ID] {
			continue
		}
		h.append(m)
	}
}

// Merge appends the messages whose IDs are not yet present, preserving their
// relative order. Merging the same batch twice is a no-op.
func (h *History) Merge(msgs []domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range msgs {
		if m.ID != "" && h.seen[m.ID] {
			continue
		}
		h.append(m)
	}
}

// Restore loads an agent's persisted conversation from the store into the
// history, replacing current content. Rows with an unparseable role are
// logged and skipped rather than failing the whole restore.
func (h *History) Restore(ctx context.Context, store domain.MessageStore, sessionID, agentID string, logger *slog.Logger) error {
	msgs, err := store.GetBySessionAndAgent(ctx, sessionID, agentID)
	if err != nil {
		return domain.NewDomainError("History.Restore", err, "session "+sessionID)
	}

	kept := msgs[:0]
	for _, m := range msgs {
		role, err := domain.ParseRole(m.Role)
		if err != nil {
			logger.Warn("skipping message with bad role",
				"id", m.ID, "role", m.Role, "session", sessionID)
			continue
		}
		m.Role = role
		kept = append(kept, m)
	}

	h.ReplaceWith(kept)
	return nil
}

// Transcript renders the history as markdown: one heading per speaker change
// with the agent display name (falling back to the role), entries separated
// by horizontal rules. System turns are omitted.
func (h *History) Transcript() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	first := true
	for _, m := range h.msgs {
		if m.Role == domain.RoleSystem {
			continue
		}
		if !first {
			b.WriteString("\n---\n\n")
		}
		first = false

		name := m.AgentName
		if name == "" {
			name = m.Role
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n", name, m.Content)
	}
	return b.String()
}
