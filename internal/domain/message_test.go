package domain

import (
	"errors"
	"testing"
	"time"
)

func validMessage() Message {
	return Message{
		ID:        "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		SessionID: "sess-1",
		AgentID:   "planner",
		AgentName: "Planner",
		Role:      RoleAssistant,
		Content:   "hello",
		MimeType:  MimeMarkdown,
		CreatedAt: time.Now(),
	}
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"system", RoleSystem, true},
		{"User", RoleUser, true},
		{" ASSISTANT ", RoleAssistant, true},
		{"human", RoleHuman, true},
		{"tool", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, err := ParseRole(c.in)
		if c.ok && err != nil {
			t.Errorf("ParseRole(%q): unexpected error %v", c.in, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseRole(%q): want error", c.in)
		}
		if got != c.want {
			t.Errorf("ParseRole(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMessageValidate(t *testing.T) {
	m := validMessage()
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	noID := validMessage()
	noID.ID = ""
	if err := noID.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty id: got %v, want ErrInvalidInput", err)
	}

	noSession := validMessage()
	noSession.SessionID = "  "
	if err := noSession.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank session: got %v, want ErrInvalidInput", err)
	}

	noAgent := validMessage()
	noAgent.AgentID = ""
	if err := noAgent.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty agent: got %v, want ErrInvalidInput", err)
	}

	badRole := validMessage()
	badRole.Role = "narrator"
	if err := badRole.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad role: got %v, want ErrInvalidInput", err)
	}
}

func TestMessageTurnProjection(t *testing.T) {
	m := validMessage()
	turn := m.Turn()
	if turn.Role != m.Role || turn.Content != m.Content {
		t.Errorf("Turn() = %+v, want role=%q content=%q", turn, m.Role, m.Content)
	}
}
