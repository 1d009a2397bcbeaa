package multiagent

import (
	"errors"
	"strings"
	"testing"

	"maestro-ai/internal/domain"
	"maestro-ai/internal/usecase"
)

func TestNewRosterRejectsDuplicates(t *testing.T) {
	_, err := NewRoster([]usecase.Agent{
		newFakeAgent("Planner", "plans"),
		newFakeAgent("planner", "also plans"),
	})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("error = %v, want ErrDuplicate", err)
	}
}

func TestNewRosterRejectsEmptyName(t *testing.T) {
	_, err := NewRoster([]usecase.Agent{newFakeAgent("  ", "anonymous")})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestRosterLookupCaseInsensitive(t *testing.T) {
	roster, err := NewRoster([]usecase.Agent{
		newFakeAgent("Planner", "plans"),
		newFakeAgent("Writer", "writes"),
	})
	if err != nil {
		t.Fatalf("NewRoster: %v", err)
	}

	for _, name := range []string{"planner", "PLANNER", " Planner "} {
		a, err := roster.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if a.Name() != "Planner" {
			t.Errorf("Lookup(%q) = %q", name, a.Name())
		}
	}

	_, err = roster.Lookup("editor")
	if !errors.Is(err, domain.ErrUnknownAgent) {
		t.Errorf("error = %v, want ErrUnknownAgent", err)
	}
}

func TestRosterCard(t *testing.T) {
	roster, _ := NewRoster([]usecase.Agent{
		newFakeAgent("Planner", "plans trips"),
		newFakeAgent("Writer", ""),
	})

	card := roster.Card()
	if !strings.Contains(card, "- Planner: plans trips") {
		t.Errorf("card missing planner line:\n%s", card)
	}
	if !strings.Contains(card, "- Writer\n") {
		t.Errorf("card missing writer line:\n%s", card)
	}
}
