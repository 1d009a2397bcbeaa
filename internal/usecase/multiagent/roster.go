package multiagent

import (
	"strings"

	"maestro-ai/internal/domain"
	"maestro-ai/internal/usecase"
)

// Roster is the fixed set of agents a router can dispatch to. Names are
// unique case-insensitively and membership never changes after
// initialization; routing decisions must resolve against a stable world.
type Roster struct {
	agents []usecase.Agent
	byName map[string]usecase.Agent // lowercase name -> agent
}

// NewRoster builds a roster from agents. Duplicate names (any case) are
// rejected.
func NewRoster(agents []usecase.Agent) (*Roster, error) {
	r := &Roster{
		agents: make([]usecase.Agent, 0, len(agents)),
		byName: make(map[string]usecase.Agent, len(agents)),
	}
	for _, a := range agents {
		key := strings.ToLower(strings.TrimSpace(a.Name()))
		if key == "" {
			return nil, domain.NewDomainError("NewRoster", domain.ErrInvalidInput, "agent with empty name")
		}
		if _, exists := r.byName[key]; exists {
			return nil, domain.NewDomainError("NewRoster", domain.ErrDuplicate, a.Name())
		}
		r.byName[key] = a
		r.agents = append(r.agents, a)
	}
	return r, nil
}

// Lookup resolves an agent by name, case-insensitively.
func (r *Roster) Lookup(name string) (usecase.Agent, error) {
	a, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.NewDomainError("Roster.Lookup", domain.ErrUnknownAgent, name)
	}
	return a, nil
}

// Agents returns the roster members in registration order.
func (r *Roster) Agents() []usecase.Agent {
	out := make([]usecase.Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// Card renders the name+description list the router's system prompt is
// derived from.
func (r *Roster) Card() string {
	var b strings.Builder
	for _, a := range r.agents {
		b.WriteString("- ")
		b.WriteString(a.Name())
		if d := a.Description(); d != "" {
			b.WriteString(": ")
			b.WriteString(d)
		}
		b.WriteString("\n")
	}
	return b.String()
}
