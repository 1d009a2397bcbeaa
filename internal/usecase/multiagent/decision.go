package multiagent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"maestro-ai/internal/domain"
)

// maxRationaleLen bounds the routing rationale so a rambling model cannot
// bloat logs and persisted metadata.
const maxRationaleLen = 500

// Decision is the structured output of one routing call: who speaks next,
// why, how sure the model is, and whether the goal is already met.
type Decision struct {
	Next         string  `json:"next"`
	Rationale    string  `json:"rationale"`
	Confidence   float64 `json:"confidence"`
	GoalComplete bool    `json:"goal_complete"`
}

// DecisionSchema constrains the routing model's output. It is sent as the
// structured-output format on every routing call and re-validated locally.
const DecisionSchema = `{
	"type": "object",
	"properties": {
		"next": {
			"type": "string",
			"description": "Name of the agent to act next, or 'stop' to end"
		},
		"rationale": {
			"type": "string",
			"maxLength": 500,
			"description": "Short explanation of the choice"
		},
		"confidence": {
			"type": "number",
			"minimum": 0,
			"maximum": 1
		},
		"goal_complete": {
			"type": "boolean",
			"description": "True when the goal is fully achieved"
		}
	},
	"required": ["next", "rationale", "confidence", "goal_complete"],
	"additionalProperties": false
}`

var decisionSchema = mustCompileSchema(DecisionSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(raw))
	if err != nil {
		panic(fmt.Sprintf("decision schema does not compile: %v", err))
	}
	return schema
}

// ParseDecision extracts a Decision from a routing model's reply. The reply
// may be fenced in a markdown code block; anything that does not validate
// against the schema is a fatal routing failure, never silently patched.
func ParseDecision(raw string) (*Decision, error) {
	raw = stripCodeFences(raw)
	if raw == "" {
		return nil, domain.NewDomainError("ParseDecision", domain.ErrBadDecision, "empty output")
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, domain.NewDomainError("ParseDecision", domain.ErrBadDecision,
			fmt.Sprintf("invalid JSON: %v", err))
	}

	if result := decisionSchema.Validate(parsed); !result.IsValid() {
		return nil, domain.NewDomainError("ParseDecision", domain.ErrBadDecision,
			fmt.Sprintf("schema violation: %s", result.Error()))
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, domain.NewDomainError("ParseDecision", domain.ErrBadDecision, err.Error())
	}

	d.Next = strings.TrimSpace(d.Next)
	if d.Next == "" {
		return nil, domain.NewDomainError("ParseDecision", domain.ErrBadDecision, "empty next")
	}
	if runes := []rune(d.Rationale); len(runes) > maxRationaleLen {
		d.Rationale = string(runes[:maxRationaleLen])
	}
	return &d, nil
}

// IsStop reports whether the decision names a stop sentinel instead of an
// agent. Matching is case-insensitive.
func (d *Decision) IsStop() bool {
	switch strings.ToLower(d.Next) {
	case "stop", "exit":
		return true
	}
	return false
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}
