package usecase

import (
	"strings"
	"text/template"

	"maestro-ai/internal/domain"
)

// RenderPrompt interpolates {{.Var}} placeholders in a prompt template.
// Unknown placeholders and malformed templates are fatal: a prompt silently
// rendered with holes would send garbage to the model.
func RenderPrompt(tmpl string, vars map[string]any) (string, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", domain.NewDomainError("RenderPrompt", domain.ErrTemplate, err.Error())
	}

	var b strings.Builder
	if err := t.Execute(&b, vars); err != nil {
		return "", domain.NewDomainError("RenderPrompt", domain.ErrTemplate, err.Error())
	}
	return b.String(), nil
}
