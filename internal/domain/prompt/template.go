// Package prompt provides the immutable, versioned prompt template library
// used to build reasoning requests.
package prompt

import (
	"fmt"
	"strings"

	"github.com/crewforge/crewd/internal/domain"
)

// Template is a named, versioned prompt pair. Templates are immutable; the
// library is loaded once at startup and never mutated.
type Template struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	System  string `yaml:"system"`
	User    string `yaml:"user"`
}

// Render substitutes {{variable}} placeholders in the user template.
// An unresolved placeholder after substitution is a ConfigError: the
// template and the call site disagree about the variable set.
func (t *Template) Render(vars map[string]string) (string, error) {
	out := t.User
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{{"+name+"}}", value)
	}
	if i := strings.Index(out, "{{"); i >= 0 {
		end := strings.Index(out[i:], "}}")
		placeholder := out[i:]
		if end >= 0 {
			placeholder = out[i : i+end+2]
		}
		return "", &domain.ConfigError{
			Reason: fmt.Sprintf("template %s@%s: unresolved placeholder %s", t.Name, t.Version, placeholder),
		}
	}
	return out, nil
}

// Validate checks that the template is complete.
func (t *Template) Validate() error {
	if t.Name == "" || t.Version == "" {
		return &domain.ConfigError{Reason: "template name and version are required"}
	}
	if t.System == "" || t.User == "" {
		return &domain.ConfigError{Reason: "template " + t.Name + ": system and user prompts are required"}
	}
	if strings.Count(t.User, "{{") != strings.Count(t.User, "}}") {
		return &domain.ConfigError{Reason: "template " + t.Name + ": unbalanced placeholder braces"}
	}
	return nil
}
