// Package template holds the fixed registry of message templates and
// renders them against a caller-supplied context.
package template

import (
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownTemplate is returned for names not present in the registry.
var ErrUnknownTemplate = fmt.Errorf("unknown template")

// UnknownPlaceholderError is returned when the context is missing a
// placeholder the template requires.
type UnknownPlaceholderError struct {
	Template    string
	Placeholder string
}

func (e *UnknownPlaceholderError) Error() string {
	return fmt.Sprintf("template %q: missing placeholder %q", e.Template, e.Placeholder)
}

// Info describes one registry entry for discovery.
type Info struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	RequiredPlaceholders []string `json:"required_placeholders"`
}

type entry struct {
	body         string
	description  string
	placeholders []string
}

// The registry is static: templates are fixed at compile time and
// read-only at runtime. Placeholders use {name} syntax.
var registry = map[string]entry{
	"greeting": {
		description:  "Friendly greeting message",
		placeholders: []string{"contact_name", "custom_message", "user_name"},
		body: `Hi {contact_name},

I hope this message finds you well!

{custom_message}

Best regards,
{user_name}`,
	},
	"followup": {
		description:  "Follow-up on previous conversation",
		placeholders: []string{"contact_name", "custom_message", "user_name"},
		body: `Hi {contact_name},

I wanted to follow up on our previous conversation.

{custom_message}

Looking forward to hearing from you.

Best regards,
{user_name}`,
	},
	"quick_note": {
		description:  "Short note or reminder",
		placeholders: []string{"contact_name", "custom_message", "user_name"},
		body: `Hi {contact_name},

{custom_message}

Thanks,
{user_name}`,
	},
}

// Render substitutes every occurrence of each required placeholder with
// the corresponding context value. A missing required placeholder is an
// error, not a blank substitution.
func Render(name string, ctx map[string]string) (string, error) {
	e, ok := registry[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	out := e.body
	for _, p := range e.placeholders {
		val, ok := ctx[p]
		if !ok {
			return "", &UnknownPlaceholderError{Template: name, Placeholder: p}
		}
		out = strings.ReplaceAll(out, "{"+p+"}", val)
	}
	return out, nil
}

// List returns the registry entries sorted by name.
func List() []Info {
	out := make([]Info, 0, len(registry))
	for name, e := range registry {
		placeholders := make([]string, len(e.placeholders))
		copy(placeholders, e.placeholders)
		out = append(out, Info{
			Name:                 name,
			Description:          e.description,
			RequiredPlaceholders: placeholders,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
