package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Parser validates raw model decisions against the registry and the current
// element table, producing executable actions. Parsing is pure: it touches
// no browser state and is safe to call from anywhere.
type Parser struct {
	registry *Registry
}

func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse validates one raw decision. The reasoning text passes through
// verbatim; it is never trimmed or normalized. Element references are bound
// against the table captured in the same step, so a stale ID from an earlier
// page fails validation here instead of misfiring in the browser.
func (p *Parser) Parse(raw *schemas.RawDecision, table map[string]schemas.ElementDescriptor) (*schemas.Action, error) {
	if raw == nil {
		return nil, &ValidationError{Message: "empty decision"}
	}

	kind := normalizeKind(raw.Kind)
	spec := p.registry.Get(kind)
	if spec == nil {
		return nil, &ValidationError{
			Field:   "action",
			Message: fmt.Sprintf("unknown action kind %q", raw.Kind),
		}
	}

	action := &schemas.Action{
		Kind:         kind,
		Reasoning:    raw.Reasoning,
		ElementID:    strings.TrimSpace(raw.ElementID),
		Params:       raw.Params,
		Payload:      raw.Payload,
		OutputFormat: raw.OutputFormat,
		OutputTitle:  raw.OutputTitle,
	}

	if spec.RequiresElement && action.ElementID == "" {
		return nil, &ValidationError{
			Field:   "element",
			Message: fmt.Sprintf("action %q requires an element reference", kind),
		}
	}

	if action.ElementID != "" {
		desc, ok := table[action.ElementID]
		if !ok {
			return nil, &ValidationError{
				Field:   "element",
				Message: fmt.Sprintf("element %q is not on the current page (%d elements visible)", action.ElementID, len(table)),
			}
		}
		action.Element = &desc
	}

	return action, nil
}

// normalizeKind maps model spellings onto canonical kinds: case folded, with
// hyphens and spaces as underscore separators.
func normalizeKind(kind string) schemas.ActionKind {
	k := strings.ToLower(strings.TrimSpace(kind))
	k = strings.ReplaceAll(k, "-", "_")
	k = strings.ReplaceAll(k, " ", "_")
	return schemas.ActionKind(k)
}
