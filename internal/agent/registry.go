package agent

import (
	"github.com/xkilldash9x/webpilot/api/schemas"
)

// ActionSpec describes one action kind: its behavioral flags and a short
// usage line surfaced to the model in prompts.
type ActionSpec struct {
	Kind            schemas.ActionKind
	RequiresElement bool // The action must reference an element from the table.
	Terminal        bool // The action ends the session.
	CoordinateBased bool // The action addresses the page by viewport coordinates.
	Description     string
}

// Registry holds the table of known action kinds. Registration is explicit;
// nothing is discovered by scanning, so the set of actions an agent can take
// is always visible in one place.
type Registry struct {
	specs map[schemas.ActionKind]ActionSpec
	order []schemas.ActionKind
}

// NewRegistry returns a registry preloaded with the built-in action table.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[schemas.ActionKind]ActionSpec, len(builtinActions))}
	for _, spec := range builtinActions {
		r.Register(spec)
	}
	return r
}

// builtinActions is the explicit registration table for every action the
// agent understands.
var builtinActions = []ActionSpec{
	{Kind: schemas.ActionClick, RequiresElement: true, Description: "Click an element from the table."},
	{Kind: schemas.ActionInputText, RequiresElement: true, Description: "Clear a field and type new text. Params: text."},
	{Kind: schemas.ActionSelectOption, RequiresElement: true, Description: "Choose a dropdown option. Params: value."},
	{Kind: schemas.ActionHover, RequiresElement: true, Description: "Move the pointer over an element."},
	{Kind: schemas.ActionUploadFile, RequiresElement: true, Description: "Attach local files to a file input. Params: paths."},
	{Kind: schemas.ActionPointerClick, CoordinateBased: true, Description: "Click at viewport coordinates. Params: x, y (or an element reference)."},
	{Kind: schemas.ActionPointerMove, CoordinateBased: true, Description: "Move the pointer to viewport coordinates. Params: x, y (or an element reference)."},
	{Kind: schemas.ActionDrag, CoordinateBased: true, Description: "Drag between two points. Params: from_x, from_y, to_x, to_y (origin may be an element)."},
	{Kind: schemas.ActionKeyPress, Description: "Press a named key, optionally with modifiers. Params: key (e.g. Enter, ctrl+a)."},
	{Kind: schemas.ActionTypeText, Description: "Type into whatever element holds focus. Params: text."},
	{Kind: schemas.ActionScroll, Description: "Scroll the page. Params: direction (up, down, top, bottom), pixels."},
	{Kind: schemas.ActionNavigate, Description: "Load a URL. Params: url."},
	{Kind: schemas.ActionReload, Description: "Reload the current page."},
	{Kind: schemas.ActionHistoryBack, Description: "Go one entry back in tab history."},
	{Kind: schemas.ActionHistoryForward, Description: "Go one entry forward in tab history."},
	{Kind: schemas.ActionWait, Description: "Pause before the next observation. Params: seconds."},
	{Kind: schemas.ActionExtract, Description: "Record structured data read off the page. Put the data in payload."},
	{Kind: schemas.ActionComplete, Terminal: true, Description: "Declare the goal achieved. Optionally set output_format and output_title."},
	{Kind: schemas.ActionTerminate, Terminal: true, Description: "Abort: the goal cannot be achieved. Explain why in reasoning."},
}

// Register adds or replaces a spec. Registering an existing kind overwrites
// its spec while keeping its position in the listing order.
func (r *Registry) Register(spec ActionSpec) {
	if _, seen := r.specs[spec.Kind]; !seen {
		r.order = append(r.order, spec.Kind)
	}
	r.specs[spec.Kind] = spec
}

// Get returns the spec for a kind, or nil when the kind is unknown. Lookups
// never panic, whatever the input.
func (r *Registry) Get(kind schemas.ActionKind) *ActionSpec {
	spec, ok := r.specs[kind]
	if !ok {
		return nil
	}
	return &spec
}

// RequiresElement reports whether the kind needs an element reference.
// Unknown kinds report false.
func (r *Registry) RequiresElement(kind schemas.ActionKind) bool {
	spec, ok := r.specs[kind]
	return ok && spec.RequiresElement
}

// IsTerminal reports whether the kind ends the session. Unknown kinds
// report false.
func (r *Registry) IsTerminal(kind schemas.ActionKind) bool {
	spec, ok := r.specs[kind]
	return ok && spec.Terminal
}

// CoordinateBased reports whether the kind addresses the page by viewport
// coordinates. Unknown kinds report false.
func (r *Registry) CoordinateBased(kind schemas.ActionKind) bool {
	spec, ok := r.specs[kind]
	return ok && spec.CoordinateBased
}

// Kinds lists every registered kind in registration order.
func (r *Registry) Kinds() []schemas.ActionKind {
	out := make([]schemas.ActionKind, len(r.order))
	copy(out, r.order)
	return out
}

// Specs lists every registered spec in registration order.
func (r *Registry) Specs() []ActionSpec {
	out := make([]ActionSpec, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.specs[kind])
	}
	return out
}

// Usage renders the registered specs as the prompt-facing action reference.
func (r *Registry) Usage() []schemas.ActionUsage {
	out := make([]schemas.ActionUsage, 0, len(r.order))
	for _, kind := range r.order {
		spec := r.specs[kind]
		out = append(out, schemas.ActionUsage{
			Kind:            spec.Kind,
			Usage:           spec.Description,
			RequiresElement: spec.RequiresElement,
		})
	}
	return out
}
