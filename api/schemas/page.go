package schemas

import "time"

// BoundingBox is the viewport-relative geometry of an element.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// ElementDescriptor describes one interactable element in the table built by
// the page state extractor. The Locator is a structural CSS path; the
// attribute fields feed the layered resolution fallbacks.
type ElementDescriptor struct {
	ID          string       `json:"id"`
	Tag         string       `json:"tag"`
	Locator     string       `json:"locator"`
	Name        string       `json:"name,omitempty"`
	Role        string       `json:"role,omitempty"`
	Type        string       `json:"type,omitempty"`
	AriaLabel   string       `json:"aria_label,omitempty"`
	Placeholder string       `json:"placeholder,omitempty"`
	Text        string       `json:"text,omitempty"`
	Visible     bool         `json:"visible"`
	Box         *BoundingBox `json:"box,omitempty"`
}

// PageState is the compact observation handed to the decision provider:
// a text summary plus the element table, rebuilt fresh every step.
type PageState struct {
	URL        string              `json:"url"`
	Title      string              `json:"title"`
	Summary    string              `json:"summary"`
	Elements   []ElementDescriptor `json:"elements"`
	CapturedAt time.Time           `json:"captured_at"`
}

// ElementTable returns the id -> descriptor lookup for this state. Identifiers
// are only guaranteed valid against the state that produced them.
func (s *PageState) ElementTable() map[string]ElementDescriptor {
	table := make(map[string]ElementDescriptor, len(s.Elements))
	for _, el := range s.Elements {
		table[el.ID] = el
	}
	return table
}
