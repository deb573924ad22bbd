package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Resolver locates a live element for an element descriptor using a fixed
// ladder of strategies. Geometry is measured at resolution time and never
// cached, so an element that moved since extraction is still hit where it
// is now.
type Resolver struct {
	browser schemas.BrowserSession
	logger  *zap.Logger
}

func NewResolver(browser schemas.BrowserSession, logger *zap.Logger) *Resolver {
	return &Resolver{
		browser: browser,
		logger:  logger.Named("resolver"),
	}
}

// Resolve returns the first selector that matches a live element. The ladder
// tries the descriptor's structural locator, then its name attribute, then
// its aria-label, and finally, for inputs, the input type within the tag.
// When every layer misses the result is an ElementNotFoundError.
func (r *Resolver) Resolve(ctx context.Context, desc *schemas.ElementDescriptor) (string, error) {
	if desc == nil {
		return "", &ElementNotFoundError{ElementID: "", Tried: nil}
	}

	candidates := candidateSelectors(desc)

	tried := make([]string, 0, len(candidates))
	for _, sel := range candidates {
		tried = append(tried, sel)
		ok, err := r.browser.Probe(ctx, sel)
		if err != nil {
			return "", fmt.Errorf("probing %q: %w", sel, err)
		}
		if ok {
			if sel != desc.Locator {
				r.logger.Debug("Element resolved by fallback selector.",
					zap.String("element_id", desc.ID),
					zap.String("selector", sel),
				)
			}
			return sel, nil
		}
	}

	return "", &ElementNotFoundError{ElementID: desc.ID, Tried: tried}
}

// Center returns the element's current center point. The bounding geometry
// is read from the live page on every call.
func (r *Resolver) Center(ctx context.Context, selector string) (float64, float64, error) {
	box, err := r.browser.ElementBox(ctx, selector)
	if err != nil {
		return 0, 0, err
	}
	x, y := box.Center()
	return x, y, nil
}

// candidateSelectors builds the resolution ladder for a descriptor. Layers
// that would produce duplicate or empty selectors are skipped.
func candidateSelectors(desc *schemas.ElementDescriptor) []string {
	var candidates []string
	add := func(sel string) {
		if sel == "" {
			return
		}
		for _, seen := range candidates {
			if seen == sel {
				return
			}
		}
		candidates = append(candidates, sel)
	}

	add(desc.Locator)

	if desc.Name != "" {
		add(fmt.Sprintf(`%s[name=%s]`, desc.Tag, cssQuote(desc.Name)))
	}
	if desc.AriaLabel != "" {
		add(fmt.Sprintf(`%s[aria-label=%s]`, desc.Tag, cssQuote(desc.AriaLabel)))
		add(fmt.Sprintf(`[aria-label=%s]`, cssQuote(desc.AriaLabel)))
	}
	if desc.Tag == "input" && desc.Type != "" {
		add(fmt.Sprintf(`input[type=%s]`, cssQuote(desc.Type)))
	}

	return candidates
}

// cssQuote renders an attribute value as a quoted CSS string.
func cssQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
