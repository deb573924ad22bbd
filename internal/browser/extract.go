package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// elementsScript collects the page's interactable elements. Interactive tags
// are gathered first, then secondary landmarks until the cap is reached. Each
// element carries a best-effort CSS locator, its identifying attributes, and
// its current bounding geometry.
const elementsScript = `
(function(maxElements) {
    const priorityTags = ['a', 'button', 'input', 'select', 'textarea'];
    const secondaryTags = ['h1', 'h2', 'h3', 'label', 'summary',
        '[role="button"]', '[role="link"]', '[role="tab"]', '[role="menuitem"]', '[onclick]'];

    const results = [];
    const seen = new Set();

    function isVisible(el) {
        const rect = el.getBoundingClientRect();
        if (rect.width <= 0 || rect.height <= 0) return false;
        const style = window.getComputedStyle(el);
        return style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
    }

    function cssEscape(v) {
        return (window.CSS && CSS.escape) ? CSS.escape(v) : v.replace(/(["\\])/g, '\\$1');
    }

    function locatorFor(el) {
        const testAttrs = ['data-testid', 'data-test-id', 'data-test', 'data-qa', 'data-cy'];
        for (const attr of testAttrs) {
            const v = el.getAttribute(attr);
            if (v) return '[' + attr + '="' + cssEscape(v) + '"]';
        }
        if (el.id) return '#' + cssEscape(el.id);

        const tag = el.tagName.toLowerCase();
        const name = el.getAttribute('name');
        if (name) return tag + '[name="' + cssEscape(name) + '"]';
        const aria = el.getAttribute('aria-label');
        if (aria) return tag + '[aria-label="' + cssEscape(aria) + '"]';
        if (tag === 'input') {
            const type = el.getAttribute('type');
            const ph = el.getAttribute('placeholder');
            if (type && ph) return 'input[type="' + cssEscape(type) + '"][placeholder="' + cssEscape(ph) + '"]';
        }

        // Structural path as the last resort.
        const path = [];
        let node = el;
        while (node && node.nodeType === Node.ELEMENT_NODE && path.length < 6) {
            let part = node.tagName.toLowerCase();
            if (node.id) { path.unshift('#' + cssEscape(node.id)); break; }
            const parent = node.parentElement;
            if (parent) {
                const siblings = Array.from(parent.children).filter(function(c) { return c.tagName === node.tagName; });
                if (siblings.length > 1) {
                    part += ':nth-of-type(' + (siblings.indexOf(node) + 1) + ')';
                }
            }
            path.unshift(part);
            node = parent;
        }
        return path.join(' > ');
    }

    function textFor(el) {
        let txt = '';
        if (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA') { txt = el.value || ''; }
        if (!txt) txt = (el.innerText || el.textContent || '').trim();
        if (!txt) txt = el.getAttribute('aria-label') || '';
        return txt.replace(/\s+/g, ' ').trim().slice(0, 120);
    }

    function collect(el) {
        if (results.length >= maxElements) return;
        if (seen.has(el)) return;
        if (!isVisible(el)) return;
        seen.add(el);
        const rect = el.getBoundingClientRect();
        results.push({
            tag: el.tagName.toLowerCase(),
            locator: locatorFor(el),
            name: el.getAttribute('name') || '',
            role: el.getAttribute('role') || '',
            type: el.getAttribute('type') || '',
            ariaLabel: el.getAttribute('aria-label') || '',
            placeholder: el.getAttribute('placeholder') || '',
            text: textFor(el),
            visible: true,
            box: { x: rect.left, y: rect.top, width: rect.width, height: rect.height }
        });
    }

    for (const sel of priorityTags) {
        document.querySelectorAll(sel).forEach(collect);
    }
    for (const sel of secondaryTags) {
        if (results.length >= maxElements) break;
        document.querySelectorAll(sel).forEach(collect);
    }
    return results;
})(%d)`

// pageElement mirrors the object shape produced by the extraction script.
type pageElement struct {
	Tag         string              `json:"tag"`
	Locator     string              `json:"locator"`
	Name        string              `json:"name"`
	Role        string              `json:"role"`
	Type        string              `json:"type"`
	AriaLabel   string              `json:"ariaLabel"`
	Placeholder string              `json:"placeholder"`
	Text        string              `json:"text"`
	Visible     bool                `json:"visible"`
	Box         schemas.BoundingBox `json:"box"`
}

// CaptureState extracts a fresh snapshot of the page: URL, title, a readable
// text summary, and the table of interactable elements. Element IDs are
// assigned in document order on every call; nothing is cached between steps.
func (s *Session) CaptureState(ctx context.Context) (*schemas.PageState, error) {
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var url, title, rawHTML string
	err := s.runActions(opCtx,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &rawHTML, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture page document: %w", err)
	}

	maxElements := s.cfg.MaxElements
	if maxElements <= 0 {
		maxElements = 60
	}

	var raw []pageElement
	if err := s.evaluate(opCtx, fmt.Sprintf(elementsScript, maxElements), &raw); err != nil {
		return nil, fmt.Errorf("element extraction failed: %w", err)
	}

	elements := make([]schemas.ElementDescriptor, 0, len(raw))
	for i, el := range raw {
		desc := schemas.ElementDescriptor{
			ID:          fmt.Sprintf("e%d", i+1),
			Tag:         el.Tag,
			Locator:     el.Locator,
			Name:        el.Name,
			Role:        el.Role,
			Type:        el.Type,
			AriaLabel:   el.AriaLabel,
			Placeholder: el.Placeholder,
			Text:        el.Text,
			Visible:     el.Visible,
		}
		if el.Box.Width > 0 || el.Box.Height > 0 {
			box := el.Box
			desc.Box = &box
		}
		elements = append(elements, desc)
	}

	s.logger.Debug("Captured page state.",
		zap.String("url", url),
		zap.Int("elements", len(elements)),
	)

	return &schemas.PageState{
		URL:        url,
		Title:      title,
		Summary:    buildSummary(rawHTML, s.cfg.SummaryMaxChars),
		Elements:   elements,
		CapturedAt: time.Now().UTC(),
	}, nil
}
