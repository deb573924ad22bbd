package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Probe reports whether the selector matches a live element right now. An
// invalid selector counts as no match rather than an error, so callers can
// try speculative candidates freely.
func (s *Session) Probe(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`
        (function(sel) {
            try { return document.querySelector(sel) !== null; }
            catch (e) { return false; }
        })(%s)`, jsonEncode(selector))

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var found bool
	if err := s.evaluate(probeCtx, script, &found); err != nil {
		return false, fmt.Errorf("probe for %q failed: %w", selector, err)
	}
	return found, nil
}

// ElementBox returns the element's viewport bounding geometry, measured at
// call time. Fails when the selector matches nothing or the element has no
// visible box.
func (s *Session) ElementBox(ctx context.Context, selector string) (*schemas.BoundingBox, error) {
	script := fmt.Sprintf(`
        (function(sel) {
            const node = document.querySelector(sel);
            if (!node) return null;
            const rect = node.getBoundingClientRect();
            return { x: rect.left, y: rect.top, width: rect.width, height: rect.height };
        })(%s)`, jsonEncode(selector))

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var box *schemas.BoundingBox
	if err := s.evaluate(opCtx, script, &box); err != nil {
		return nil, fmt.Errorf("failed to measure %q: %w", selector, err)
	}
	if box == nil {
		return nil, fmt.Errorf("element %q not found", selector)
	}
	if box.Width <= 0 || box.Height <= 0 {
		return nil, fmt.Errorf("element %q has no visible box", selector)
	}
	return box, nil
}

// Click scrolls the element into view and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.runActions(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

// TypeText focuses the element and types text keystroke by keystroke. When
// clear is set any existing value is removed first.
func (s *Session) TypeText(ctx context.Context, selector, text string, clear bool) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.NodeVisible, chromedp.ByQuery),
	}
	if clear {
		actions = append(actions, chromedp.SetValue(selector, "", chromedp.ByQuery))
	}
	if err := s.runActions(opCtx, actions...); err != nil {
		return fmt.Errorf("could not focus %q: %w", selector, err)
	}

	return s.typeRunes(opCtx, text)
}

// TypeActive types text into whatever element currently holds focus.
func (s *Session) TypeActive(ctx context.Context, text string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	return s.typeRunes(opCtx, text)
}

// typeRunes sends text one keystroke at a time, pausing between runes so
// page scripts can react to each input event.
func (s *Session) typeRunes(ctx context.Context, text string) error {
	delay := s.cfg.TypingDelay
	for _, r := range text {
		if err := s.runActions(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("typing failed: %w", err)
		}
		if delay > 0 {
			if err := s.Sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// SelectOption picks an option of a <select> element, matching the option
// value first and the visible label second. Input and change events are
// dispatched so framework listeners observe the selection.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`
        (function(sel, wanted) {
            const node = document.querySelector(sel);
            if (!node || node.tagName !== 'SELECT') return false;
            let matched = null;
            for (const opt of node.options) {
                if (opt.value === wanted) { matched = opt; break; }
            }
            if (!matched) {
                for (const opt of node.options) {
                    if ((opt.label || '').trim() === wanted || (opt.text || '').trim() === wanted) { matched = opt; break; }
                }
            }
            if (!matched) return false;
            node.value = matched.value;
            node.dispatchEvent(new Event('input', { bubbles: true }));
            node.dispatchEvent(new Event('change', { bubbles: true }));
            return true;
        })(%s, %s)`, jsonEncode(selector), jsonEncode(value))

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var ok bool
	if err := s.evaluate(opCtx, script, &ok); err != nil {
		return fmt.Errorf("select on %q failed: %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("no option %q on %q", value, selector)
	}
	return nil
}

// Hover moves the pointer over the element's center.
func (s *Session) Hover(ctx context.Context, selector string) error {
	box, err := s.ElementBox(ctx, selector)
	if err != nil {
		return fmt.Errorf("hover on %q failed: %w", selector, err)
	}
	x, y := box.Center()
	return s.PointerMove(ctx, x, y)
}

// UploadFiles attaches local files to a file input.
func (s *Session) UploadFiles(ctx context.Context, selector string, paths []string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.runActions(opCtx, chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("upload to %q failed: %w", selector, err)
	}
	return nil
}

// PressKey presses a named key, optionally prefixed with modifiers joined by
// "+", e.g. "Enter", "ctrl+a", "shift+Tab".
func (s *Session) PressKey(ctx context.Context, chord string) error {
	key, modifiers, err := parseKeyChord(chord)
	if err != nil {
		return err
	}

	keyDown := input.DispatchKeyEvent(input.KeyDown).WithModifiers(modifiers).WithKey(key)
	keyUp := input.DispatchKeyEvent(input.KeyUp).WithModifiers(modifiers).WithKey(key)

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.runActions(opCtx, keyDown, keyUp); err != nil {
		return fmt.Errorf("key press %q failed: %w", chord, err)
	}
	return nil
}

// Scroll moves the viewport. Direction is up, down, top, or bottom. The
// pixel amount only applies to up and down, defaulting to most of one
// viewport height.
func (s *Session) Scroll(ctx context.Context, direction string, pixels float64) error {
	amount := "window.innerHeight * 0.8"
	if pixels > 0 {
		amount = fmt.Sprintf("%.0f", pixels)
	}

	var script string
	switch strings.ToLower(direction) {
	case "down", "":
		script = fmt.Sprintf("window.scrollBy(0, %s);", amount)
	case "up":
		script = fmt.Sprintf("window.scrollBy(0, -(%s));", amount)
	case "top":
		script = "window.scrollTo(0, 0);"
	case "bottom":
		script = "window.scrollTo(0, document.body.scrollHeight);"
	default:
		return fmt.Errorf("unknown scroll direction %q", direction)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.runActions(opCtx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll %s failed: %w", direction, err)
	}
	return nil
}

// PointerMove moves the pointer to viewport coordinates.
func (s *Session) PointerMove(ctx context.Context, x, y float64) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	move := input.DispatchMouseEvent(input.MouseMoved, x, y)
	if err := s.runActions(opCtx, move); err != nil {
		return fmt.Errorf("pointer move to (%.0f, %.0f) failed: %w", x, y, err)
	}
	return nil
}

// PointerClick presses and releases the left button at viewport coordinates.
func (s *Session) PointerClick(ctx context.Context, x, y float64) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	move := input.DispatchMouseEvent(input.MouseMoved, x, y)
	down := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithClickCount(1)
	up := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithClickCount(1)

	if err := s.runActions(opCtx, move, down, up); err != nil {
		return fmt.Errorf("pointer click at (%.0f, %.0f) failed: %w", x, y, err)
	}
	return nil
}

// Drag presses at the origin, moves to the destination through intermediate
// points, and releases. Intermediate moves carry the pressed-button state so
// drag handlers see a continuous gesture.
func (s *Session) Drag(ctx context.Context, fromX, fromY, toX, toY float64) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	actions := []chromedp.Action{
		input.DispatchMouseEvent(input.MouseMoved, fromX, fromY),
		input.DispatchMouseEvent(input.MousePressed, fromX, fromY).
			WithButton(input.Left).
			WithClickCount(1),
	}

	const steps = 8
	for i := 1; i <= steps; i++ {
		t := float64(i) / steps
		actions = append(actions,
			input.DispatchMouseEvent(input.MouseMoved, fromX+(toX-fromX)*t, fromY+(toY-fromY)*t).
				WithButton(input.Left).
				WithButtons(1),
			chromedp.Sleep(16*time.Millisecond),
		)
	}

	actions = append(actions,
		input.DispatchMouseEvent(input.MouseReleased, toX, toY).
			WithButton(input.Left).
			WithClickCount(1),
	)

	if err := s.runActions(opCtx, actions...); err != nil {
		return fmt.Errorf("drag from (%.0f, %.0f) to (%.0f, %.0f) failed: %w", fromX, fromY, toX, toY, err)
	}
	return nil
}

// opContext derives the per-operation timeout context for a single interaction.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.ActionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// parseKeyChord splits "ctrl+shift+a" into the final key and a CDP modifier
// mask. A bare "+" means the plus key itself.
func parseKeyChord(chord string) (string, input.Modifier, error) {
	if chord == "+" {
		return "+", 0, nil
	}

	parts := strings.Split(chord, "+")
	if chord == "" || parts[len(parts)-1] == "" {
		return "", 0, fmt.Errorf("empty key chord")
	}

	var modifiers input.Modifier
	for _, part := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "ctrl", "control":
			modifiers |= input.ModifierCtrl
		case "alt":
			modifiers |= input.ModifierAlt
		case "shift":
			modifiers |= input.ModifierShift
		case "meta", "cmd", "command":
			modifiers |= input.ModifierMeta
		default:
			return "", 0, fmt.Errorf("unknown modifier %q in chord %q", part, chord)
		}
	}
	return canonicalKeyName(parts[len(parts)-1]), modifiers, nil
}

// canonicalKeyName maps common spellings onto the DOM key values CDP expects.
func canonicalKeyName(key string) string {
	k := strings.TrimSpace(key)
	switch strings.ToLower(k) {
	case "enter", "return":
		return "Enter"
	case "tab":
		return "Tab"
	case "escape", "esc":
		return "Escape"
	case "backspace":
		return "Backspace"
	case "delete", "del":
		return "Delete"
	case "space", "spacebar":
		return " "
	case "up", "arrowup":
		return "ArrowUp"
	case "down", "arrowdown":
		return "ArrowDown"
	case "left", "arrowleft":
		return "ArrowLeft"
	case "right", "arrowright":
		return "ArrowRight"
	case "home":
		return "Home"
	case "end":
		return "End"
	case "pageup":
		return "PageUp"
	case "pagedown":
		return "PageDown"
	}
	return k
}

// jsonEncode safely encodes a value (especially strings) for JS injection.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
