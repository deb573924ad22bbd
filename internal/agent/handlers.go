package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func (e *Executor) handleClick(ctx context.Context, action *schemas.Action) error {
	selector, err := e.resolveTarget(ctx, action)
	if err != nil {
		return err
	}
	return e.browser.Click(ctx, selector)
}

func (e *Executor) handleInputText(ctx context.Context, action *schemas.Action) error {
	text, ok := paramString(action.Params, "text")
	if !ok {
		return &ValidationError{Field: "params", Message: "input_text requires a text param"}
	}
	selector, err := e.resolveTarget(ctx, action)
	if err != nil {
		return err
	}
	return e.browser.TypeText(ctx, selector, text, true)
}

func (e *Executor) handleSelectOption(ctx context.Context, action *schemas.Action) error {
	value, ok := paramString(action.Params, "value")
	if !ok {
		value, ok = paramString(action.Params, "option")
	}
	if !ok {
		return &ValidationError{Field: "params", Message: "select_option requires a value param"}
	}
	selector, err := e.resolveTarget(ctx, action)
	if err != nil {
		return err
	}
	return e.browser.SelectOption(ctx, selector, value)
}

func (e *Executor) handleHover(ctx context.Context, action *schemas.Action) error {
	selector, err := e.resolveTarget(ctx, action)
	if err != nil {
		return err
	}
	return e.browser.Hover(ctx, selector)
}

func (e *Executor) handleUploadFile(ctx context.Context, action *schemas.Action) error {
	paths := paramStringSlice(action.Params, "paths")
	if len(paths) == 0 {
		if single, ok := paramString(action.Params, "path"); ok {
			paths = []string{single}
		}
	}
	if len(paths) == 0 {
		return &ValidationError{Field: "params", Message: "upload_file requires a paths param"}
	}
	selector, err := e.resolveTarget(ctx, action)
	if err != nil {
		return err
	}
	return e.browser.UploadFiles(ctx, selector, paths)
}

func (e *Executor) handlePointerClick(ctx context.Context, action *schemas.Action) error {
	x, y, err := e.pointFor(ctx, action)
	if err != nil {
		return err
	}
	return e.browser.PointerClick(ctx, x, y)
}

func (e *Executor) handlePointerMove(ctx context.Context, action *schemas.Action) error {
	x, y, err := e.pointFor(ctx, action)
	if err != nil {
		return err
	}
	return e.browser.PointerMove(ctx, x, y)
}

func (e *Executor) handleDrag(ctx context.Context, action *schemas.Action) error {
	toX, toOK := paramFloat(action.Params, "to_x")
	toY, toOK2 := paramFloat(action.Params, "to_y")
	if !toOK || !toOK2 {
		return &ValidationError{Field: "params", Message: "drag requires to_x and to_y params"}
	}

	fromX, fromOK := paramFloat(action.Params, "from_x")
	fromY, fromOK2 := paramFloat(action.Params, "from_y")
	if !fromOK || !fromOK2 {
		// Fall back to the referenced element's center as the origin.
		x, y, err := e.pointFor(ctx, action)
		if err != nil {
			return fmt.Errorf("drag origin: %w", err)
		}
		fromX, fromY = x, y
	}

	return e.browser.Drag(ctx, fromX, fromY, toX, toY)
}

func (e *Executor) handleKeyPress(ctx context.Context, action *schemas.Action) error {
	key, ok := paramString(action.Params, "key")
	if !ok {
		return &ValidationError{Field: "params", Message: "key_press requires a key param"}
	}
	return e.browser.PressKey(ctx, key)
}

func (e *Executor) handleTypeText(ctx context.Context, action *schemas.Action) error {
	text, ok := paramString(action.Params, "text")
	if !ok {
		return &ValidationError{Field: "params", Message: "type_text requires a text param"}
	}
	return e.browser.TypeActive(ctx, text)
}

func (e *Executor) handleScroll(ctx context.Context, action *schemas.Action) error {
	direction, _ := paramString(action.Params, "direction")
	pixels, _ := paramFloat(action.Params, "pixels")
	return e.browser.Scroll(ctx, direction, pixels)
}

func (e *Executor) handleNavigate(ctx context.Context, action *schemas.Action) error {
	url, ok := paramString(action.Params, "url")
	if !ok {
		return &ValidationError{Field: "params", Message: "navigate requires a url param"}
	}
	return e.browser.Navigate(ctx, url)
}

func (e *Executor) handleReload(ctx context.Context, action *schemas.Action) error {
	return e.browser.Reload(ctx)
}

func (e *Executor) handleHistoryBack(ctx context.Context, action *schemas.Action) error {
	return e.browser.NavigateBack(ctx)
}

func (e *Executor) handleHistoryForward(ctx context.Context, action *schemas.Action) error {
	return e.browser.NavigateForward(ctx)
}

// handleWait pauses between observations. The duration is capped so a
// confused model cannot stall a session indefinitely.
func (e *Executor) handleWait(ctx context.Context, action *schemas.Action) error {
	seconds, ok := paramFloat(action.Params, "seconds")
	if !ok || seconds <= 0 {
		seconds = 1
	}
	if seconds > 30 {
		seconds = 30
	}
	return e.browser.Sleep(ctx, time.Duration(seconds*float64(time.Second)))
}

// handleExtract succeeds unconditionally: the payload the model read off the
// page is carried through the outcome and merged by the recorder.
func (e *Executor) handleExtract(ctx context.Context, action *schemas.Action) error {
	return nil
}

// handleNoop backs the terminal kinds. Ending the session is the loop's
// decision, not the handler's.
func (e *Executor) handleNoop(ctx context.Context, action *schemas.Action) error {
	return nil
}

// pointFor produces viewport coordinates for a coordinate-based action:
// explicit x/y params win, otherwise the referenced element's live center.
func (e *Executor) pointFor(ctx context.Context, action *schemas.Action) (float64, float64, error) {
	x, xok := paramFloat(action.Params, "x")
	y, yok := paramFloat(action.Params, "y")
	if xok && yok {
		return x, y, nil
	}

	if action.Element != nil {
		selector, err := e.resolver.Resolve(ctx, action.Element)
		if err != nil {
			return 0, 0, err
		}
		return e.resolver.Center(ctx, selector)
	}

	return 0, 0, &ValidationError{Field: "params", Message: fmt.Sprintf("action %q needs x and y params or an element reference", action.Kind)}
}
