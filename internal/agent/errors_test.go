package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyExecutionError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"TypedNotFound", &ElementNotFoundError{ElementID: "e1"}, ErrCodeElementNotFound},
		{"WrappedTypedNotFound", fmt.Errorf("step: %w", &ElementNotFoundError{ElementID: "e1"}), ErrCodeElementNotFound},
		{"TypedValidation", &ValidationError{Message: "bad"}, ErrCodeInvalidParams},
		{"TextualNotFound", errors.New(`element "#x" not found`), ErrCodeElementNotFound},
		{"NoVisibleBox", errors.New(`element "#x" has no visible box`), ErrCodeElementNotFound},
		{"Timeout", errors.New("click: timeout waiting for selector"), ErrCodeTimeoutError},
		{"DeadlineExceeded", errors.New("context deadline exceeded"), ErrCodeTimeoutError},
		{"ChromeNetError", errors.New("page load error net::ERR_CONNECTION_REFUSED"), ErrCodeNavigationError},
		{"Fallback", errors.New("something else entirely"), ErrCodeExecutionFailure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyExecutionError(tc.err))
		})
	}
}

func TestErrorStrings(t *testing.T) {
	verr := &ValidationError{Field: "action", Message: `unknown action kind "fly"`}
	assert.Equal(t, `invalid decision: action: unknown action kind "fly"`, verr.Error())

	bare := &ValidationError{Message: "empty decision"}
	assert.Equal(t, "invalid decision: empty decision", bare.Error())

	nf := &ElementNotFoundError{ElementID: "e3", Tried: []string{"#a", "[aria-label=\"b\"]"}}
	assert.Equal(t, `element "e3" not found after trying 2 selectors`, nf.Error())
}

func TestSessionFatalError_Unwrap(t *testing.T) {
	cause := errors.New("tab crashed")
	fatal := &SessionFatalError{Reason: "browser gone", Err: cause}

	assert.ErrorIs(t, fatal, cause)
	assert.Contains(t, fatal.Error(), "browser gone")
	assert.Contains(t, fatal.Error(), "tab crashed")

	bare := &SessionFatalError{Reason: "no provider"}
	assert.Equal(t, "session fatal: no provider", bare.Error())
}
