package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineContext_SecondaryCancelPropagates(t *testing.T) {
	secondary, cancelSecondary := context.WithCancel(context.Background())

	combined, cancel := CombineContext(context.Background(), secondary)
	defer cancel()

	require.NoError(t, combined.Err())
	cancelSecondary()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not canceled after secondary cancel")
	}
	assert.ErrorIs(t, combined.Err(), context.Canceled)
}

func TestCombineContext_ParentCancelPropagates(t *testing.T) {
	primary, cancelPrimary := context.WithCancel(context.Background())

	combined, cancel := CombineContext(primary, context.Background())
	defer cancel()

	cancelPrimary()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not canceled after parent cancel")
	}
}

func TestCombineContext_ExplicitCancel(t *testing.T) {
	combined, cancel := CombineContext(context.Background(), context.Background())

	cancel()

	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not canceled by its own cancel func")
	}

	// A second cancel must be a no-op.
	cancel()
}
