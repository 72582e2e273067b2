package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	t.Parallel()

	cause := errors.New("timeout")
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"bad data", BadData("normalize", "low %v > high %v", 2, 1), ErrBadData},
		{"config", Config("load", "missing %s", "timezone"), ErrConfig},
		{"provider", Provider("get_daily", cause), ErrProvider},
		{"busy", Busy("append", cause), ErrConcurrencyBusy},
		{"insufficient", Insufficient("cv", "n=%d", 40), ErrDataInsufficient},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.kind, KindOf(tt.err))
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind)
		})
	}
}

func TestProviderKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := Provider("sina", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "sina")

	// already a provider error: not double wrapped
	assert.Same(t, err, Provider("outer", err))
	assert.Nil(t, Provider("noop", nil))
	assert.Nil(t, KindOf(errors.New("plain")))
}
