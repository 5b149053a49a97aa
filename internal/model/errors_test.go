package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorPredicates(t *testing.T) {
	cause := errors.New("disk on fire")
	tests := []struct {
		name string
		err  error
		is   func(error) bool
		sent error
	}{
		{"not found", NotFound("node n1"), IsNotFound, ErrNotFound},
		{"constraint", ConstraintViolation("edge e1", "target %s is not a label", "n2"), IsConstraintViolation, ErrConstraintViolation},
		{"malformed", Malformed(cause), IsMalformed, ErrMalformedTransaction},
		{"source io", SourceIO("disk", cause), IsSourceIO, ErrSourceIO},
		{"replay", Replay("log corrupt", cause), IsReplay, ErrReplay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.is(wrapped))
			assert.ErrorIs(t, wrapped, tt.sent)
		})
	}

	assert.False(t, IsNotFound(cause))
	assert.NotErrorIs(t, NotFound("x"), ErrReplay)
}

func TestErrorMessage(t *testing.T) {
	err := ConstraintViolation("edge ab12cd34", "definition target %s is not a label", "ff00ee11")
	assert.Equal(t, "CONSTRAINT_VIOLATION: definition target ff00ee11 is not a label (edge ab12cd34)", err.Error())

	wrapped := SourceIO("disk", errors.New("permission denied"))
	assert.Equal(t, "SOURCE_IO: source i/o failed (disk): permission denied", wrapped.Error())
	assert.ErrorIs(t, Replay("gap", wrapped), ErrSourceIO)
}
