package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeMappingIsTotalAndStable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind ErrorKind
		want int
	}{
		{ErrKindValidation, 400},
		{ErrKindTimeout, 504},
		{ErrKindTranscription, 503},
		{ErrKindReasoning, 500},
		{ErrKindSynthesis, 500},
		{ErrKindPersistence, 500},
		{ErrKindInternal, 500},
		{ErrorKind("SomethingNew"), 500},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.kind.StatusCode(), "kind %s", tc.kind)
		// Same category always yields the same code.
		assert.Equal(t, tc.kind.StatusCode(), tc.kind.StatusCode())
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "classified error",
			err:  NewPipelineError(ErrKindTranscription, "no luck", errors.New("502")),
			want: ErrKindTranscription,
		},
		{
			name: "wrapped classified error",
			err:  fmt.Errorf("outer: %w", NewPipelineError(ErrKindPersistence, "write failed", nil)),
			want: ErrKindPersistence,
		},
		{
			name: "double timeout reclassifies as timeout",
			err:  NewPipelineError(ErrKindTranscription, "no luck", fmt.Errorf("attempt: %w", context.DeadlineExceeded)),
			want: ErrKindTimeout,
		},
		{
			name: "unclassified error",
			err:  errors.New("surprise"),
			want: ErrKindInternal,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestPipelineErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")
	err := NewPipelineError(ErrKindReasoning, "model said no", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ReasoningFailure")
	assert.Contains(t, err.Error(), "model said no")
	assert.Equal(t, "model said no", MessageOf(err))
}

func TestMessageOfUnclassified(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Internal server error", MessageOf(errors.New("oops")))
}
