package identity_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	identity "github.com/brepkit/identity"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *identity.Error
		want string
	}{
		{
			name: "without underlying error",
			err:  &identity.Error{Op: "Engine.AddBody", Kind: identity.KindValidation},
			want: "identity: Engine.AddBody: validation",
		},
		{
			name: "with underlying error",
			err: &identity.Error{
				Op:   "Engine.Body",
				Kind: identity.KindNotFound,
				Err:  identity.ErrBodyNotFound,
			},
			want: "identity: Engine.Body (not_found): body not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorFormattingWithContext(t *testing.T) {
	err := identity.NewNotFoundError("Engine.Body", identity.ErrBodyNotFound).
		WithContext(map[string]any{"body": "main"})
	assert.Contains(t, err.Error(), "body:main")
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("underlying")
	err := identity.NewRebuildError("Engine.Rebuild", base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, base, errors.Unwrap(err))
}

// TestErrorIs verifies kind-based matching and sentinel delegation.
func TestErrorIs(t *testing.T) {
	err := identity.NewNotFoundError("Engine.Body", identity.ErrBodyNotFound)

	// Matches by kind regardless of Op.
	assert.ErrorIs(t, err, &identity.Error{Kind: identity.KindNotFound})
	// Matches the wrapped sentinel.
	assert.ErrorIs(t, err, identity.ErrBodyNotFound)
	// Does not match a different kind or sentinel.
	assert.NotErrorIs(t, err, &identity.Error{Kind: identity.KindStorage})
	assert.NotErrorIs(t, err, identity.ErrBodyExists)
}

func TestErrorAs(t *testing.T) {
	var target *identity.Error
	err := identity.NewStorageError("Engine.Save", errors.New("connection refused"))
	require.ErrorAs(t, err, &target)
	assert.Equal(t, identity.KindStorage, target.Kind)
}

// TestWithContextCopies verifies WithContext returns a copy and does not
// mutate the original error.
func TestWithContextCopies(t *testing.T) {
	orig := identity.NewValidationError("Engine.AddBody", identity.ErrBodyExists)
	withCtx := orig.WithContext(map[string]any{"body": "main"})

	assert.Nil(t, orig.Context)
	assert.Equal(t, "main", withCtx.Context["body"])
}
