package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindInsufficientBalance, "not enough points")
	assert.Equal(t, KindInsufficientBalance, KindOf(err))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.Equal(t, KindInsufficientBalance, KindOf(wrapped))

	assert.Equal(t, KindStorage, KindOf(errors.New("driver broke")))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "order not found", MessageOf(New(KindNotFound, "order not found")))
	assert.Equal(t, "internal error", MessageOf(errors.New("pq: connection reset")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindStorage, "could not commit", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.Contains(t, err.Error(), "could not commit")
	assert.Contains(t, err.Error(), "refused")
}

func TestIsMatchesByKind(t *testing.T) {
	err := Newf(KindAlreadyClaimed, "order %d already accepted", 7)
	assert.True(t, errors.Is(err, New(KindAlreadyClaimed, "")))
	assert.False(t, errors.Is(err, New(KindNotFound, "")))
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(New(KindLedgerCorruption, "boom"), KindLedgerCorruption))
	assert.False(t, IsKind(New(KindNotFound, "nope"), KindLedgerCorruption))
}
