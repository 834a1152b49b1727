package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	require.True(t, IsTransient(Transient(base)))
	require.False(t, IsPermanent(Transient(base)))

	require.True(t, IsPermanent(Permanent(base)))
	require.False(t, IsTransient(Permanent(base)))

	require.False(t, IsTransient(base))
	require.False(t, IsPermanent(base))
	require.False(t, IsTransient(nil))
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("fetch bitcoin: %w", Transient(errors.New("503")))
	require.True(t, IsTransient(wrapped))

	wrapped = fmt.Errorf("fetch bitcoin: %w", Permanent(errors.New("404")))
	require.True(t, IsPermanent(wrapped))
}

func TestCancellationIsNeverTransient(t *testing.T) {
	require.False(t, IsTransient(context.Canceled))
	require.False(t, IsTransient(context.DeadlineExceeded))
	require.False(t, IsTransient(fmt.Errorf("wrap: %w", context.Canceled)))
}

func TestUnwrap(t *testing.T) {
	base := errors.New("boom")
	require.ErrorIs(t, Transient(base), base)
	require.ErrorIs(t, Permanent(base), base)
}
