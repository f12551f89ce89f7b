package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithInternalKeepsOriginal(t *testing.T) {
	cause := errors.New("cache write failed")
	err := ErrServiceUnavailable.WithInternal(cause)

	require.NotSame(t, ErrServiceUnavailable, err)
	require.Equal(t, ErrServiceUnavailable.Code, err.Code)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "cache write failed")
}

func TestFromErrorPassesThroughAppError(t *testing.T) {
	wrapped := Wrap(errors.New("boom"), "token store failed")

	got := FromError(wrapped)
	require.Equal(t, "INTERNAL_ERROR", got.Code)
	require.Equal(t, http.StatusInternalServerError, got.StatusCode)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("plain"))
	require.Equal(t, ErrInternalServer.Code, got.Code)
	require.EqualError(t, got.Internal, "plain")
}

func TestFromErrorNil(t *testing.T) {
	require.Nil(t, FromError(nil))
}
