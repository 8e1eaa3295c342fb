package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	e := New(KindValidation, "bad input")
	assert.Equal(t, "validation: bad input", e.Error())
	assert.Nil(t, e.Unwrap())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	e := Wrap(KindTransientDB, "query failed", cause)
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "query failed")
	assert.Contains(t, e.Error(), "connection reset")
}

func TestAsExtractsThroughWrapping(t *testing.T) {
	wrapped := errors.New("outer: " + New(KindForbidden, "nope").Error())
	_, ok := As(wrapped)
	assert.False(t, ok, "a plain errors.New should never unwrap to *Error")

	inner := New(KindNotFound, "missing")
	outer := Wrap(KindNotFound, "lookup failed", inner)
	got, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, got.Kind)
}

func TestStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindUnauthorized:    http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindConflict:        http.StatusConflict,
		KindPayloadTooLarge: http.StatusRequestEntityTooLarge,
		KindIntrovertBlock:  http.StatusForbidden,
		KindTransientDB:     http.StatusInternalServerError,
		KindPushGone:        http.StatusInternalServerError,
		KindPushTransient:   http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, Status(kind), "kind=%s", kind)
	}
}
