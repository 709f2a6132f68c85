package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type lookupError string

const (
	errMissing  lookupError = "missing"
	errConflict lookupError = "conflict"
)

func describe(r Result[int, lookupError]) string {
	if !IsError(r) {
		return "ok"
	}
	switch kind := GetError(r); kind {
	case errMissing:
		return "missing"
	case errConflict:
		return "conflict"
	default:
		ExhaustiveCheck(kind)
		return ""
	}
}

func TestResult_Ok(t *testing.T) {
	r := Ok[int, lookupError](42)

	assert.False(t, IsError(r))
	assert.Equal(t, 42, GetValue(r))
	assert.Panics(t, func() { GetError(r) })
}

func TestResult_Error(t *testing.T) {
	r := Error[int](errMissing)

	assert.True(t, IsError(r))
	assert.Equal(t, errMissing, GetError(r))
	assert.Panics(t, func() { GetValue(r) })
}

func TestResult_SwitchOnKind(t *testing.T) {
	assert.Equal(t, "ok", describe(Ok[int, lookupError](1)))
	assert.Equal(t, "missing", describe(Error[int](errMissing)))
	assert.Equal(t, "conflict", describe(Error[int](errConflict)))
	assert.Panics(t, func() { describe(Error[int](lookupError("new-kind"))) })
}

func TestUnhandled_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "result: unhandled error kind new-kind", func() {
		_ = Unhandled[string](lookupError("new-kind"))
	})
}
