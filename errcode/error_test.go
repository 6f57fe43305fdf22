package errcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayeredError_CodeLayout(t *testing.T) {
	err := New(42, 7, "demo", "something went wrong")
	assert.Equal(t, 420007, err.Code())
	assert.Equal(t, "demo", err.Subsystem())
	assert.Equal(t, "something went wrong", err.Error())
}

func TestLayeredError_ClonesNeverMutateTemplate(t *testing.T) {
	tmpl := New(42, 8, "demo", "template message")

	custom := tmpl.WithMsgf("custom %d", 5)
	assert.Equal(t, "custom 5", custom.Error())
	assert.Equal(t, "template message", tmpl.Error())

	withData := tmpl.WithData("key", "value")
	assert.Equal(t, "value", withData.Data()["key"])
	assert.Empty(t, tmpl.Data())
}

func TestLayeredError_IsMatchesByCode(t *testing.T) {
	tmpl := New(42, 9, "demo", "template")
	clone := tmpl.WithMsgf("rewritten").WithData("k", 1)

	assert.ErrorIs(t, clone, tmpl)
	assert.NotErrorIs(t, clone, New(42, 10, "demo", "other"))
	assert.NotErrorIs(t, clone, errors.New("plain"))
}

func TestLayeredError_WrapChain(t *testing.T) {
	tmpl := New(42, 11, "demo", "outer")
	cause := errors.New("inner failure")

	wrapped := tmpl.Wrap(cause)
	assert.Equal(t, "outer: inner failure", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, tmpl)

	rewrapped := tmpl.Wrapf(cause, "while parsing %q", "x")
	assert.Equal(t, `while parsing "x": inner failure`, rewrapped.Error())

	assert.Same(t, tmpl, tmpl.Wrap(nil))
}

func TestRegistry_ConflictPanics(t *testing.T) {
	r := &Registry{codes: make(map[int]string)}

	first := New(42, 12, "demo", "first")
	require.Same(t, first, r.Register(first))
	assert.True(t, r.Registered(first.Code()))

	// Same code, same identity: idempotent.
	assert.NotPanics(t, func() { r.Register(New(42, 12, "demo", "first")) })

	// Same code claimed by a different message: a wiring bug, caught at
	// init time.
	assert.Panics(t, func() { r.Register(New(42, 12, "demo", "second")) })
}

func TestDeclaredCodes_AreDistinct(t *testing.T) {
	declared := []*LayeredError{
		ErrBadPattern, ErrNilHandler, ErrBusClosed, ErrBadListenerOpts,
		ErrUnresolvableParam, ErrNotAFunc, ErrValueMissing,
		ErrUnionUnmatched, ErrNoConverter, ErrConvertFailed, ErrConvertBadType,
		ErrBadCronExpr, ErrBadInterval, ErrSchedClosed, ErrBadJobOptions,
	}
	seen := make(map[int]string)
	for _, e := range declared {
		prev, dup := seen[e.Code()]
		assert.False(t, dup, "code %d used by both %q and %q", e.Code(), prev, e.Message())
		seen[e.Code()] = e.Message()
		assert.True(t, globalRegistry.Registered(e.Code()))
	}
}
