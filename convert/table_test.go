package convert_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhaus/automate/convert"
	"github.com/openhaus/automate/errcode"
)

func TestConvert_Builtins(t *testing.T) {
	tbl := convert.NewTable()

	got, err := tbl.Convert("42", reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = tbl.Convert("21.5", reflect.TypeOf(float64(0)))
	require.NoError(t, err)
	assert.Equal(t, 21.5, got)

	got, err = tbl.Convert("on", reflect.TypeOf(false))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = tbl.Convert("off", reflect.TypeOf(false))
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = tbl.Convert("1m30s", reflect.TypeOf(time.Duration(0)))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, got)

	got, err = tbl.Convert(255.0, reflect.TypeOf(0))
	require.NoError(t, err)
	assert.Equal(t, 255, got)
}

func TestConvert_Idempotent(t *testing.T) {
	tbl := convert.NewTable()
	intType := reflect.TypeOf(0)

	once, err := tbl.Convert("42", intType)
	require.NoError(t, err)

	// Converting an already-converted value returns it unchanged.
	twice, err := tbl.Convert(once, intType)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestConvert_Failure(t *testing.T) {
	tbl := convert.NewTable()

	_, err := tbl.Convert("not a number", reflect.TypeOf(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrConvertFailed)
	// The error names the source/target types and offending value.
	assert.Contains(t, err.Error(), "not a number")
	assert.Contains(t, err.Error(), "int")

	_, err = tbl.Convert(struct{}{}, reflect.TypeOf(0))
	assert.ErrorIs(t, err, errcode.ErrNoConverter)

	_, err = tbl.Convert(nil, reflect.TypeOf(0))
	assert.ErrorIs(t, err, errcode.ErrConvertBadType)
}

func TestConvert_NumericCrossKinds(t *testing.T) {
	tbl := convert.NewTable()

	got, err := tbl.Convert(int64(7), reflect.TypeOf(float64(0)))
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)
}

func TestConvert_RegisterAndList(t *testing.T) {
	tbl := convert.NewTable()

	type celsius float64
	tbl.Register(reflect.TypeOf(""), reflect.TypeOf(celsius(0)), func(v interface{}) (interface{}, error) {
		f, err := tbl.Convert(v, reflect.TypeOf(float64(0)))
		if err != nil {
			return nil, err
		}
		return celsius(f.(float64)), nil
	})

	got, err := tbl.Convert("19.5", reflect.TypeOf(celsius(0)))
	require.NoError(t, err)
	assert.Equal(t, celsius(19.5), got)

	// The table is listable for introspection.
	pairs := tbl.Pairs()
	assert.NotEmpty(t, pairs)
	found := false
	for _, p := range pairs {
		if p.From == "string" && p.To == "convert_test.celsius" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestConvertTo_Generic(t *testing.T) {
	tbl := convert.NewTable()
	n, err := convert.ConvertTo[int](tbl, "17")
	require.NoError(t, err)
	assert.Equal(t, 17, n)
}
