package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhaus/automate/convert"
	"github.com/openhaus/automate/errcode"
	"github.com/openhaus/automate/state"
)

func TestDomainParsing(t *testing.T) {
	assert.Equal(t, "light", state.DomainOf("light.kitchen"))
	assert.Equal(t, "kitchen", state.ObjectIDOf("light.kitchen"))
	assert.Equal(t, "", state.DomainOf("nodomain"))
}

func TestResolve_BuiltinModels(t *testing.T) {
	r := state.NewRegistry(convert.NewTable())

	raw := state.New("light.kitchen", "on", map[string]interface{}{
		"brightness": 200,
		"color_temp": "370",
	})
	typed, err := r.Resolve(raw)
	require.NoError(t, err)

	light, ok := typed.(*state.Light)
	require.True(t, ok)
	assert.True(t, light.On)
	assert.Equal(t, 200, light.Brightness)
	assert.Equal(t, 370, light.ColorTemp)
	assert.Same(t, raw, light.Raw())
}

func TestResolve_Sensor(t *testing.T) {
	r := state.NewRegistry(convert.NewTable())

	raw := state.New("sensor.outside_temp", "19.5", map[string]interface{}{
		"unit_of_measurement": "°C",
	})
	typed, err := r.Resolve(raw)
	require.NoError(t, err)

	sensor := typed.(*state.Sensor)
	assert.Equal(t, 19.5, sensor.Value)
	assert.Equal(t, "°C", sensor.Unit)
}

func TestResolve_UnknownDomain(t *testing.T) {
	r := state.NewRegistry(convert.NewTable())

	_, err := r.Resolve(state.New("vacuum.roomba", "cleaning", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrUnionUnmatched)

	_, err = r.Resolve(nil)
	assert.ErrorIs(t, err, errcode.ErrUnionUnmatched)
}

type coverModel struct {
	raw  *state.State
	Open bool
}

func (c *coverModel) TypedDomain() string { return "cover" }
func (c *coverModel) Raw() *state.State   { return c.raw }

func TestRegisterDomain_Extension(t *testing.T) {
	r := state.NewRegistry(convert.NewTable())

	r.RegisterDomain("cover", (*coverModel)(nil), func(raw *state.State) (state.Typed, error) {
		return &coverModel{raw: raw, Open: raw.Value == "open"}, nil
	})

	typed, err := r.Resolve(state.New("cover.garage", "open", nil))
	require.NoError(t, err)
	assert.True(t, typed.(*coverModel).Open)

	domains := r.Domains()
	assert.Contains(t, domains, "cover")
	assert.Contains(t, domains, "light")

	typ, ok := r.TypeFor("cover")
	require.True(t, ok)
	domain, ok := r.DomainFor(typ)
	require.True(t, ok)
	assert.Equal(t, "cover", domain)
}
