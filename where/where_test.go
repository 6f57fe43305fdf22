package where_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhaus/automate/bus"
	"github.com/openhaus/automate/state"
	"github.com/openhaus/automate/where"
)

func stateChangeEvent(entityID, oldVal, newVal string, newAttrs map[string]interface{}) *bus.Event {
	var old *state.State
	if oldVal != "" {
		old = state.New(entityID, oldVal, nil)
	}
	var new_ *state.State
	if newVal != "" {
		new_ = state.New(entityID, newVal, newAttrs)
	}
	return bus.NewStateChanged(entityID, old, new_)
}

func TestMatchers_Strings(t *testing.T) {
	assert.True(t, where.Prefix("kit")("kitchen"))
	assert.False(t, where.Prefix("kit")("bathroom"))
	assert.True(t, where.Suffix("room")("bathroom"))
	assert.True(t, where.Contains("th")("bathroom"))
	assert.True(t, where.MustRegexp(`^light\..+`)("light.kitchen"))

	// String-only matchers never error on non-string input, they just
	// don't match.
	assert.False(t, where.Prefix("kit")(42))
	assert.False(t, where.Suffix("room")(nil))
	assert.False(t, where.Contains("th")([]string{"bathroom"}))
	assert.False(t, where.MustRegexp(`.*`)(3.14))
}

func TestMatchers_Numeric(t *testing.T) {
	assert.True(t, where.Gt(200)(250))
	assert.True(t, where.Gt(200)(250.5))
	assert.True(t, where.Gt(200)("250"))
	assert.False(t, where.Gt(200)(150))
	assert.False(t, where.Gt(200)("not a number"))
	assert.False(t, where.Gt(200)(nil))

	assert.True(t, where.Gte(200)(200))
	assert.False(t, where.Lt(200)(200))
	assert.True(t, where.Lte(200)(200))
}

func TestMatchers_Eq_CrossNumeric(t *testing.T) {
	assert.True(t, where.Eq(200)(200.0))
	assert.True(t, where.Eq("on")("on"))
	assert.False(t, where.Eq("on")("off"))
	assert.False(t, where.Eq("on")(where.Missing))

	assert.True(t, where.In("on", "off")("off"))
	assert.False(t, where.In("on", "off")("unavailable"))
}

func TestMatchers_Glob(t *testing.T) {
	m, err := where.Glob("light.*")
	require.NoError(t, err)
	assert.True(t, m("light.kitchen"))
	assert.False(t, m("switch.kitchen"))
	assert.False(t, m("light.kitchen.extra"))

	_, err = where.Glob("light.**")
	require.Error(t, err)
}

func TestPresentAndMissingAreDistinctFromNil(t *testing.T) {
	// nil attribute is present; nonexistent attribute is missing.
	ev := stateChangeEvent("light.kitchen", "off", "on",
		map[string]interface{}{"color_temp": nil})

	present := where.Cond(where.NewAttr("color_temp"), where.Present())
	missing := where.Cond(where.NewAttr("brightness"), where.Present())

	assert.True(t, present(ev))
	assert.False(t, missing(ev))

	// Absent is the exact complement.
	assert.False(t, where.Cond(where.NewAttr("color_temp"), where.Absent())(ev))
	assert.True(t, where.Cond(where.NewAttr("brightness"), where.Absent())(ev))
}

func TestExtractors(t *testing.T) {
	ev := stateChangeEvent("light.kitchen", "off", "on",
		map[string]interface{}{"brightness": 250})

	assert.Equal(t, "on", where.NewValue()(ev))
	assert.Equal(t, "off", where.OldValue()(ev))
	assert.Equal(t, 250, where.NewAttr("brightness")(ev))
	assert.Equal(t, "light.kitchen", where.EntityID()(ev))
	assert.True(t, where.IsMissing(where.OldAttr("brightness")(ev)))

	// Old state absent entirely.
	created := stateChangeEvent("light.kitchen", "", "on", nil)
	assert.True(t, where.IsMissing(where.OldValue()(created)))
}

func TestCombinators_BooleanLaws(t *testing.T) {
	ev := stateChangeEvent("light.kitchen", "off", "on", nil)

	yes := where.Guard(func(*bus.Event) bool { return true })
	no := where.Guard(func(*bus.Event) bool { return false })

	assert.True(t, where.AllOf(yes, yes)(ev))
	assert.False(t, where.AllOf(yes, no)(ev))
	assert.True(t, where.AnyOf(no, yes)(ev))
	assert.False(t, where.AnyOf(no, no)(ev))
	assert.True(t, where.Not(no)(ev))
	assert.True(t, where.AllOf()(ev))
	assert.False(t, where.AnyOf()(ev))
}

func TestCombinators_RandomizedTrees(t *testing.T) {
	ev := stateChangeEvent("light.kitchen", "off", "on", nil)
	rng := rand.New(rand.NewSource(1))

	// Build random leaf sets and check AllOf/AnyOf against the directly
	// computed conjunction/disjunction.
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(5)
		leaves := make([]bus.Predicate, n)
		all, any := true, false
		for j := 0; j < n; j++ {
			v := rng.Intn(2) == 0
			leaves[j] = where.Guard(func(*bus.Event) bool { return v })
			all = all && v
			any = any || v
		}
		assert.Equal(t, all, where.AllOf(leaves...)(ev))
		assert.Equal(t, any, where.AnyOf(leaves...)(ev))
		assert.Equal(t, !all, where.Not(where.AllOf(leaves...))(ev))
	}
}

func TestAllOf_ShortCircuits(t *testing.T) {
	ev := stateChangeEvent("light.kitchen", "off", "on", nil)

	evaluated := false
	spy := where.Guard(func(*bus.Event) bool { evaluated = true; return true })
	no := where.Guard(func(*bus.Event) bool { return false })

	where.AllOf(no, spy)(ev)
	assert.False(t, evaluated, "AllOf must stop at the first false child")

	yes := where.Guard(func(*bus.Event) bool { return true })
	where.AnyOf(yes, spy)(ev)
	assert.False(t, evaluated, "AnyOf must stop at the first true child")
}

func TestServiceData(t *testing.T) {
	ev := bus.NewServiceCall("light", "turn_on", map[string]interface{}{
		"entity_id":  []interface{}{"light.kitchen"},
		"brightness": 255,
	})

	// A configured scalar matches a delivered list if it equals any
	// element.
	assert.True(t, where.ServiceData(map[string]interface{}{
		"entity_id": "light.kitchen",
	})(ev))
	assert.False(t, where.ServiceData(map[string]interface{}{
		"entity_id": "light.hallway",
	})(ev))

	assert.True(t, where.ServiceData(map[string]interface{}{
		"brightness": 255,
	})(ev))

	// AnyValue requires presence only.
	assert.True(t, where.ServiceData(map[string]interface{}{
		"brightness": where.AnyValue,
	})(ev))
	assert.False(t, where.ServiceData(map[string]interface{}{
		"transition": where.AnyValue,
	})(ev))

	// Non-service-call events never match.
	sc := stateChangeEvent("light.kitchen", "off", "on", nil)
	assert.False(t, where.ServiceData(map[string]interface{}{
		"brightness": where.AnyValue,
	})(sc))
}
