package state

import (
	"reflect"
)

// attrConverter is the slice of the conversion table the models need.
// *convert.Table satisfies it.
type attrConverter interface {
	Convert(value interface{}, to reflect.Type) (interface{}, error)
}

// Light is the typed model for the light domain.
type Light struct {
	raw        *State
	On         bool
	Brightness int
	ColorTemp  int
}

func (l *Light) TypedDomain() string { return "light" }
func (l *Light) Raw() *State         { return l.raw }

// Switch is the typed model for the switch domain.
type Switch struct {
	raw *State
	On  bool
}

func (s *Switch) TypedDomain() string { return "switch" }
func (s *Switch) Raw() *State         { return s.raw }

// Sensor is the typed model for numeric sensors.
type Sensor struct {
	raw   *State
	Value float64
	Unit  string
}

func (s *Sensor) TypedDomain() string { return "sensor" }
func (s *Sensor) Raw() *State         { return s.raw }

// BinarySensor is the typed model for the binary_sensor domain.
type BinarySensor struct {
	raw *State
	On  bool
}

func (s *BinarySensor) TypedDomain() string { return "binary_sensor" }
func (s *BinarySensor) Raw() *State         { return s.raw }

func registerBuiltins(r *Registry, tbl attrConverter) {
	boolType := reflect.TypeOf(false)
	intType := reflect.TypeOf(0)
	floatType := reflect.TypeOf(float64(0))

	toBool := func(v interface{}) bool {
		out, err := tbl.Convert(v, boolType)
		if err != nil {
			return false
		}
		return out.(bool)
	}
	toInt := func(v interface{}) int {
		out, err := tbl.Convert(v, intType)
		if err != nil {
			return 0
		}
		return out.(int)
	}

	r.RegisterDomain("light", (*Light)(nil), func(raw *State) (Typed, error) {
		m := &Light{raw: raw, On: toBool(raw.Value)}
		if v, ok := raw.Attr("brightness"); ok && v != nil {
			m.Brightness = toInt(v)
		}
		if v, ok := raw.Attr("color_temp"); ok && v != nil {
			m.ColorTemp = toInt(v)
		}
		return m, nil
	})

	r.RegisterDomain("switch", (*Switch)(nil), func(raw *State) (Typed, error) {
		return &Switch{raw: raw, On: toBool(raw.Value)}, nil
	})

	r.RegisterDomain("binary_sensor", (*BinarySensor)(nil), func(raw *State) (Typed, error) {
		return &BinarySensor{raw: raw, On: toBool(raw.Value)}, nil
	})

	r.RegisterDomain("sensor", (*Sensor)(nil), func(raw *State) (Typed, error) {
		m := &Sensor{raw: raw}
		out, err := tbl.Convert(raw.Value, floatType)
		if err == nil {
			m.Value = out.(float64)
		}
		if v, ok := raw.Attr("unit_of_measurement"); ok {
			if s, ok := v.(string); ok {
				m.Unit = s
			}
		}
		return m, nil
	})
}
