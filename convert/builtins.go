package convert

import (
	"strconv"
	"strings"
	"time"
)

// The hub delivers state values and most attributes as strings, so the
// built-in table is biased towards string sources.
func (t *Table) registerBuiltins() {
	t.Register(typeOf[string](), typeOf[int](), func(v interface{}) (interface{}, error) {
		return strconv.Atoi(strings.TrimSpace(v.(string)))
	})
	t.Register(typeOf[string](), typeOf[int64](), func(v interface{}) (interface{}, error) {
		return strconv.ParseInt(strings.TrimSpace(v.(string)), 10, 64)
	})
	t.Register(typeOf[string](), typeOf[float64](), func(v interface{}) (interface{}, error) {
		return strconv.ParseFloat(strings.TrimSpace(v.(string)), 64)
	})
	t.Register(typeOf[string](), typeOf[bool](), func(v interface{}) (interface{}, error) {
		s := strings.ToLower(strings.TrimSpace(v.(string)))
		switch s {
		case "on", "yes", "open", "home", "active":
			return true, nil
		case "off", "no", "closed", "away", "inactive":
			return false, nil
		}
		return strconv.ParseBool(s)
	})
	t.Register(typeOf[string](), typeOf[time.Duration](), func(v interface{}) (interface{}, error) {
		return time.ParseDuration(strings.TrimSpace(v.(string)))
	})
	t.Register(typeOf[string](), typeOf[time.Time](), func(v interface{}) (interface{}, error) {
		return time.Parse(time.RFC3339, strings.TrimSpace(v.(string)))
	})

	t.Register(typeOf[int](), typeOf[string](), func(v interface{}) (interface{}, error) {
		return strconv.Itoa(v.(int)), nil
	})
	t.Register(typeOf[float64](), typeOf[string](), func(v interface{}) (interface{}, error) {
		return strconv.FormatFloat(v.(float64), 'f', -1, 64), nil
	})
	t.Register(typeOf[bool](), typeOf[string](), func(v interface{}) (interface{}, error) {
		return strconv.FormatBool(v.(bool)), nil
	})

	// JSON payloads decode numbers as float64; attribute consumers mostly
	// want ints.
	t.Register(typeOf[float64](), typeOf[int](), func(v interface{}) (interface{}, error) {
		return int(v.(float64)), nil
	})
	t.Register(typeOf[int](), typeOf[float64](), func(v interface{}) (interface{}, error) {
		return float64(v.(int)), nil
	})
}
