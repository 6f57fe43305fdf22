package where

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Eq matches values equal to want. Numeric values compare across types
// (an int 200 equals a float64 200).
func Eq(want interface{}) Matcher {
	return func(v interface{}) bool {
		if IsMissing(v) {
			return false
		}
		if wf, ok := toFloat(want); ok {
			if vf, ok := toFloat(v); ok {
				return wf == vf
			}
			return false
		}
		return reflect.DeepEqual(want, v)
	}
}

// In matches values equal to any of the configured options.
func In(options ...interface{}) Matcher {
	eqs := make([]Matcher, len(options))
	for i, o := range options {
		eqs[i] = Eq(o)
	}
	return func(v interface{}) bool {
		for _, eq := range eqs {
			if eq(v) {
				return true
			}
		}
		return false
	}
}

// Gt matches numeric values strictly greater than n. Values that cannot
// be read as numbers do not match.
func Gt(n float64) Matcher {
	return numCmp(n, func(v, n float64) bool { return v > n })
}

// Gte matches numeric values greater than or equal to n.
func Gte(n float64) Matcher {
	return numCmp(n, func(v, n float64) bool { return v >= n })
}

// Lt matches numeric values strictly less than n.
func Lt(n float64) Matcher {
	return numCmp(n, func(v, n float64) bool { return v < n })
}

// Lte matches numeric values less than or equal to n.
func Lte(n float64) Matcher {
	return numCmp(n, func(v, n float64) bool { return v <= n })
}

func numCmp(n float64, cmp func(v, n float64) bool) Matcher {
	return func(v interface{}) bool {
		f, ok := toFloat(v)
		if !ok {
			return false
		}
		return cmp(f, n)
	}
}

// Prefix matches string values with the given prefix. Non-string input
// does not match.
func Prefix(prefix string) Matcher {
	return strMatcher(func(s string) bool { return strings.HasPrefix(s, prefix) })
}

// Suffix matches string values with the given suffix.
func Suffix(suffix string) Matcher {
	return strMatcher(func(s string) bool { return strings.HasSuffix(s, suffix) })
}

// Contains matches string values containing the given substring.
func Contains(sub string) Matcher {
	return strMatcher(func(s string) bool { return strings.Contains(s, sub) })
}

// Regexp matches string values against a compiled expression. The
// expression is validated here, at build time.
func Regexp(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return strMatcher(re.MatchString), nil
}

// MustRegexp is Regexp panicking on a bad expression, for literals.
func MustRegexp(expr string) Matcher {
	m, err := Regexp(expr)
	if err != nil {
		panic(err)
	}
	return m
}

// Glob matches string values against a dot-segmented glob where *
// matches exactly one segment, the same rules the topic router uses.
func Glob(pattern string) (Matcher, error) {
	// Validate eagerly so a bad glob fails at build time.
	if _, err := matchGlob(pattern, "probe"); err != nil {
		return nil, err
	}
	return strMatcher(func(s string) bool {
		ok, _ := matchGlob(pattern, s)
		return ok
	}), nil
}

// MustGlob is Glob panicking on a bad pattern, for literals.
func MustGlob(pattern string) Matcher {
	m, err := Glob(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Present matches any existing value, including nil. Only the missing
// sentinel fails.
func Present() Matcher {
	return func(v interface{}) bool { return !IsMissing(v) }
}

// Absent is the exact complement of Present.
func Absent() Matcher {
	return func(v interface{}) bool { return IsMissing(v) }
}

func strMatcher(fn func(string) bool) Matcher {
	return func(v interface{}) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		return fn(s)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
