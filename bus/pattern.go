package bus

import (
	"strings"

	"github.com/openhaus/automate/errcode"
)

// A subscription pattern matches either the event's topic exactly or,
// for entity-scoped subscriptions, the event's entity id segment-wise:
// "*" matches exactly one dot-delimited segment, matching is case
// sensitive, and there is no recursive "**" form. "light.kitchen" is
// both a valid exact topic and a valid entity pattern, so a parsed
// pattern is tried against both routing keys.
type pattern struct {
	raw      string
	segments []string
	wildcard bool
}

func parsePattern(raw string) (pattern, error) {
	if raw == "" {
		return pattern{}, errcode.ErrBadPattern.WithMsgf("topic pattern must not be empty")
	}
	segments := strings.Split(raw, ".")
	wildcard := false
	for _, seg := range segments {
		if seg == "" {
			return pattern{}, errcode.ErrBadPattern.WithMsgf(
				"pattern %q has an empty segment", raw)
		}
		if seg == "*" {
			wildcard = true
			continue
		}
		if strings.Contains(seg, "*") {
			// "**" and in-segment globs like "kit*" are rejected here so
			// the mistake surfaces at subscribe time.
			return pattern{}, errcode.ErrBadPattern.WithMsgf(
				"pattern %q: %q is not a valid segment, * must stand alone", raw, seg)
		}
	}
	return pattern{raw: raw, segments: segments, wildcard: wildcard}, nil
}

// MatchPattern reports whether a concrete routing key matches a
// subscription pattern, using the bus's glob rules. The error reports a
// malformed pattern.
func MatchPattern(patternStr, key string) (bool, error) {
	p, err := parsePattern(patternStr)
	if err != nil {
		return false, err
	}
	return p.matchKey(key), nil
}

// matchKey tests the pattern against one concrete routing key.
func (p pattern) matchKey(key string) bool {
	if key == "" {
		return false
	}
	if !p.wildcard {
		return p.raw == key
	}
	parts := strings.Split(key, ".")
	if len(parts) != len(p.segments) {
		return false
	}
	for i, seg := range p.segments {
		if seg == "*" {
			continue
		}
		if seg != parts[i] {
			return false
		}
	}
	return true
}

// matches tests the pattern against an event. The candidate keys are the
// bare topic, topic-qualified entity ("state_changed.light.kitchen") and
// the bare entity id ("light.kitchen").
func (p pattern) matches(ev *Event) bool {
	if p.matchKey(ev.Topic) {
		return true
	}
	if entity := ev.EntityID(); entity != "" {
		if p.matchKey(entity) {
			return true
		}
		if p.matchKey(ev.Topic + "." + entity) {
			return true
		}
	}
	return false
}
