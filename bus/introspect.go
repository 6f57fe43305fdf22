package bus

import "sort"

// ListenerInfo is the read-only listener view exposed to dashboards and
// test harnesses.
type ListenerInfo struct {
	ID       uint64
	Owner    string
	Pattern  string
	Handler  string
	Priority int
	Once     bool
	Source   string
	Metrics  MetricsSnapshot
}

// Listeners lists registered listeners, optionally filtered by owner
// (empty owner = all), ordered by id.
func (b *Bus) Listeners(owner string) []ListenerInfo {
	b.mu.RLock()
	var entries []*listenerEntry
	for _, es := range b.exact {
		entries = append(entries, es...)
	}
	entries = append(entries, b.globs...)
	b.mu.RUnlock()

	var out []ListenerInfo
	for _, e := range entries {
		if owner != "" && e.owner != owner {
			continue
		}
		out = append(out, ListenerInfo{
			ID:       e.id,
			Owner:    e.owner,
			Pattern:  e.pat.raw,
			Handler:  e.plan.HandlerName(),
			Priority: e.priority,
			Once:     e.once,
			Source:   e.source,
			Metrics:  e.metrics.Snapshot(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
