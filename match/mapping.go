package match

import (
	"golang.org/x/exp/slices"
)

// Entry maps a single path prefix to the upstream origin that serves it.
type Entry struct {
	Prefix   string
	Upstream string
}

// Result describes a successful prefix lookup.
type Result struct {
	// Prefix is the mapping key that matched.
	Prefix string
	// Upstream is the origin configured for Prefix.
	Upstream string
	// Remainder is the requested path with Prefix removed. It is empty when
	// the path was exactly the prefix.
	Remainder string
}

// Mapping is an immutable table of path prefixes to upstream origins.
//
// When several prefixes match a path the longest one wins. Entries are also
// kept in their declared order, which decides the canonical prefix for an
// origin that is reachable under more than one prefix.
type Mapping struct {
	entries []Entry
	longest []Entry
}

// NewMapping creates a mapping from the given entries. Later entries with a
// prefix that has already been declared are ignored.
func NewMapping(entries ...Entry) *Mapping {
	m := &Mapping{}
	seen := make(map[string]bool, len(entries))
	for i := range entries {
		if seen[entries[i].Prefix] {
			continue
		}
		seen[entries[i].Prefix] = true
		m.entries = append(m.entries, entries[i])
	}

	m.longest = slices.Clone(m.entries)
	slices.SortStableFunc(m.longest, func(a, b Entry) int {
		return len(b.Prefix) - len(a.Prefix)
	})
	return m
}

// Lookup finds the longest prefix that path starts with.
func (m *Mapping) Lookup(path string) (Result, bool) {
	if m == nil {
		return Result{}, false
	}
	for i := range m.longest {
		e := m.longest[i]
		if PathStartsWith(path, e.Prefix) {
			return Result{
				Prefix:    e.Prefix,
				Upstream:  e.Upstream,
				Remainder: path[len(e.Prefix):],
			}, true
		}
	}
	return Result{}, false
}

// Upstream returns the origin registered for exactly the given prefix.
func (m *Mapping) Upstream(prefix string) (string, bool) {
	if m == nil {
		return "", false
	}
	for i := range m.entries {
		if m.entries[i].Prefix == prefix {
			return m.entries[i].Upstream, true
		}
	}
	return "", false
}

// Entries returns the entries in declaration order.
func (m *Mapping) Entries() []Entry {
	if m == nil {
		return nil
	}
	return slices.Clone(m.entries)
}

// Prefixes returns every prefix, longest first.
func (m *Mapping) Prefixes() []string {
	if m == nil {
		return nil
	}
	var res []string
	for i := range m.longest {
		res = append(res, m.longest[i].Prefix)
	}
	return res
}

// CanonicalPrefix returns the first declared prefix for the given origin.
func (m *Mapping) CanonicalPrefix(upstream string) (string, bool) {
	if m == nil {
		return "", false
	}
	for i := range m.entries {
		if m.entries[i].Upstream == upstream {
			return m.entries[i].Prefix, true
		}
	}
	return "", false
}
