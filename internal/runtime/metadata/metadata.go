// Package metadata holds the string attributes carried beside a message
// payload.
package metadata

import (
	"maps"
	"slices"
)

// Metadata is the open key/value sidecar of a message.
type Metadata map[string]string

// Clone returns a shallow copy. A nil receiver yields an empty, non-nil map.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	maps.Copy(cloned, m)
	return cloned
}

// With returns a copy containing key=value.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// Merge returns a copy with entries layered on top.
func (m Metadata) Merge(entries Metadata) Metadata {
	cloned := m.Clone()
	maps.Copy(cloned, entries)
	return cloned
}

// Get returns the value stored under key and whether it was present.
func (m Metadata) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Keys returns the keys in lexical order.
func (m Metadata) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// New constructs Metadata from alternating key/value pairs. A trailing key
// without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
