// Package keyset provides the string set used for dirty keys, suite
// baselines and altered keys.
package keyset

import "sort"

// Set is a set of Redis keys. The zero value is an empty, read-only set;
// use New before adding.
type Set map[string]struct{}

// New returns a Set holding keys.
func New(keys ...string) Set {
	s := make(Set, len(keys))
	s.AddAll(keys...)
	return s
}

// Add inserts key and reports whether it was absent.
func (s Set) Add(key string) bool {
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

// AddAll inserts every key.
func (s Set) AddAll(keys ...string) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

// Merge inserts every key of other.
func (s Set) Merge(other Set) {
	for k := range other {
		s[k] = struct{}{}
	}
}

func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s Set) Remove(key string) {
	delete(s, key)
}

func (s Set) Len() int {
	return len(s)
}

// Sorted returns the keys in ascending order.
func (s Set) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Diff returns the keys of s that are not in other.
func (s Set) Diff(other Set) Set {
	out := make(Set)
	for k := range s {
		if !other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Partition splits s into the keys in other and the keys not in it.
func (s Set) Partition(other Set) (in, out Set) {
	in, out = make(Set), make(Set)
	for k := range s {
		if other.Has(k) {
			in[k] = struct{}{}
		} else {
			out[k] = struct{}{}
		}
	}
	return in, out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
