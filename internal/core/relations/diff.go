// Package relations tracks pending membership changes for a relation owned by
// an aggregate (likes, reposts, mentions, follows, blocks).
package relations

import "slices"

// Diff is an ordered add-set and remove-set of keys. The last call for a key
// wins: Add after Remove cancels the removal, and vice versa. A key is never
// present in both sets, and never twice in one set.
//
// The zero value is ready to use.
type Diff[K comparable] struct {
	toAdd    []K
	toRemove []K
}

// Add records that key should be a member after the next save.
func (d *Diff[K]) Add(key K) {
	d.toRemove = without(d.toRemove, key)
	if !slices.Contains(d.toAdd, key) {
		d.toAdd = append(d.toAdd, key)
	}
}

// Remove records that key should not be a member after the next save.
func (d *Diff[K]) Remove(key K) {
	d.toAdd = without(d.toAdd, key)
	if !slices.Contains(d.toRemove, key) {
		d.toRemove = append(d.toRemove, key)
	}
}

// Added returns the keys to add, in the order they were recorded.
func (d *Diff[K]) Added() []K {
	return slices.Clone(d.toAdd)
}

// Removed returns the keys to remove, in the order they were recorded.
func (d *Diff[K]) Removed() []K {
	return slices.Clone(d.toRemove)
}

// Changes is a snapshot of a Diff handed to repositories.
type Changes[K comparable] struct {
	Added   []K
	Removed []K
}

// IsEmpty reports whether the snapshot holds no changes.
func (c Changes[K]) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// Changes returns a copy of the pending changes.
func (d *Diff[K]) Changes() Changes[K] {
	return Changes[K]{Added: d.Added(), Removed: d.Removed()}
}

// IsEmpty reports whether there are no pending changes.
func (d *Diff[K]) IsEmpty() bool {
	return len(d.toAdd) == 0 && len(d.toRemove) == 0
}

// Reset drops all pending changes.
func (d *Diff[K]) Reset() {
	d.toAdd = nil
	d.toRemove = nil
}

func without[K comparable](keys []K, key K) []K {
	idx := slices.Index(keys, key)
	if idx < 0 {
		return keys
	}
	return slices.Delete(keys, idx, idx+1)
}
