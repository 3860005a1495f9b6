// Package envplan holds the ordered set of environment assignments a
// bootstrap run produces and applies it to a process environment in one
// all-or-nothing step.
package envplan

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Assignment is a single KEY=VALUE pair.
type Assignment struct {
	Key   string
	Value string
}

// Vars is an ordered set of assignments with unique keys. The zero value is
// an empty set ready to use.
type Vars struct {
	items []Assignment
	index map[string]int
}

// Set appends key=value. Assigning a key that is already present fails with
// InvalidAssignment.
func (v *Vars) Set(key, value string) error {
	if v.index == nil {
		v.index = make(map[string]int)
	}
	if _, dup := v.index[key]; dup {
		return invalid(key, "assigned more than once", nil)
	}
	v.index[key] = len(v.items)
	v.items = append(v.items, Assignment{Key: key, Value: value})
	return nil
}

// Get returns the value assigned to key.
func (v Vars) Get(key string) (string, bool) {
	i, ok := v.index[key]
	if !ok {
		return "", false
	}
	return v.items[i].Value, true
}

// Len returns the number of assignments.
func (v Vars) Len() int { return len(v.items) }

// Assignments returns a copy of the assignments in insertion order.
func (v Vars) Assignments() []Assignment {
	out := make([]Assignment, len(v.items))
	copy(out, v.items)
	return out
}

// Keys returns the keys in insertion order.
func (v Vars) Keys() []string {
	keys := make([]string, len(v.items))
	for i, a := range v.items {
		keys[i] = a.Key
	}
	return keys
}

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that a can be stored in a process environment and
// written to a shell export file.
func Validate(a Assignment) error {
	switch {
	case a.Key == "":
		return invalid(a.Key, "empty key", nil)
	case strings.ContainsAny(a.Key, "=\x00"):
		return invalid(a.Key, "key contains '=' or NUL", nil)
	case !keyPattern.MatchString(a.Key):
		return invalid(a.Key, "key is not a valid variable name", nil)
	case strings.ContainsRune(a.Value, 0):
		return invalid(a.Key, "value contains NUL", nil)
	}
	return nil
}

// AugmentPath returns base with dirs prepended, in order. Directories
// already present earlier in the result are skipped, so the inherited
// entries are kept but never duplicated ahead of themselves.
func AugmentPath(dirs []string, base string) string {
	seen := make(map[string]bool)
	var out []string
	add := func(d string) {
		if d == "" {
			return
		}
		key := filepath.Clean(d)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, d)
	}
	for _, d := range dirs {
		add(d)
	}
	for _, d := range filepath.SplitList(base) {
		add(d)
	}
	return strings.Join(out, string(filepath.ListSeparator))
}
