// Package synonym maintains the disjoint synonym classes consulted during
// query expansion. Classes are defined administratively and read-only on
// the query path.
package synonym

import (
	"net/http"
	"sort"
	"sync"

	"github.com/quiver-search/quiver/pkg/errors"
)

// Table maps each term to its equivalence class. A term belongs to at most
// one class; overlapping definitions are rejected atomically.
type Table struct {
	mu      sync.RWMutex
	classOf map[string][]string // term -> shared, sorted member slice
}

// NewTable creates an empty synonym table.
func NewTable() *Table {
	return &Table{classOf: make(map[string][]string)}
}

// DefineClass registers a new equivalence class. It fails if any member
// already belongs to an existing class, or if fewer than two distinct
// members are given; on failure no partial class is created.
func (t *Table) DefineClass(members []string) error {
	distinct := make(map[string]struct{}, len(members))
	class := make([]string, 0, len(members))
	for _, m := range members {
		if m == "" {
			return errors.New(errors.ErrConfiguration, http.StatusBadRequest,
				"synonym class member must not be empty")
		}
		if _, dup := distinct[m]; dup {
			continue
		}
		distinct[m] = struct{}{}
		class = append(class, m)
	}
	if len(class) < 2 {
		return errors.New(errors.ErrConfiguration, http.StatusBadRequest,
			"synonym class needs at least two distinct members")
	}
	sort.Strings(class)

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range class {
		if _, taken := t.classOf[m]; taken {
			return errors.Newf(errors.ErrConfiguration, http.StatusBadRequest,
				"term %q already belongs to a synonym class", m)
		}
	}
	for _, m := range class {
		t.classOf[m] = class
	}
	return nil
}

// ClassOf returns the sorted members of term's class and whether term
// belongs to one. The returned slice is shared and must not be modified.
func (t *Table) ClassOf(term string) ([]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	class, ok := t.classOf[term]
	return class, ok
}

// Expand returns term plus every other member of its class, or just term if
// it has none.
func (t *Table) Expand(term string) []string {
	if class, ok := t.ClassOf(term); ok {
		return class
	}
	return []string{term}
}

// Classes returns every distinct class, sorted by first member. Used by the
// admin surface and snapshots.
func (t *Table) Classes() [][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := make(map[*string]struct{})
	var classes [][]string
	for _, class := range t.classOf {
		key := &class[0]
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i][0] < classes[j][0] })
	return classes
}

// Restore replaces the table contents with the given classes, validating
// disjointness. Used when loading a snapshot.
func (t *Table) Restore(classes [][]string) error {
	fresh := NewTable()
	for _, class := range classes {
		if err := fresh.DefineClass(class); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.classOf = fresh.classOf
	return nil
}
