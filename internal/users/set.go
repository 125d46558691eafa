package users

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/filter"
	"github.com/verte-zerg/topy/internal/phpser"
)

// Set is an ordered list of users iterated by scans. The directory snapshot
// and every named set share this type.
type Set struct {
	mu   sync.Mutex
	list []*User
}

// NewSet builds a set from explicit users.
func NewSet(list []*User) *Set {
	return &Set{list: list}
}

// Len returns the number of entries, tombstones included.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

// Each calls fn for every live user matching f while holding that user's
// lock. A nil filter matches everyone.
func (s *Set) Each(f filter.Node, fn func(u *User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.list {
		u.Lock()
		if !u.deleted && (f == nil || f.Match(u.Context())) {
			fn(u)
		}
		u.Unlock()
	}
}

// Count returns the number of matching users.
func (s *Set) Count(f filter.Node) int {
	n := 0
	s.Each(f, func(*User) { n++ })
	return n
}

// CountActive counts matching users whose field was updated after limit.
func (s *Set) CountActive(f filter.Node, fieldID int, limit int64) (active, total int) {
	s.Each(f, func(u *User) {
		total++
		if u.fields[fieldID].LastUpdate() > limit {
			active++
		}
	})
	return active, total
}

// Cleanup deletes matching users whose field was last updated before limit.
func (s *Set) Cleanup(f filter.Node, fieldID int, limit int64) (deleted, total int) {
	s.Each(f, func(u *User) {
		total++
		if u.fields[fieldID].LastUpdate() < limit {
			deleted++
			u.Delete()
		}
	})
	return deleted, total
}

// ClearField resets one field of every matching user.
func (s *Set) ClearField(f filter.Node, fieldID int) {
	s.Each(f, func(u *User) { u.fields[fieldID].Clear() })
}

// Report folds one field of every matching user into the aggregator for
// kind. It returns false when kind has no aggregator.
func (s *Set) Report(f filter.Node, fieldID int, kind field.Kind) (field.Report, bool) {
	report, ok := field.NewReport(kind)
	if !ok {
		return nil, false
	}
	s.Each(f, func(u *User) { report.Add(u.fields[fieldID]) })
	return report, true
}

// SelectInto replaces the contents of dst with the matching users of s.
func (s *Set) SelectInto(f filter.Node, dst *Set) {
	var list []*User
	s.Each(f, func(u *User) { list = append(list, u) })
	dst.mu.Lock()
	dst.list = list
	dst.mu.Unlock()
}

// Sets is the registry of named user sets.
type Sets struct {
	mu   sync.Mutex
	list map[string]*Set
}

// NewSets returns an empty registry.
func NewSets() *Sets {
	return &Sets{list: map[string]*Set{}}
}

// Find returns the set called name, or nil.
func (r *Sets) Find(name string) *Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list[name]
}

// FindOrCreate returns the set called name, creating it empty if needed.
func (r *Sets) FindOrCreate(name string) *Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.list[name]
	if !ok {
		s = &Set{}
		r.list[name] = s
	}
	return s
}

// Delete removes name and reports whether it existed.
func (r *Sets) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.list[name]; !ok {
		return false
	}
	delete(r.list, name)
	return true
}

// Sizes returns the sets sorted by name with their sizes.
func (r *Sets) Sizes() []NamedSize {
	r.mu.Lock()
	out := make([]NamedSize, 0, len(r.list))
	sets := make(map[string]*Set, len(r.list))
	for name, s := range r.list {
		sets[name] = s
	}
	r.mu.Unlock()
	for name, s := range sets {
		out = append(out, NamedSize{Name: name, Size: s.Len()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NamedSize is a list entry of a sets or contests registry.
type NamedSize struct {
	Name string
	Size int
}

// ShowSizes renders "name\tsize" lines.
func ShowSizes(list []NamedSize) string {
	lines := make([]string, len(list))
	for i, e := range list {
		lines[i] = e.Name + "\t" + strconv.Itoa(e.Size)
	}
	return strings.Join(lines, "\n")
}

// AppendSizesPHP appends a:N:{i:k;a:2:{name, count}...}.
func AppendSizesPHP(b []byte, list []NamedSize) []byte {
	b = phpser.AppendArray(b, len(list))
	for i, e := range list {
		b = phpser.AppendIndex(b, i)
		b = phpser.AppendArray(b, 2)
		b = phpser.AppendKey(b, "name")
		b = phpser.AppendString(b, e.Name)
		b = phpser.AppendKey(b, "count")
		b = phpser.AppendInt(b, int64(e.Size))
		b = append(b, '}')
	}
	return append(b, '}')
}
