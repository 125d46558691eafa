// Package groups implements the named group registry used to segment users.
//
// A group is a leaf (mask 0, matched by exact id) or a class whose members
// satisfy (id & mask) == group id.
package groups

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/phpser"
)

// Undefined is the group of users without one.
const Undefined uint32 = 0

// Unknown is returned for lookups that fail.
const Unknown uint32 = ^uint32(0)

// GroupMagic prefixes every group of a binary dump.
const GroupMagic = 1984

// Group is an id and mask pair. It doubles as a filter.
type Group struct {
	ID   uint32
	Mask uint32
}

// Match reports whether a user group value satisfies g.
func (g Group) Match(group uint32) bool {
	if g.Mask == 0 {
		return group == g.ID
	}
	return group&g.Mask == g.ID
}

// Entry is a named group.
type Entry struct {
	Name string
	Group
}

// Registry maps names to groups. Ids are allocated from a counter that
// starts at 1 and never goes back.
type Registry struct {
	mu      sync.Mutex
	list    map[string]Group
	counter uint32
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{list: map[string]Group{}, counter: 1}
}

// Add creates a leaf group with the next id. An existing name keeps its id.
func (r *Registry) Add(name string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.list[name]; ok {
		return g.ID
	}
	id := r.counter
	r.list[name] = Group{ID: id}
	r.counter++
	return id
}

// AddWithID creates a group with an explicit id and mask. An existing name
// keeps its definition.
func (r *Registry) AddWithID(name string, id, mask uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.list[name]; ok {
		return g.ID
	}
	r.list[name] = Group{ID: id, Mask: mask}
	return id
}

// Restore inserts a dumped group and moves the counter past its id.
func (r *Registry) Restore(name string, id, mask uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.list[name]; !ok {
		r.list[name] = Group{ID: id, Mask: mask}
	}
	if r.counter <= id && id != Unknown {
		r.counter = id + 1
	}
}

// Delete removes name and returns its id, or Unknown.
func (r *Registry) Delete(name string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.list[name]
	if !ok {
		return Unknown
	}
	delete(r.list, name)
	return g.ID
}

// Clear removes every group and resets the counter.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = map[string]Group{}
	r.counter = 1
}

// Get returns the group called name, or {Unknown, 0}.
func (r *Registry) Get(name string) Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.list[name]
	if !ok {
		return Group{ID: Unknown}
	}
	return g
}

// Len returns the number of groups.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.list)
}

// Entries returns the groups sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entriesLocked()
}

func (r *Registry) entriesLocked() []Entry {
	out := make([]Entry, 0, len(r.list))
	for name, g := range r.list {
		out = append(out, Entry{Name: name, Group: g})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Name renders a user group value: the leaf name, or the "+" joined names
// of every class it belongs to.
func (r *Registry) Name(id uint32) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entriesLocked()
	for _, e := range entries {
		if e.ID == id {
			if e.Mask == 0 {
				return e.Name
			}
			break
		}
	}
	var names []string
	for _, e := range entries {
		if e.Mask != 0 && id&e.Mask == e.ID {
			names = append(names, e.Name)
		}
	}
	return strings.Join(names, "+")
}

// ParseFilter resolves "a+b+..." into a single filter. A leaf name short
// circuits to that group. Any unknown name yields {Unknown, 0}.
func (r *Registry) ParseFilter(s string) Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	var filter Group
	for _, part := range strings.Split(s, "+") {
		g, ok := r.list[part]
		if !ok {
			return Group{ID: Unknown}
		}
		if g.Mask == 0 {
			return g
		}
		filter.Mask |= g.Mask
		filter.ID |= g.ID
	}
	return filter
}

// AppendPHP appends the list of {name, id, mask}.
func (r *Registry) AppendPHP(b []byte) []byte {
	entries := r.Entries()
	b = phpser.AppendArray(b, len(entries))
	for i, e := range entries {
		b = phpser.AppendIndex(b, i)
		b = phpser.AppendArray(b, 3)
		b = phpser.AppendKey(b, "name")
		b = phpser.AppendString(b, e.Name)
		b = phpser.AppendKey(b, "id")
		b = phpser.AppendUint(b, uint64(e.ID))
		b = phpser.AppendKey(b, "mask")
		b = phpser.AppendUint(b, uint64(e.Mask))
		b = append(b, '}')
	}
	return append(b, '}')
}

// Show renders one "name\t#id[\t(mask: m)]" line per group.
func (r *Registry) Show() string {
	var sb strings.Builder
	for i, e := range r.Entries() {
		if i != 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.Name)
		sb.WriteString("\t#")
		sb.WriteString(strconv.FormatUint(uint64(e.ID), 10))
		if e.Mask != 0 {
			sb.WriteString("\t(mask: ")
			sb.WriteString(strconv.FormatUint(uint64(e.Mask), 10))
			sb.WriteByte(')')
		}
	}
	return sb.String()
}

// AppendText appends the G{...} section of a text dump.
func AppendText(b []byte, entries []Entry) []byte {
	b = append(b, "G{"...)
	b = strconv.AppendInt(b, int64(len(entries)), 10)
	b = append(b, ":\n"...)
	for _, e := range entries {
		b = append(b, "g{"...)
		b = codec.AppendQuoted(b, e.Name)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(e.ID), 10)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(e.Mask), 10)
		b = append(b, "}\n"...)
	}
	return append(b, "}\n"...)
}

// ParseText reads a G{...} section.
func ParseText(p *codec.Parser) ([]Entry, error) {
	if err := p.Expect("G{"); err != nil {
		return nil, err
	}
	count := p.ReadInt()
	if count < 0 {
		return nil, p.Errorf("invalid groups count")
	}
	if err := p.Expect(":\n"); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, count)
	for i := int64(0); i < count; i++ {
		if err := p.Expect("g{"); err != nil {
			return nil, err
		}
		name, err := p.ReadString()
		if err != nil {
			return nil, err
		}
		if err := p.Expect(":"); err != nil {
			return nil, err
		}
		id := uint32(p.ReadUint())
		if err := p.Expect(":"); err != nil {
			return nil, err
		}
		mask := uint32(p.ReadUint())
		if err := p.Expect("}\n"); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: name, Group: Group{ID: id, Mask: mask}})
	}
	if err := p.Expect("}\n"); err != nil {
		return nil, err
	}
	return entries, nil
}

// DumpBinary writes the groups of a binary dump.
func DumpBinary(w *codec.Writer, entries []Entry) {
	w.Uint32(uint32(len(entries)))
	for _, e := range entries {
		w.Uint16(GroupMagic)
		w.String8(e.Name)
		w.Uint32(e.ID)
		w.Uint32(e.Mask)
	}
}

// ParseBinary reads the groups written by DumpBinary.
func ParseBinary(r *codec.Reader) ([]Entry, error) {
	count, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for i := uint32(0); i < count; i++ {
		magic, err := r.Uint16()
		if err != nil {
			return nil, err
		}
		if magic != GroupMagic {
			return nil, &codec.FormatError{Msg: "invalid group magic number"}
		}
		name, err := r.String8()
		if err != nil {
			return nil, err
		}
		id, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		mask, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: name, Group: Group{ID: id, Mask: mask}})
	}
	return entries, nil
}
