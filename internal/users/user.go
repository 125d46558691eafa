package users

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/filter"
	"github.com/verte-zerg/topy/internal/groups"
	"github.com/verte-zerg/topy/internal/phpser"
)

// User is one member of the population. Every method except ID, Lock and
// Unlock requires the user lock.
type User struct {
	id      string
	Group   uint32
	fields  []field.Field
	deleted bool

	mu  *sync.Mutex
	dir *Directory
}

// ID returns the canonical id.
func (u *User) ID() string { return u.id }

// Lock acquires the pooled mutex of the user.
func (u *User) Lock() { u.mu.Lock() }

// Unlock releases it.
func (u *User) Unlock() { u.mu.Unlock() }

// Deleted reports the tombstone flag.
func (u *User) Deleted() bool { return u.deleted }

// Field returns the field at id, or nil.
func (u *User) Field(id int) field.Field {
	if id < 0 || id >= len(u.fields) {
		return nil
	}
	return u.fields[id]
}

// Clear resets the group and every field.
func (u *User) Clear() {
	u.Group = groups.Undefined
	for _, f := range u.fields {
		f.Clear()
	}
}

// Delete tombstones the user and frees its fields. The directory keeps the
// entry so the id can be revived.
func (u *User) Delete() {
	u.fields = nil
	u.deleted = true
}

// Undelete reallocates empty fields and resets the group.
func (u *User) Undelete() {
	u.fields = u.dir.allocFields()
	u.Group = groups.Undefined
	u.deleted = false
}

// SetGroup assigns the group resolved from name. An empty name clears it.
func (u *User) SetGroup(name string) bool {
	if name == "" {
		u.Group = groups.Undefined
		return true
	}
	g := u.dir.groups.ParseFilter(name)
	if g.ID == groups.Unknown {
		return false
	}
	u.Group = g.ID
	return true
}

// GroupName renders the current group.
func (u *User) GroupName() string {
	return u.dir.groups.Name(u.Group)
}

// Context is the filter evaluation context of u.
func (u *User) Context() filter.Context {
	return filter.Context{Group: u.Group, ID: u.id, HasID: u.dir.kind == IDString}
}

// AppendID appends the PHP form of the id.
func (u *User) AppendID(b []byte) []byte {
	return u.dir.kind.AppendPHP(b, u.id)
}

// AppendPHP appends {id, group, <field>...} with every field brought up to date.
func (u *User) AppendPHP(b []byte) []byte {
	names := u.dir.fieldNames(len(u.fields))
	b = phpser.AppendArray(b, 2+len(names))
	b = phpser.AppendKey(b, "id")
	b = u.AppendID(b)
	b = phpser.AppendKey(b, "group")
	b = phpser.AppendUint(b, uint64(u.Group))
	for i, name := range names {
		b = phpser.AppendString(b, name)
		u.fields[i].Update()
		b = u.fields[i].AppendPHP(b)
	}
	return append(b, '}')
}

// Show renders the user for humans.
func (u *User) Show() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Id: %s\nGroup: #%d (%s)\n", u.id, u.Group, u.GroupName())
	for i, name := range u.dir.fieldNames(len(u.fields)) {
		f := u.fields[i]
		f.Update()
		fmt.Fprintf(&sb, "%s :\n=======(last update: %d)\n", name, f.LastUpdate())
		sb.WriteString(f.Show())
	}
	return sb.String()
}

// Summary renders one "\t name : value" chunk per field.
func (u *User) Summary() string {
	var sb strings.Builder
	for i, name := range u.dir.fieldNames(len(u.fields)) {
		sb.WriteString("\t ")
		sb.WriteString(name)
		sb.WriteString(" : ")
		sb.WriteString(u.fields[i].Summary())
	}
	return sb.String()
}

// dumpState returns what a dump records for u. A user deleted after the
// dump snapshot was taken is written blank.
func (u *User) dumpState() (uint32, []field.Field) {
	if u.deleted {
		return groups.Undefined, u.dir.allocFields()
	}
	return u.Group, u.fields
}

// AppendText appends the u{id:group:<fields>}\n record of a text dump.
func (u *User) AppendText(b []byte) []byte {
	group, fields := u.dumpState()
	b = append(b, "u{"...)
	b = u.dir.kind.appendText(b, u.id)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(group), 10)
	for _, f := range fields {
		b = append(b, ':')
		b = f.AppendText(b)
	}
	return append(b, "}\n"...)
}

// DumpBinary writes the id, the group and every field.
func (u *User) DumpBinary(w *codec.Writer) {
	group, fields := u.dumpState()
	u.dir.kind.dumpBinary(w, u.id)
	w.Uint32(group)
	for _, f := range fields {
		f.DumpBinary(w)
	}
}

// ParseText reads a u{...} record holding count fields. The trailing newline
// is left to the caller.
func (d *Directory) ParseText(p *codec.Parser, count int) (*User, error) {
	if err := p.Expect("u{"); err != nil {
		return nil, err
	}
	id, err := d.kind.parseText(p)
	if err != nil {
		return nil, err
	}
	if err := p.Expect(":"); err != nil {
		return nil, err
	}
	u := d.newUser(id)
	if count > len(u.fields) {
		return nil, p.Errorf("too many fields for user %s", id)
	}
	u.Group = uint32(p.ReadUint())
	for i := 0; i < count; i++ {
		if err := p.Expect(":"); err != nil {
			return nil, err
		}
		if err := u.fields[i].RestoreText(p); err != nil {
			return nil, err
		}
	}
	if err := p.Expect("}"); err != nil {
		return nil, err
	}
	return u, nil
}

// ParseBinary reads a user written by DumpBinary holding count fields.
func (d *Directory) ParseBinary(r *codec.Reader, count int) (*User, error) {
	id, err := d.kind.parseBinary(r)
	if err != nil {
		return nil, err
	}
	u := d.newUser(id)
	if count > len(u.fields) {
		return nil, &codec.FormatError{Msg: "too many fields for user " + id}
	}
	if u.Group, err = r.Uint32(); err != nil {
		return nil, err
	}
	for i := 0; i < count; i++ {
		if err := u.fields[i].RestoreBinary(r); err != nil {
			return nil, err
		}
	}
	return u, nil
}
