// Package users owns the user population: the id index, the iteration
// snapshot used by scans, named user sets and the per-user lock pool.
package users

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/groups"
	"github.com/verte-zerg/topy/internal/schema"
)

// LockPoolSize is the number of mutexes shared by all users. Two ids may
// alias to the same mutex.
const LockPoolSize = 1024

// Directory indexes users by id and keeps the snapshot iterated by scans.
//
// New users are appended to the snapshot when its lock is free and queued
// otherwise, so creating a user never waits for a running scan. The queue is
// merged the next time the snapshot lock is taken.
type Directory struct {
	kind   IDKind
	schema *schema.Schema
	groups *groups.Registry
	env    *field.Env

	locks [LockPoolSize]sync.Mutex

	mu   sync.RWMutex
	byID map[string]*User

	all *Set

	pendingMu sync.Mutex
	pending   []*User

	defsOnce sync.Once
	defs     []schema.Def
}

// NewDirectory returns an empty directory.
func NewDirectory(kind IDKind, s *schema.Schema, g *groups.Registry, env *field.Env) *Directory {
	return &Directory{
		kind:   kind,
		schema: s,
		groups: g,
		env:    env,
		byID:   map[string]*User{},
		all:    &Set{},
	}
}

// Kind returns the id kind.
func (d *Directory) Kind() IDKind { return d.kind }

// Schema returns the field schema.
func (d *Directory) Schema() *schema.Schema { return d.schema }

// Groups returns the group registry.
func (d *Directory) Groups() *groups.Registry { return d.groups }

// Env returns the field environment.
func (d *Directory) Env() *field.Env { return d.env }

func (d *Directory) frozenDefs() []schema.Def {
	d.defsOnce.Do(func() { d.defs = d.schema.Use() })
	return d.defs
}

func (d *Directory) fieldNames(n int) []string {
	defs := d.frozenDefs()
	if n > len(defs) {
		n = len(defs)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = defs[i].Name
	}
	return out
}

func (d *Directory) allocFields() []field.Field {
	defs := d.frozenDefs()
	fields := make([]field.Field, len(defs))
	for i, def := range defs {
		fields[i] = field.New(def.Kind, d.env)
	}
	return fields
}

func (d *Directory) lockFor(id string) *sync.Mutex {
	return &d.locks[xxhash.Sum64String(id)&(LockPoolSize-1)]
}

func (d *Directory) newUser(id string) *User {
	return &User{id: id, fields: d.allocFields(), mu: d.lockFor(id), dir: d}
}

// Count returns the number of indexed users, tombstones included.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// Find returns the live user for a protocol id, or nil.
func (d *Directory) Find(raw string) *User {
	d.mu.RLock()
	u := d.byID[d.kind.Normalize(raw)]
	d.mu.RUnlock()
	if u == nil {
		return nil
	}
	u.Lock()
	deleted := u.deleted
	u.Unlock()
	if deleted {
		return nil
	}
	return u
}

// Open returns the user locked, or nil when it does not exist. With create,
// a missing user is created and a tombstoned one is revived. Ids longer than
// MaxIDLen are never created. The caller must Unlock the returned user.
func (d *Directory) Open(raw string, create bool) *User {
	id := d.kind.Normalize(raw)
	if len(id) > MaxIDLen {
		return nil
	}
	d.mu.RLock()
	u := d.byID[id]
	d.mu.RUnlock()

	if u == nil {
		if !create {
			return nil
		}
		u = d.insert(id)
	}
	u.Lock()
	if u.deleted {
		if !create {
			u.Unlock()
			return nil
		}
		u.Undelete()
	}
	return u
}

func (d *Directory) insert(id string) *User {
	d.mu.Lock()
	if u, ok := d.byID[id]; ok {
		d.mu.Unlock()
		return u
	}
	u := d.newUser(id)
	d.byID[id] = u
	d.mu.Unlock()

	if d.all.mu.TryLock() {
		d.mergeLocked()
		d.all.list = append(d.all.list, u)
		d.all.mu.Unlock()
	} else {
		d.pendingMu.Lock()
		d.pending = append(d.pending, u)
		d.pendingMu.Unlock()
	}
	return u
}

// Restore inserts a user decoded from a dump. It is only used while the
// directory is not yet served.
func (d *Directory) Restore(u *User) {
	d.mu.Lock()
	d.byID[u.id] = u
	d.mu.Unlock()
	d.all.mu.Lock()
	d.all.list = append(d.all.list, u)
	d.all.mu.Unlock()
}

func (d *Directory) mergeLocked() {
	d.pendingMu.Lock()
	d.all.list = append(d.all.list, d.pending...)
	d.pending = nil
	d.pendingMu.Unlock()
}

// All merges the queued users and returns the full snapshot.
func (d *Directory) All() *Set {
	d.all.mu.Lock()
	d.mergeLocked()
	d.all.mu.Unlock()
	return d.all
}

// Snapshot returns a copy of the live users for dumping.
func (d *Directory) Snapshot() []*User {
	all := d.All()
	all.mu.Lock()
	defer all.mu.Unlock()
	out := make([]*User, 0, len(all.list))
	for _, u := range all.list {
		u.Lock()
		if !u.deleted {
			out = append(out, u)
		}
		u.Unlock()
	}
	return out
}

// ResetGroups sets every user back to the undefined group.
func (d *Directory) ResetGroups() {
	d.resetGroups(func(uint32) bool { return true })
}

// ResetGroup moves the members of group id back to the undefined group.
func (d *Directory) ResetGroup(id uint32) {
	d.resetGroups(func(g uint32) bool { return g == id })
}

func (d *Directory) resetGroups(match func(uint32) bool) {
	all := d.All()
	all.mu.Lock()
	defer all.mu.Unlock()
	for _, u := range all.list {
		u.Lock()
		if match(u.Group) {
			u.Group = groups.Undefined
		}
		u.Unlock()
	}
}

// GroupStats renders "name\t#id\tcount" lines ordered by group id.
func (d *Directory) GroupStats() string {
	counts := map[uint32]int{}
	all := d.All()
	all.mu.Lock()
	for _, u := range all.list {
		u.Lock()
		if !u.deleted {
			counts[u.Group]++
		}
		u.Unlock()
	}
	all.mu.Unlock()

	ids := make([]uint32, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		name := "UNDEFINED"
		if id != groups.Undefined {
			name = d.groups.Name(id)
		}
		lines = append(lines, fmt.Sprintf("%s\t#%d\t%d", name, id, counts[id]))
	}
	return strings.Join(lines, "\n")
}

// Debug reports the sizes of the internal structures.
func (d *Directory) Debug() string {
	d.all.mu.Lock()
	size, capacity := len(d.all.list), cap(d.all.list)
	d.all.mu.Unlock()
	d.pendingMu.Lock()
	pending := len(d.pending)
	d.pendingMu.Unlock()
	return fmt.Sprintf("snapshot size: %d\nsnapshot capacity: %d\npending users: %d\nindexed users: %d\n",
		size, capacity, pending, d.Count())
}
