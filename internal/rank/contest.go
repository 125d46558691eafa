package rank

import (
	"sort"
	"sync"

	"github.com/verte-zerg/topy/internal/filter"
	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/users"
)

// DefaultLimit bounds a contest get without a limit.
const DefaultLimit = 128

// Contest holds a full ranking kept between requests.
type Contest struct {
	mu   sync.Mutex
	list []Item
}

// Generate replaces the ranking with the users of set matching f. Users
// whose field has no such rule are left out.
func (c *Contest) Generate(set *users.Set, f filter.Node, fieldID, rule int, inversed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = c.list[:0]
	set.Each(f, func(u *users.User) {
		score := u.Field(fieldID).Score(rule)
		if score == -1 {
			return
		}
		if inversed {
			score = -score
		}
		c.list = append(c.list, Item{User: u, Score: score})
	})
	sortItems(c.list)
	if inversed {
		inverse(c.list)
	}
}

// Size returns the number of ranked users.
func (c *Contest) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.list)
}

// Find returns the zero based position of u, or -1.
func (c *Contest) Find(u *users.User) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, it := range c.list {
		if it.User == u {
			return i
		}
	}
	return -1
}

// Clear empties the ranking.
func (c *Contest) Clear() {
	c.mu.Lock()
	c.list = nil
	c.mu.Unlock()
}

// AppendPHP appends limit items starting at from.
func (c *Contest) AppendPHP(b []byte, join []Join, from, limit int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return appendList(b, c.list, join, from, limit, len(c.list))
}

// AppendFindPHP appends {position, total} for u.
func (c *Contest) AppendFindPHP(b []byte, u *users.User) []byte {
	pos := c.Find(u)
	b = phpser.AppendArray(b, 2)
	b = phpser.AppendKey(b, "position")
	b = phpser.AppendInt(b, int64(pos))
	b = phpser.AppendKey(b, "total")
	b = phpser.AppendInt(b, int64(c.Size()))
	return append(b, '}')
}

// Contests is the registry of named contests.
type Contests struct {
	mu   sync.Mutex
	list map[string]*Contest
}

// NewContests returns an empty registry.
func NewContests() *Contests {
	return &Contests{list: map[string]*Contest{}}
}

// Find returns the contest called name, or nil.
func (r *Contests) Find(name string) *Contest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list[name]
}

// FindOrCreate returns the contest called name, creating it if needed.
func (r *Contests) FindOrCreate(name string) *Contest {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.list[name]
	if !ok {
		c = &Contest{}
		r.list[name] = c
	}
	return c
}

// Delete removes name and reports whether it existed.
func (r *Contests) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.list[name]; !ok {
		return false
	}
	delete(r.list, name)
	return true
}

// Sizes returns the contests sorted by name with their sizes.
func (r *Contests) Sizes() []users.NamedSize {
	r.mu.Lock()
	contests := make(map[string]*Contest, len(r.list))
	for name, c := range r.list {
		contests[name] = c
	}
	r.mu.Unlock()
	out := make([]users.NamedSize, 0, len(contests))
	for name, c := range contests {
		out = append(out, users.NamedSize{Name: name, Size: c.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
