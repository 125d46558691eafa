// Package rank orders users by a field score: a bounded Top(K) list for
// one-shot queries and an unbounded Contest kept between requests.
package rank

import (
	"sort"
	"strconv"
	"strings"

	"github.com/verte-zerg/topy/internal/filter"
	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/users"
)

// DefaultSize is the size of a top list when none is given.
const DefaultSize = 32

// JoinAll renders the whole field instead of one score.
const JoinAll = -2

// Item is a ranked user.
type Item struct {
	User  *users.User
	Score int64
}

// Join is one extra value rendered with every ranked user.
type Join struct {
	Field int
	Rule  int
}

func sortItems(list []Item) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Score > list[j].Score })
}

func inverse(list []Item) {
	for i := range list {
		list[i].Score = -list[i].Score
	}
}

// Top keeps the best size scores. Candidates are buffered up to twice the
// size, then sorted and truncated; once truncated, anything not better than
// the worst kept score is rejected on arrival. Only the list after Finalize
// is meaningful.
type Top struct {
	size       int
	list       []Item
	worse      int64
	worseSet   bool
	usersCount int
}

// NewTop returns an empty top list of the given size.
func NewTop(size int) *Top {
	return &Top{size: size}
}

func (t *Top) normalize() {
	sortItems(t.list)
	if len(t.list) > t.size {
		t.list = t.list[:t.size]
	}
	if len(t.list) > 0 {
		t.worse = t.list[len(t.list)-1].Score
		t.worseSet = true
	}
}

// Add offers a candidate. Every call counts towards UsersCount.
func (t *Top) Add(u *users.User, score int64) {
	t.usersCount++
	if t.worseSet && score <= t.worse {
		return
	}
	t.list = append(t.list, Item{User: u, Score: score})
	if len(t.list) > 2*t.size {
		t.normalize()
	}
}

// Finalize sorts and truncates the candidates.
func (t *Top) Finalize() {
	t.normalize()
}

// Inverse negates every score.
func (t *Top) Inverse() {
	inverse(t.list)
}

// Items returns the ranked list.
func (t *Top) Items() []Item { return t.list }

// UsersCount returns the number of candidates offered.
func (t *Top) UsersCount() int { return t.usersCount }

// Size returns the configured size.
func (t *Top) Size() int { return t.size }

// Scan ranks the users of set matching f. With inversed, lower scores rank
// first and are reported with their original sign.
func Scan(set *users.Set, f filter.Node, fieldID, rule int, inversed bool, size int) *Top {
	t := NewTop(size)
	set.Each(f, func(u *users.User) {
		score := u.Field(fieldID).Score(rule)
		if inversed {
			score = -score
		}
		t.Add(u, score)
	})
	t.Finalize()
	if inversed {
		t.Inverse()
	}
	return t
}

// AppendPHP appends {users_count, list} for the whole top list.
func (t *Top) AppendPHP(b []byte, join []Join) []byte {
	return appendList(b, t.list, join, 0, t.size, t.usersCount)
}

// Show renders one "user: id\tscore: n<summary>" line per item and the
// candidates count.
func (t *Top) Show() string {
	var sb strings.Builder
	for i, it := range t.list {
		if i >= t.size {
			break
		}
		it.User.Lock()
		sb.WriteString("user: ")
		sb.WriteString(it.User.ID())
		sb.WriteString("\tscore: ")
		sb.WriteString(strconv.FormatInt(it.Score, 10))
		if !it.User.Deleted() {
			sb.WriteString(it.User.Summary())
		}
		it.User.Unlock()
		sb.WriteByte('\n')
	}
	sb.WriteString("total users: ")
	sb.WriteString(strconv.Itoa(t.usersCount))
	return sb.String()
}

func appendList(b []byte, list []Item, join []Join, from, limit, usersCount int) []byte {
	n := 0
	if from < len(list) {
		n = min(limit, len(list)-from)
	}
	b = phpser.AppendArray(b, 2)
	b = phpser.AppendKey(b, "users_count")
	b = phpser.AppendInt(b, int64(usersCount))
	b = phpser.AppendKey(b, "list")
	b = phpser.AppendArray(b, n)
	for i := from; i < from+n; i++ {
		b = phpser.AppendIndex(b, i)
		b = appendItem(b, list[i], join)
	}
	return append(b, "}}"...)
}

func appendItem(b []byte, it Item, join []Join) []byte {
	u := it.User
	u.Lock()
	defer u.Unlock()
	if u.Deleted() {
		return phpser.AppendBool(b, false)
	}
	if len(join) == 0 {
		b = phpser.AppendArray(b, 2)
	} else {
		b = phpser.AppendArray(b, 3)
	}
	b = phpser.AppendKey(b, "score")
	b = phpser.AppendInt(b, it.Score)
	b = phpser.AppendKey(b, "user")
	b = phpser.AppendArray(b, 1)
	b = phpser.AppendKey(b, "id")
	b = u.AppendID(b)
	b = append(b, '}')
	if len(join) != 0 {
		b = phpser.AppendKey(b, "join")
		b = phpser.AppendArray(b, len(join))
		for i, j := range join {
			b = phpser.AppendIndex(b, i)
			f := u.Field(j.Field)
			if j.Rule == JoinAll {
				f.Update()
				b = f.AppendPHP(b)
			} else {
				b = phpser.AppendInt(b, f.Score(j.Rule))
			}
		}
		b = append(b, '}')
	}
	return append(b, '}')
}
