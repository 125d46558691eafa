package command

import (
	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/filter"
	"github.com/verte-zerg/topy/internal/rank"
	"github.com/verte-zerg/topy/internal/users"
)

// fieldID resolves the current token as a field name and advances.
func (r *request) fieldID() (int, field.Kind, error) {
	name := r.w.Current()
	id, ok := r.dir().Schema().ID(name)
	if !ok {
		return 0, field.KindUnknown, ErrNotValidField.New()
	}
	def, _ := r.dir().Schema().Def(id)
	r.w.Next()
	return id, def.Kind, nil
}

// from parses "[from <set>]". Without it the whole directory is used.
func (r *request) from() (*users.Set, error) {
	if r.w.Current() == "from" && r.w.Next() != "" {
		set := r.in.sets.Find(r.w.Current())
		if set == nil {
			return nil, ErrNotValidSet.New()
		}
		r.w.Next()
		return set, nil
	}
	return r.dir().All(), nil
}

// where parses "[where <expr>]". A nil node matches everyone.
func (r *request) where() (filter.Node, error) {
	if r.w.Current() != "where" {
		return nil, nil
	}
	n, err := filter.Parse(r.w, r.dir().Groups())
	if err != nil {
		return nil, err
	}
	r.w.Next()
	return n, nil
}

// join parses "[join (<field>[, *|<rule>])...]".
func (r *request) join() ([]rank.Join, error) {
	if r.w.Current() != "join" {
		return nil, nil
	}
	var out []rank.Join
	for r.w.Next() == "(" && r.w.Next() != "" {
		id, kind, err := r.fieldID()
		if err != nil {
			return nil, err
		}
		rule := 0
		if r.w.Current() == "," && r.w.Next() != "" {
			if r.w.Current() == "*" {
				rule = rank.JoinAll
			} else {
				var ok bool
				if rule, ok = kind.RuleID(r.w.Current()); !ok {
					return nil, ErrJoinRule.New()
				}
			}
			r.w.Next()
		}
		if r.w.Current() != ")" {
			return nil, ErrExpectedParen.New(r.w.Current())
		}
		out = append(out, rank.Join{Field: id, Rule: rule})
	}
	return out, nil
}

// window parses "[limit <seconds> | since <unix>]" into an absolute limit.
func (r *request) window(now, fallback int64) int64 {
	switch {
	case r.w.Current() == "limit" && r.w.Next() != "":
		fallback = now - field.ToInt(r.w.Current())
		r.w.Next()
	case r.w.Current() == "since" && r.w.Next() != "":
		fallback = field.ToInt(r.w.Current())
		r.w.Next()
	}
	return fallback
}
