package command

import (
	"strconv"

	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/users"
	"github.com/verte-zerg/topy/internal/words"
)

// user runs "user [*] <id> <command>" under the user lock. The star creates
// missing users.
func (r *request) user() error {
	create := false
	if r.w.Next() == "*" {
		create = true
		r.w.Next()
	}
	if create && r.unknownField() {
		return ErrNotValidField.New()
	}
	u := r.dir().Open(r.w.Current(), create)
	r.w.Next()
	if u == nil {
		return ErrNotValidUser.New()
	}
	defer u.Unlock()
	r.query += "user *" + u.ID()
	return r.userCommand(u)
}

// unknownField reports whether the rest of the line is ":: <name>" with a
// name missing from the schema.
func (r *request) unknownField() bool {
	rest := words.New(r.w.Rest())
	if rest.Next() != "::" {
		return false
	}
	_, ok := r.dir().Schema().ID(rest.Next())
	return !ok
}

func (r *request) userCommand(u *users.User) error {
	const prefix = "user::"
	switch r.w.Current() {
	case "::":
		name := r.w.Next()
		id, _, err := r.fieldID()
		if err != nil {
			return err
		}
		r.query += " :: " + name
		return r.fieldCommand(u.Field(id), prefix+name+"::")

	case "get":
		r.inc(prefix + "get")
		if err := r.end(); err != nil {
			return err
		}
		r.reply.Mode = ModePHP
		r.reply.Data = u.AppendPHP(r.reply.Data)
		return nil

	case "show":
		r.inc(prefix + "show")
		if err := r.end(); err != nil {
			return err
		}
		r.reply.Mode = ModeText
		r.reply.Data = append(r.reply.Data, u.Show()...)
		return nil

	case "group":
		switch r.w.Next() {
		case "set":
			r.inc(prefix + "group::set")
			name := r.w.Next()
			if err := r.end(); err != nil {
				return err
			}
			if !u.SetGroup(name) {
				return ErrNotValidGroup.New(name)
			}
			r.replicate(" group set " + name)
			return nil
		case "get":
			r.inc(prefix + "group::get")
			if err := r.end(); err != nil {
				return err
			}
			r.reply.Text(u.GroupName())
			return nil
		}
		return ErrNotValidCommand.New()

	case "delete":
		r.inc(prefix + "delete")
		if err := r.end(); err != nil {
			return err
		}
		u.Delete()
		r.replicate(" delete")
		return nil

	case "clear":
		r.inc(prefix + "clear")
		if err := r.end(); err != nil {
			return err
		}
		u.Clear()
		r.replicate(" clear")
		return nil

	case "help":
		return r.help(helpUser)
	}
	return ErrNotValidCommand.New()
}

func (r *request) fieldCommand(f field.Field, prefix string) error {
	switch f := f.(type) {
	case *field.Events:
		if ok, err := r.eventsCommand(f, prefix); ok {
			return err
		}
	case *field.Log:
		if ok, err := r.logCommand(f, prefix); ok {
			return err
		}
	}

	switch r.w.Current() {
	case "add":
		r.inc(prefix + "add")
		value := field.ToInt(r.w.Next())
		if err := r.end(); err != nil {
			return err
		}
		f.Add(value)
		r.replicate(" add " + strconv.FormatInt(value, 10))
		r.phpReply(f.AppendPHP)
		return nil

	case "get":
		r.inc(prefix + "get")
		if err := r.end(); err != nil {
			return err
		}
		f.Update()
		r.phpReply(f.AppendPHP)
		return nil

	case "set":
		r.inc(prefix + "set")
		value := r.w.Next()
		if value == "" {
			return ErrExpectedValue.New()
		}
		if err := r.end(); err != nil {
			return err
		}
		if !f.Set(value) {
			return ErrCouldNotSet.New()
		}
		r.replicate(" set " + value)
		r.phpReply(f.AppendPHP)
		return nil

	case "rules":
		r.inc(prefix + "rules")
		if err := r.end(); err != nil {
			return err
		}
		r.phpReply(func(b []byte) []byte { return appendRules(b, f.Kind()) })
		return nil

	case "help":
		return r.help(helpField + fieldHelp(f.Kind()))
	}
	return ErrNotValidCommand.New()
}

func (r *request) eventsCommand(f *field.Events, prefix string) (bool, error) {
	if r.w.Current() != "total" {
		return false, nil
	}
	switch r.w.Next() {
	case "get":
		r.inc(prefix + "total::get")
		if err := r.end(); err != nil {
			return true, err
		}
	case "set":
		r.inc(prefix + "total::set")
		if r.w.Next() == "" {
			return true, ErrExpectedValue.New()
		}
		value := uint32(field.ToUint(r.w.Current()))
		if err := r.end(); err != nil {
			return true, err
		}
		f.SetTotal(value)
		r.replicate(" total set " + strconv.FormatUint(uint64(value), 10))
	default:
		return true, ErrNotValidCommand.New()
	}
	r.phpReply(func(b []byte) []byte { return phpser.AppendInt(b, f.Total()) })
	return true, nil
}

func (r *request) logCommand(f *field.Log, prefix string) (bool, error) {
	if r.w.Current() != "insert" {
		return false, nil
	}
	r.inc(prefix + "insert")
	unique := false
	if r.w.Next() == "unique" {
		unique = true
		r.w.Next()
	}
	item := uint32(field.ToInt(r.w.Current()))
	date := r.in.cfg.Timer.Now()
	if r.w.Next() == "," {
		date = field.ToInt(r.w.Next())
		if err := r.end(); err != nil {
			return true, err
		}
	} else if err := r.ended(); err != nil {
		return true, err
	}
	f.Insert(item, date, unique)

	var opt string
	if unique {
		opt = "unique "
	}
	r.replicate(" insert " + opt + strconv.FormatUint(uint64(item), 10) + "," + strconv.FormatInt(date, 10))
	r.phpReply(f.AppendPHP)
	return true, nil
}

func (r *request) phpReply(appendFn func([]byte) []byte) {
	r.reply.Mode = ModePHP
	r.reply.Data = appendFn(r.reply.Data)
}

// appendRules appends the id to name map of the score rules of kind.
func appendRules(b []byte, kind field.Kind) []byte {
	rules := kind.Rules()
	b = phpser.AppendArray(b, len(rules))
	for _, rule := range rules {
		b = phpser.AppendIndex(b, rule.ID)
		b = phpser.AppendString(b, rule.Name)
	}
	return append(b, '}')
}
