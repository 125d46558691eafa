package command

import (
	"strconv"

	"github.com/verte-zerg/topy/internal/autodump"
	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/groups"
	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/rank"
	"github.com/verte-zerg/topy/internal/users"
)

func (r *request) groups() error {
	const prefix = "groups::"
	reg := r.dir().Groups()
	switch r.w.Current() {
	case "add":
		r.inc(prefix + "add")
		name := r.w.Next()
		if name == "" {
			return ErrExpectedName.New()
		}
		id, mask := groups.Undefined, uint32(0)
		if r.w.Next() != "" {
			id = uint32(field.ToUint(r.w.Current()))
			mask = uint32(field.ToUint(r.w.Next()))
		}
		if err := r.end(); err != nil {
			return err
		}
		if id == groups.Undefined {
			id = reg.Add(name)
		} else {
			id = reg.AddWithID(name, id, mask)
		}
		r.replicate(" add " + name + " " + strconv.FormatUint(uint64(id), 10) + " " + strconv.FormatUint(uint64(mask), 10))
		return nil

	case "delete":
		r.inc(prefix + "delete")
		name := r.w.Next()
		if err := r.end(); err != nil {
			return err
		}
		r.replicate(" delete " + name)
		r.spawn(func(rep *Reply) {
			id := reg.Delete(name)
			if id == groups.Unknown {
				rep.Fail(ErrNotValidGroup.New(name).Error())
				return
			}
			r.dir().ResetGroup(id)
		})
		return nil

	case "list":
		r.inc(prefix + "list")
		if err := r.end(); err != nil {
			return err
		}
		if r.mode() == ModeText {
			r.reply.Text(reg.Show())
		} else {
			r.phpReply(reg.AppendPHP)
		}
		return nil

	case "clear":
		r.inc(prefix + "clear")
		if err := r.end(); err != nil {
			return err
		}
		r.replicate(" clear")
		r.spawn(func(*Reply) {
			reg.Clear()
			r.dir().ResetGroups()
		})
		return nil

	case "stats":
		r.inc(prefix + "stats")
		if err := r.end(); err != nil {
			return err
		}
		r.spawn(func(rep *Reply) {
			rep.Text(r.dir().GroupStats())
		})
		return nil

	case "help":
		return r.help(helpGroups)
	}
	return ErrNotValidCommand.New()
}

func (r *request) sets() error {
	const prefix = "sets::"
	switch r.w.Current() {
	case "select":
		r.inc(prefix + "select")
		if r.w.Next() != "into" {
			return ErrExpectedInto.New()
		}
		name := r.w.Next()
		if name == "" {
			return ErrExpectedName.New()
		}
		r.w.Next()
		f, err := r.where()
		if err != nil {
			return err
		}
		if err := r.ended(); err != nil {
			return err
		}
		dst := r.in.sets.FindOrCreate(name)
		r.spawn(func(*Reply) {
			r.dir().All().SelectInto(f, dst)
		})
		return nil

	case "delete":
		r.inc(prefix + "delete")
		name := r.w.Next()
		if err := r.end(); err != nil {
			return err
		}
		if !r.in.sets.Delete(name) {
			return ErrNotValidSet.New()
		}
		return nil

	case "list":
		r.inc(prefix + "list")
		if err := r.end(); err != nil {
			return err
		}
		sizes := r.in.sets.Sizes()
		if r.mode() == ModeText {
			r.reply.Text(users.ShowSizes(sizes))
		} else {
			r.phpReply(func(b []byte) []byte { return users.AppendSizesPHP(b, sizes) })
		}
		return nil

	case "help":
		return r.help(helpSets)
	}
	return ErrNotValidCommand.New()
}

func (r *request) contests() error {
	const prefix = "contests::"
	switch r.w.Current() {
	case "::":
		name := r.w.Next()
		c := r.in.contests.Find(name)
		if c == nil {
			return ErrNotValidContest.New()
		}
		r.w.Next()
		return r.contest(c, prefix+name+"::")

	case "generate":
		r.inc(prefix + "generate")
		name := r.w.Next()
		r.w.Next()
		id, kind, err := r.fieldID()
		if err != nil {
			return err
		}
		rule, inversed := 0, false
		if r.w.Current() == "rule" {
			var ok bool
			if rule, ok = kind.RuleID(r.w.Next()); !ok {
				return ErrScoreRule.New()
			}
			r.w.Next()
		}
		if r.w.Current() == "inversed" {
			inversed = true
			r.w.Next()
		}
		set, err := r.from()
		if err != nil {
			return err
		}
		f, err := r.where()
		if err != nil {
			return err
		}
		if err := r.ended(); err != nil {
			return err
		}
		c := r.in.contests.FindOrCreate(name)
		r.spawn(func(*Reply) {
			r.in.cfg.Timer.Hold()
			defer r.in.cfg.Timer.Release()
			c.Generate(set, f, id, rule, inversed)
		})
		return nil

	case "delete":
		r.inc(prefix + "delete")
		name := r.w.Next()
		if err := r.end(); err != nil {
			return err
		}
		if !r.in.contests.Delete(name) {
			return ErrNotValidSet.New()
		}
		return nil

	case "list":
		r.inc(prefix + "list")
		if err := r.end(); err != nil {
			return err
		}
		sizes := r.in.contests.Sizes()
		if r.mode() == ModeText {
			r.reply.Text(users.ShowSizes(sizes))
		} else {
			r.phpReply(func(b []byte) []byte { return users.AppendSizesPHP(b, sizes) })
		}
		return nil

	case "help":
		return r.help(helpContests)
	}
	return ErrNotValidCommand.New()
}

func (r *request) contest(c *rank.Contest, prefix string) error {
	switch r.w.Current() {
	case "get":
		r.inc(prefix + "get")
		from, limit := 0, rank.DefaultLimit
		r.w.Next()
		if r.w.Current() == "from" && r.w.Next() != "" {
			from = int(field.ToUint(r.w.Current()))
			r.w.Next()
		}
		if r.w.Current() == "limit" && r.w.Next() != "" {
			limit = int(field.ToUint(r.w.Current()))
			r.w.Next()
		}
		join, err := r.join()
		if err != nil {
			return err
		}
		if err := r.ended(); err != nil {
			return err
		}
		r.spawn(func(rep *Reply) {
			rep.Mode = ModePHP
			rep.Data = c.AppendPHP(rep.Data, join, from, limit)
		})
		return nil

	case "find":
		r.inc(prefix + "find")
		raw := r.w.Next()
		if err := r.end(); err != nil {
			return err
		}
		u := r.dir().Find(raw)
		if u == nil {
			return ErrUnknownUser.New()
		}
		r.spawn(func(rep *Reply) {
			rep.Mode = ModePHP
			rep.Data = c.AppendFindPHP(rep.Data, u)
		})
		return nil

	case "clear":
		r.inc("clear")
		if err := r.end(); err != nil {
			return err
		}
		r.spawn(func(*Reply) { c.Clear() })
		return nil

	case "size":
		r.inc("size")
		if err := r.end(); err != nil {
			return err
		}
		r.spawn(func(rep *Reply) {
			rep.Mode = ModePHP
			rep.Data = phpser.AppendInt(rep.Data, int64(c.Size()))
		})
		return nil

	case "help":
		return r.help(helpContest)
	}
	return ErrNotValidCommand.New()
}

func (r *request) fields() error {
	const prefix = "fields::"
	s := r.dir().Schema()
	switch r.w.Current() {
	case "add":
		r.inc(prefix + "add")
		name := r.w.Next()
		typeName := r.w.Next()
		if err := r.end(); err != nil {
			return err
		}
		kind, ok := field.ParseKind(typeName)
		if !ok {
			return ErrFieldType.New()
		}
		err := s.Add(name, kind)
		if err != nil {
			r.in.log.Warn("field not added", "name", name, "error", err)
		}
		r.phpReply(func(b []byte) []byte { return phpser.AppendBool(b, err == nil) })
		return nil

	case "list":
		r.inc("misc")
		if err := r.end(); err != nil {
			return err
		}
		r.phpReply(s.AppendPHP)
		return nil

	case "help":
		return r.help(helpFields)
	}
	return ErrNotValidCommand.New()
}

func (r *request) autodump() error {
	const prefix = "autodump::"
	ad := r.in.cfg.Autodump
	if ad == nil {
		return ErrNotSupported.New()
	}
	switch r.w.Current() {
	case "stats":
		r.inc(prefix + "stats")
		if err := r.end(); err != nil {
			return err
		}
		r.phpReply(ad.AppendPHP)
		return nil

	case "set":
		r.inc(prefix + "set")
		target := r.w.NextAll()
		delay := autodump.ParseDelay(r.w.Next())
		if err := r.end(); err != nil {
			return err
		}
		if delay == 0 {
			delay = autodump.DefaultDelay
		}
		ad.Set(target, delay)
		return nil

	case "enable":
		r.inc(prefix + "enable")
		on := r.w.Next() == "1"
		if err := r.end(); err != nil {
			return err
		}
		ad.Enable(on)
		return nil

	case "force":
		r.inc(prefix + "force")
		if err := r.end(); err != nil {
			return err
		}
		ad.Force()
		return nil

	case "help":
		return r.help(helpAutodump)
	}
	return ErrNotValidCommand.New()
}
