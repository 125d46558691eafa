package command

import (
	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/filter"
	"github.com/verte-zerg/topy/internal/model"
	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/rank"
	"github.com/verte-zerg/topy/internal/users"
)

const (
	activeWindow  = 5 * 60
	cleanupWindow = 31 * 24 * 3600
)

func (r *request) info() error {
	r.inc("info")
	if err := r.end(); err != nil {
		return err
	}
	r.reply.Text("Topy version: " + r.in.cfg.Version)
	r.reply.Text("Users id type: " + r.dir().Kind().String())
	return nil
}

func (r *request) statsCmd() error {
	r.inc("stats")
	if err := r.end(); err != nil {
		return err
	}
	now, count := r.in.cfg.Now(), r.dir().Count()
	if r.mode() == ModeText {
		r.reply.Mode = ModeText
		r.reply.Data = r.in.cfg.Counters.AppendText(r.reply.Data, now, count)
	} else {
		r.phpReply(func(b []byte) []byte { return r.in.cfg.Counters.AppendPHP(b, now, count) })
	}
	return nil
}

func (r *request) dump() error {
	r.inc("dump")
	path := r.w.NextAll()
	if path == "" {
		return ErrPathNeeded.New()
	}
	if err := r.end(); err != nil {
		return err
	}
	if r.in.cfg.Dumper == nil {
		return ErrNotSupported.New()
	}
	r.spawn(func(rep *Reply) {
		if _, err := r.in.cfg.Dumper.Dump(r.in.cfg.Context, path, model.TriggerCommand); err != nil {
			rep.Fail(ErrDump.New(path, err).Error())
		}
	})
	return nil
}

func (r *request) quitCmd() error {
	r.inc("misc")
	if err := r.end(); err != nil {
		return err
	}
	r.quit = true
	return nil
}

func (r *request) halt() error {
	r.inc("misc")
	if err := r.end(); err != nil {
		return err
	}
	if r.in.cfg.Halt == nil {
		return ErrNotSupported.New()
	}
	r.reply.Text("Server is now stoping...")
	r.in.cfg.Halt()
	return nil
}

func (r *request) setMode() error {
	r.inc("misc")
	name := r.w.Next()
	if err := r.end(); err != nil {
		return err
	}
	mode, ok := ParseMode(name)
	if !ok {
		return ErrUnknownMode.New()
	}
	r.sess.mode = mode
	return nil
}

func (r *request) report() error {
	r.inc("report")
	r.w.Next()
	id, kind, err := r.fieldID()
	if err != nil {
		return err
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
	mode := r.mode()
	r.spawn(func(rep *Reply) {
		st := r.in.cfg.Timer.Hold()
		defer r.in.cfg.Timer.Release()
		report, ok := set.Report(f, id, kind)
		if !ok {
			rep.Fail(ErrNoReport.New().Error())
			return
		}
		rep.Mode = mode
		if mode == ModeText {
			rep.Data = append(rep.Data, report.Show(st.Now)...)
		} else {
			rep.Data = report.AppendPHP(rep.Data, st.Now)
		}
	})
	return nil
}

func (r *request) clearField() error {
	r.inc("clear")
	r.w.Next()
	id, _, err := r.fieldID()
	if err != nil {
		return err
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
	r.spawn(func(*Reply) { set.ClearField(f, id) })
	return nil
}

func (r *request) top() error {
	r.inc("top")
	r.w.Next()
	id, kind, err := r.fieldID()
	if err != nil {
		return err
	}
	rule, inversed, size := 0, false, rank.DefaultSize
	if r.w.Current() == "rule" {
		name := r.w.Next()
		var ok bool
		if rule, ok = kind.RuleID(name); !ok {
			return ErrNotValidRule.New(name)
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
	if r.w.Current() == "set" {
		var list []*users.User
		for {
			if u := r.dir().Find(r.w.Next()); u != nil {
				list = append(list, u)
			}
			if r.w.Next() != "," {
				break
			}
		}
		set = users.NewSet(list)
	}
	f, err := r.where()
	if err != nil {
		return err
	}
	if r.w.Current() == "size" {
		size = int(field.ToUint(r.w.Next()))
		r.w.Next()
	}
	join, err := r.join()
	if err != nil {
		return err
	}
	if err := r.ended(); err != nil {
		return err
	}
	mode := r.mode()
	r.spawn(func(rep *Reply) {
		r.in.cfg.Timer.Hold()
		defer r.in.cfg.Timer.Release()
		t := rank.Scan(set, f, id, rule, inversed, size)
		rep.Mode = mode
		if mode == ModeText {
			rep.Data = append(rep.Data, t.Show()...)
		} else {
			rep.Data = t.AppendPHP(rep.Data, join)
		}
	})
	return nil
}

func (r *request) count() error {
	r.inc("count")
	r.w.Next()
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
	r.spawn(func(rep *Reply) {
		rep.Mode = ModePHP
		rep.Data = phpser.AppendInt(rep.Data, int64(set.Count(f)))
	})
	return nil
}

func (r *request) countActive() error {
	return r.activity("count_active", activeWindow, "active", func(set *users.Set, f filter.Node, id int, limit int64) (int, int) {
		r.in.cfg.Timer.Hold()
		defer r.in.cfg.Timer.Release()
		return set.CountActive(f, id, limit)
	})
}

func (r *request) cleanup() error {
	return r.activity("cleanup", cleanupWindow, "deleted", func(set *users.Set, f filter.Node, id int, limit int64) (int, int) {
		return set.Cleanup(f, id, limit)
	})
}

// activity parses "<field> [limit <s> | since <t>] [from] [where]" and
// replies {<key>, total} with the result of scan.
func (r *request) activity(name string, window int64, key string, scan func(*users.Set, filter.Node, int, int64) (int, int)) error {
	r.inc(name)
	r.w.Next()
	id, _, err := r.fieldID()
	if err != nil {
		return err
	}
	now := r.in.cfg.Now().Unix()
	limit := r.window(now, now-window)
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
	r.spawn(func(rep *Reply) {
		n, total := scan(set, f, id, limit)
		b := phpser.AppendArray(rep.Data, 2)
		b = phpser.AppendKey(b, key)
		b = phpser.AppendInt(b, int64(n))
		b = phpser.AppendKey(b, "total")
		b = phpser.AppendInt(b, int64(total))
		rep.Mode = ModePHP
		rep.Data = append(b, '}')
	})
	return nil
}

func (r *request) timeCmd() error {
	r.inc("time")
	if err := r.end(); err != nil {
		return err
	}
	r.phpReply(r.in.cfg.Timer.Refresh().AppendPHP)
	return nil
}

func (r *request) debug() error {
	r.inc("misc")
	if err := r.end(); err != nil {
		return err
	}
	r.reply.Mode = ModeText
	r.reply.Data = append(r.reply.Data, r.dir().Debug()...)
	r.reply.Data = append(r.reply.Data, r.in.cfg.Timer.Debug()...)
	return nil
}
