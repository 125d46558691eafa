// Package command interprets the line protocol spoken by clients.
package command

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/filter"
	"github.com/verte-zerg/topy/internal/logger"
	"github.com/verte-zerg/topy/internal/model"
	"github.com/verte-zerg/topy/internal/persist"
	"github.com/verte-zerg/topy/internal/rank"
	"github.com/verte-zerg/topy/internal/stats"
	"github.com/verte-zerg/topy/internal/timer"
	"github.com/verte-zerg/topy/internal/users"
	"github.com/verte-zerg/topy/internal/words"
)

// Dumper writes the whole population to path.
type Dumper interface {
	Dump(ctx context.Context, path string, trigger model.DumpTrigger) (int, error)
}

// Autodump is the periodic dump controller.
type Autodump interface {
	AppendPHP(b []byte) []byte
	Set(target string, delay int64)
	Enable(on bool)
	Force()
}

// Replicator forwards replay strings to a slave.
type Replicator interface {
	Replicate(query string)
}

type Config struct {
	State    *persist.State
	Timer    *timer.Timer
	Counters *stats.Counters
	Dumper   Dumper
	Autodump Autodump
	// Replicator may be nil when no slave is configured.
	Replicator Replicator
	// Halt stops the server. The halt command is refused when it is nil.
	Halt    func()
	Logger  *logger.Logger
	Version string
	// Now is the wall clock used for activity windows. Defaults to time.Now.
	Now     func() time.Time
	Context context.Context
}

// Interpreter executes requests against one population. It is safe for
// concurrent use by many sessions.
type Interpreter struct {
	cfg      Config
	state    *persist.State
	sets     *users.Sets
	contests *rank.Contests
	log      *logger.Logger
	workers  sync.WaitGroup
}

// New returns an interpreter over cfg.State.
func New(cfg Config) *Interpreter {
	if cfg.Timer == nil {
		cfg.Timer = timer.New(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Counters == nil {
		cfg.Counters = stats.NewCounters(cfg.Now(), cfg.State.Users.Count)
	}
	return &Interpreter{
		cfg:      cfg,
		state:    cfg.State,
		sets:     users.NewSets(),
		contests: rank.NewContests(),
		log:      cfg.Logger,
	}
}

// Wait blocks until every running worker has replied.
func (in *Interpreter) Wait() {
	in.workers.Wait()
}

// conn is a reference counted client handle. The reader holds one
// reference and every worker holds another, so the socket is closed after
// the last pending reply.
type conn struct {
	mu     sync.Mutex
	w      io.WriteCloser
	refs   int
	closed bool
}

func (c *conn) ref() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

func (c *conn) unref() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs--
	if c.refs <= 0 && !c.closed {
		c.closed = true
		_ = c.w.Close()
	}
}

func (c *conn) send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	_, err := c.w.Write(b)
	return err
}

// Session is the state of one connected client.
type Session struct {
	in   *Interpreter
	conn *conn
	mode Mode
}

// NewSession attaches a client. Replies are written to w, which is closed
// once the session and all of its workers are done.
func (in *Interpreter) NewSession(w io.WriteCloser) *Session {
	return &Session{in: in, conn: &conn{w: w, refs: 1}, mode: ModePHP}
}

// Mode returns the current output mode.
func (s *Session) Mode() Mode { return s.mode }

// Close releases the reader reference.
func (s *Session) Close() {
	s.conn.unref()
}

// Execute runs one request line and reports whether the client asked to
// quit.
func (s *Session) Execute(line string) bool {
	r := s.in.newRequest(s, line)
	r.run(r.command)
	return r.quit
}

// ExecuteUDP runs a datagram line. Only user and groups commands are
// accepted and nothing is answered.
func (in *Interpreter) ExecuteUDP(line string) {
	r := in.newRequest(nil, line)
	r.run(r.shared)
}

type request struct {
	in    *Interpreter
	sess  *Session
	w     *words.Words
	reply Reply

	replicated bool
	query      string

	async bool
	quit  bool
}

func (in *Interpreter) newRequest(s *Session, line string) *request {
	r := &request{in: in, sess: s, w: words.New(strings.TrimRight(line, "\r\n"))}
	r.reply.Mode = ModeText
	return r
}

func (r *request) mode() Mode {
	if r.sess == nil {
		return ModeNone
	}
	return r.sess.mode
}

func (r *request) run(dispatch func() (bool, error)) {
	r.w.Next()
	if r.w.Current() == "TID" {
		r.reply.TID = field.ToUint(r.w.Next())
		r.reply.HasTID = true
		r.w.Next()
	}
	r.query = "#"
	if r.w.Current() == "#" {
		r.replicated = true
		r.w.Next()
	}
	if r.w.Current() == "!" {
		r.reply.Quiet = true
		r.w.Next()
	}

	ok, err := dispatch()
	if err == nil && !ok {
		err = ErrNotValidCommand.New()
	}
	if err != nil {
		if !ErrUnexpected.Is(err) && !filter.ErrExpression.Is(err) {
			r.inc("unvalid")
		}
		r.reply.Fail(err.Error())
		r.send(&r.reply)
		return
	}
	if !r.async && !r.quit {
		r.send(&r.reply)
	}
}

func (r *request) send(rep *Reply) {
	if r.sess == nil {
		return
	}
	if err := r.sess.conn.send(rep.AppendTo(nil)); err != nil {
		r.in.log.Debug("reply dropped", "error", err)
	}
}

// spawn runs fn in a worker goroutine that sends the reply when it
// returns. Datagram requests run fn inline.
func (r *request) spawn(fn func(rep *Reply)) {
	r.async = true
	rep := r.reply
	if r.sess == nil {
		fn(&rep)
		return
	}
	c := r.sess.conn
	c.ref()
	r.in.workers.Add(1)
	go func() {
		defer r.in.workers.Done()
		defer c.unref()
		fn(&rep)
		r.send(&rep)
	}()
}

func (r *request) inc(name string) {
	r.in.cfg.Counters.Inc(name)
}

func (r *request) replicate(suffix string) {
	if r.replicated || r.in.cfg.Replicator == nil {
		return
	}
	r.in.cfg.Replicator.Replicate(r.query + suffix)
}

// end consumes the next token and fails when the line goes on.
func (r *request) end() error {
	r.w.Next()
	return r.ended()
}

// ended fails when the current token is not the end of the line.
func (r *request) ended() error {
	if tok := r.w.Current(); tok != "" {
		return ErrUnexpected.New(tok)
	}
	return nil
}

func (r *request) dir() *users.Directory {
	return r.in.state.Users
}

// shared dispatches the commands accepted over both transports.
func (r *request) shared() (bool, error) {
	switch r.w.Current() {
	case "user":
		return true, r.user()
	case "groups":
		r.w.Next()
		r.query += "groups"
		return true, r.groups()
	}
	return false, nil
}

func (r *request) command() (bool, error) {
	if ok, err := r.shared(); ok || err != nil {
		return ok, err
	}
	switch r.w.Current() {
	case "sets":
		r.w.Next()
		return true, r.sets()
	case "contests":
		r.w.Next()
		return true, r.contests()
	case "fields":
		r.w.Next()
		return true, r.fields()
	case "autodump":
		r.w.Next()
		return true, r.autodump()
	case "info":
		return true, r.info()
	case "stats":
		return true, r.statsCmd()
	case "dump":
		return true, r.dump()
	case "quit":
		return true, r.quitCmd()
	case "halt":
		return true, r.halt()
	case "mode":
		return true, r.setMode()
	case "report":
		return true, r.report()
	case "clear":
		return true, r.clearField()
	case "top":
		return true, r.top()
	case "count":
		return true, r.count()
	case "count_active":
		return true, r.countActive()
	case "cleanup":
		return true, r.cleanup()
	case "time":
		return true, r.timeCmd()
	case "help":
		return true, r.help(helpServer)
	case "debug":
		return true, r.debug()
	}
	return false, nil
}

func (r *request) help(text string) error {
	r.inc("misc")
	if err := r.end(); err != nil {
		return err
	}
	r.reply.Text(strings.TrimRight(text, "\n"))
	return nil
}
