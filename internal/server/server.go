// Package server runs the TCP and UDP listeners of the line protocol.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/topy/internal/command"
	"github.com/verte-zerg/topy/internal/logger"
	"github.com/verte-zerg/topy/internal/stats"
)

const (
	DefaultAddress = "0.0.0.0"
	DefaultPort    = 6969

	// MaxLine bounds one request line.
	MaxLine = 1 << 20
	// MaxDatagram bounds one UDP request.
	MaxDatagram = 64 << 10
)

// Runner is a background loop stopped by its context.
type Runner interface {
	Run(ctx context.Context) error
}

type Options struct {
	Address string
	Port    int
	// UDP is disabled when UDPAddress is empty.
	UDPAddress string
	UDPPort    int
	// MetricsAddress serves /metrics when not empty.
	MetricsAddress string

	Interpreter *command.Interpreter
	Counters    *stats.Counters
	// Background loops such as the autodump scheduler and the replicator.
	Background []Runner
	Logger     *logger.Logger
}

// Server owns the listeners and the open client connections.
type Server struct {
	opts Options
	in   *command.Interpreter
	log  *logger.Logger

	mu      sync.Mutex
	conns   map[string]net.Conn
	closing bool
	readers sync.WaitGroup

	ready chan struct{}
	tcp   net.Listener
	udp   net.PacketConn
}

// New prepares a server. Nothing is opened before Run.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Server{
		opts:  opts,
		in:    opts.Interpreter,
		log:   opts.Logger,
		conns: map[string]net.Conn{},
		ready: make(chan struct{}),
	}
}

func hostPort(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}

// Ready is closed once every listener is open.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the TCP address once Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.tcp.Addr()
}

// UDPAddr returns the UDP address, or nil when UDP is disabled.
func (s *Server) UDPAddr() net.Addr {
	if s.udp == nil {
		return nil
	}
	return s.udp.LocalAddr()
}

// Run serves until ctx is done or a listener fails. Pending workers are
// waited for before it returns.
func (s *Server) Run(ctx context.Context) error {
	tcp, err := net.Listen("tcp", hostPort(s.opts.Address, s.opts.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.tcp = tcp
	s.log.Info("tcp server started", "address", tcp.Addr().String())

	if s.opts.UDPAddress != "" {
		udp, err := net.ListenPacket("udp", hostPort(s.opts.UDPAddress, s.opts.UDPPort))
		if err != nil {
			_ = tcp.Close()
			return fmt.Errorf("failed to listen on udp: %w", err)
		}
		s.udp = udp
		s.log.Info("udp server started", "address", udp.LocalAddr().String())
	}

	var metrics *http.Server
	if s.opts.MetricsAddress != "" && s.opts.Counters != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.opts.Counters.Handler())
		metrics = &http.Server{
			Addr:              s.opts.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(ctx) })
	if s.udp != nil {
		g.Go(func() error { return s.udpLoop(ctx) })
	}
	if metrics != nil {
		g.Go(func() error {
			s.log.Info("metrics server started", "address", metrics.Addr)
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to serve metrics: %w", err)
			}
			return nil
		})
	}
	for _, r := range s.opts.Background {
		r := r
		g.Go(func() error { return r.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("server stopping")
		_ = s.tcp.Close()
		if s.udp != nil {
			_ = s.udp.Close()
		}
		if metrics != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.Shutdown(shutdownCtx)
		}
		s.closeConns()
		return nil
	})
	close(s.ready)

	err = g.Wait()
	s.readers.Wait()
	s.in.Wait()
	s.log.Info("server stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		c, err := s.tcp.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("failed to accept: %w", err)
		}
		id := uuid.NewString()
		if !s.track(id, c) {
			_ = c.Close()
			continue
		}
		s.readers.Add(1)
		go func() {
			defer s.readers.Done()
			s.serve(id, c)
		}()
	}
}

// track registers c. It fails once the server is closing.
func (s *Server) track(id string, c net.Conn) bool {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return false
	}
	s.conns[id] = c
	s.mu.Unlock()
	if s.opts.Counters != nil {
		s.opts.Counters.ConnOpened()
	}
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	if s.opts.Counters != nil {
		s.opts.Counters.ConnClosed()
	}
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for _, c := range s.conns {
		_ = c.Close()
	}
}

// serve reads request lines from c until EOF or quit.
func (s *Server) serve(id string, c net.Conn) {
	log := s.log.With("conn", id, "remote", c.RemoteAddr().String())
	defer s.untrack(id)
	log.Debug("connection opened")

	sess := s.in.NewSession(c)
	defer sess.Close()

	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 0, 4096), MaxLine)
	for sc.Scan() {
		if sess.Execute(sc.Text()) {
			break
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug("connection read failed", "error", err)
	}
	log.Debug("connection closed")
}

func (s *Server) udpLoop(ctx context.Context) error {
	buf := make([]byte, MaxDatagram)
	for {
		n, _, err := s.udp.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read datagram: %w", err)
		}
		line := strings.TrimSpace(string(buf[:n]))
		if line == "" {
			continue
		}
		s.in.ExecuteUDP(line)
	}
}
