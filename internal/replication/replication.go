// Package replication forwards replay strings to a slave over UDP.
package replication

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/verte-zerg/topy/internal/logger"
)

// MaxDatagram bounds one replay string. Longer strings are truncated.
const MaxDatagram = 4096

// QueueSize is the number of replay strings buffered before new ones are
// dropped.
const QueueSize = 1024

// Sender sends every replay string as one datagram. Replicate never blocks.
type Sender struct {
	conn    net.Conn
	queue   chan string
	log     *logger.Logger
	dropped atomic.Uint64
}

// Dial resolves the slave address and prepares the socket.
func Dial(address string, port int, log *logger.Logger) (*Sender, error) {
	if log == nil {
		log = logger.Nop()
	}
	target := net.JoinHostPort(address, fmt.Sprint(port))
	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to open replication socket to %s: %w", target, err)
	}
	log.Info("replication started", "slave", target)
	return &Sender{conn: conn, queue: make(chan string, QueueSize), log: log}, nil
}

// Replicate queues q. A full queue drops it.
func (s *Sender) Replicate(q string) {
	select {
	case s.queue <- q:
	default:
		if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
			s.log.Warn("replication queue full", "dropped", n)
		}
	}
}

// Dropped returns the number of replay strings lost to a full queue.
func (s *Sender) Dropped() uint64 {
	return s.dropped.Load()
}

// Run sends queued strings until ctx is done, then closes the socket.
func (s *Sender) Run(ctx context.Context) error {
	defer func() {
		_ = s.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("replication stopped", "dropped", s.Dropped())
			return nil
		case q := <-s.queue:
			if len(q) > MaxDatagram {
				q = q[:MaxDatagram]
			}
			if _, err := s.conn.Write([]byte(q)); err != nil {
				s.log.Debug("replication send failed", "error", err)
			}
		}
	}
}
