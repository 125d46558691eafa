package replication

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (net.PacketConn, int) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pc.Close()
	})
	return pc, pc.LocalAddr().(*net.UDPAddr).Port
}

func read(t *testing.T, pc net.PacketConn) string {
	t.Helper()
	buf := make([]byte, 2*MaxDatagram)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestSenderForwardsDatagrams(t *testing.T) {
	pc, port := listen(t)
	s, err := Dial("127.0.0.1", port, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Replicate("#user *1 :: visits add 1")
	s.Replicate("#groups add admins 1 0")
	require.Equal(t, "#user *1 :: visits add 1", read(t, pc))
	require.Equal(t, "#groups add admins 1 0", read(t, pc))

	s.Replicate("#" + strings.Repeat("x", MaxDatagram+10))
	if got := read(t, pc); len(got) != MaxDatagram {
		t.Fatalf("expected truncated datagram of %d bytes, got %d", MaxDatagram, len(got))
	}

	cancel()
	require.NoError(t, <-done)
}

func TestSenderDropsWhenQueueIsFull(t *testing.T) {
	_, port := listen(t)
	s, err := Dial("127.0.0.1", port, nil)
	require.NoError(t, err)
	for i := 0; i < QueueSize+5; i++ {
		s.Replicate("#user *1 clear")
	}
	if s.Dropped() != 5 {
		t.Fatalf("expected 5 dropped, got %d", s.Dropped())
	}
}
