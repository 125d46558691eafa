// Package client speaks the line protocol to a running server.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds one round trip.
const DefaultTimeout = 5 * time.Second

// Response is one parsed reply.
type Response struct {
	TID    uint64
	HasTID bool
	// Code is 0 for OK replies.
	Code    int
	Message string
	// Mode is TEXT or PHP_SERIALIZE when Data is set.
	Mode string
	Data string
}

// Err returns the error carried by an ERROR reply.
func (r Response) Err() error {
	if r.Code == 0 {
		return nil
	}
	return &ServerError{Code: r.Code, Message: r.Message}
}

// ServerError is an ERROR reply.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("ERROR %d %s", e.Code, e.Message)
}

// Client is one connection. Do is safe for concurrent use; requests are
// serialized.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// Dial connects to address.
func Dial(ctx context.Context, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn), timeout: DefaultTimeout}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one request line and waits for its reply. Quiet requests still
// get an OK or ERROR line.
func (c *Client) Do(line string) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := io.WriteString(c.conn, strings.TrimRight(line, "\r\n")+"\n"); err != nil {
		return Response{}, fmt.Errorf("failed to send request: %w", err)
	}
	return ReadResponse(c.r)
}

// ReadResponse reads one framed reply ending in \r\n.
func ReadResponse(r *bufio.Reader) (Response, error) {
	var raw strings.Builder
	for !strings.HasSuffix(raw.String(), "\r\n") {
		chunk, err := r.ReadString('\n')
		raw.WriteString(chunk)
		if err != nil {
			return Response{}, fmt.Errorf("failed to read reply: %w", err)
		}
	}
	return ParseResponse(strings.TrimSuffix(raw.String(), "\r\n"))
}

// ParseResponse parses a reply without its \r\n terminator.
func ParseResponse(s string) (Response, error) {
	var resp Response
	if rest, ok := strings.CutPrefix(s, "TID: "); ok {
		line, after, _ := strings.Cut(rest, "\n")
		tid, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return resp, fmt.Errorf("invalid tid %q", line)
		}
		resp.TID, resp.HasTID, s = tid, true, after
	}

	if rest, ok := strings.CutPrefix(s, "ERROR "); ok {
		rest = strings.TrimSuffix(rest, "\n")
		code, msg, _ := strings.Cut(rest, " ")
		n, err := strconv.Atoi(code)
		if err != nil {
			return resp, fmt.Errorf("invalid error code %q", code)
		}
		resp.Code, resp.Message = n, msg
		return resp, nil
	}

	rest, ok := strings.CutPrefix(s, "OK\n")
	if !ok {
		return resp, fmt.Errorf("unexpected reply %q", s)
	}
	if rest == "" {
		return resp, nil
	}
	header, body, _ := strings.Cut(rest, "\n")
	mode, ok := strings.CutPrefix(header, "DATA: ")
	if !ok {
		return resp, fmt.Errorf("unexpected reply body %q", rest)
	}
	resp.Mode, resp.Data = mode, body
	return resp, nil
}
