package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt is shown before every request in interactive mode.
const Prompt = "topy> "

// LineReader yields request lines. io.EOF ends the session.
type LineReader interface {
	ReadLine() (string, error)
}

type scanner struct{ sc *bufio.Scanner }

func (s scanner) ReadLine() (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// NewScanner reads plain lines, for pipes and files.
func NewScanner(r io.Reader) LineReader {
	return scanner{sc: bufio.NewScanner(r)}
}

// Terminal is a line editor with history on a raw mode terminal.
type Terminal struct {
	*term.Terminal
	fd    int
	state *term.State
}

// NewTerminal switches in to raw mode. Close restores it.
func NewTerminal(in *os.File, out io.Writer) (*Terminal, error) {
	fd := int(in.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to set raw mode: %w", err)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{in, out}
	t := term.NewTerminal(rw, Prompt)
	if w, h, err := term.GetSize(fd); err == nil {
		_ = t.SetSize(w, h)
	}
	return &Terminal{Terminal: t, fd: fd, state: state}, nil
}

// Close restores the terminal mode.
func (t *Terminal) Close() error {
	return term.Restore(t.fd, t.state)
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// REPL sends every line read from lines and prints the replies to out. It
// returns nil on EOF or quit.
func REPL(c *Client, lines LineReader, out io.Writer) error {
	for {
		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		resp, err := c.Do(line)
		if err != nil {
			return err
		}
		fmt.Fprint(out, Format(resp))
	}
}

// Format renders a reply for humans.
func Format(resp Response) string {
	var sb strings.Builder
	if resp.HasTID {
		fmt.Fprintf(&sb, "[tid %d] ", resp.TID)
	}
	switch {
	case resp.Code != 0:
		fmt.Fprintf(&sb, "ERROR %d: %s\n", resp.Code, resp.Message)
	case resp.Data == "":
		sb.WriteString("OK\n")
	default:
		sb.WriteString(resp.Data)
		if !strings.HasSuffix(resp.Data, "\n") {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
