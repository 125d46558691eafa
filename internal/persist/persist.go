// Package persist dumps and restores the whole population in the text or
// binary format.
package persist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/groups"
	"github.com/verte-zerg/topy/internal/schema"
	"github.com/verte-zerg/topy/internal/users"
)

// SyntaxError reports a text dump grammar violation with its line.
type SyntaxError = codec.SyntaxError

// FormatError reports a binary framing violation.
type FormatError = codec.FormatError

// Binary framing constants.
const (
	Magic     = "Topy"
	Version   = 1
	UserMagic = 4242
)

// Format is a dump encoding.
type Format uint8

const (
	FormatBinary Format = iota
	FormatText
)

func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "binary"
}

// FormatFor picks the text format for ".txt" paths and binary otherwise.
func FormatFor(path string) Format {
	if len(path) > len(".txt") && strings.HasSuffix(path, ".txt") {
		return FormatText
	}
	return FormatBinary
}

// State is everything a dump holds.
type State struct {
	Schema *schema.Schema
	Groups *groups.Registry
	Users  *users.Directory
}

// Options describe the process a dump is restored into.
type Options struct {
	IDKind users.IDKind
	// Schema is the configured schema. It is copied, never modified.
	Schema *schema.Schema
	Env    *field.Env
}

// NewState returns an empty state on a copy of the configured schema.
func NewState(opt Options) *State {
	s := schema.New()
	if opt.Schema != nil {
		s = opt.Schema.Clone()
	}
	g := groups.New()
	return &State{Schema: s, Groups: g, Users: users.NewDirectory(opt.IDKind, s, g, opt.Env)}
}

// Dump writes st to path through path+".tmp" and renames it on success.
// It returns the number of users written.
func Dump(st *State, path string) (int, error) {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create dump file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}()

	var n int
	if FormatFor(path) == FormatText {
		n, err = WriteText(f, st)
	} else {
		n, err = WriteBinary(f, st)
	}
	if err != nil {
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close dump file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("failed to move dump into place: %w", err)
	}
	return n, nil
}

// WriteText writes the F, G and U sections.
func WriteText(w io.Writer, st *State) (int, error) {
	bw := bufio.NewWriter(w)
	list := st.Users.Snapshot()

	buf := schema.AppendText(nil, st.Schema.Defs())
	buf = groups.AppendText(buf, st.Groups.Entries())
	buf = append(buf, "U{"...)
	buf = strconv.AppendInt(buf, int64(len(list)), 10)
	buf = append(buf, ":\n"...)
	if _, err := bw.Write(buf); err != nil {
		return 0, fmt.Errorf("failed to write dump: %w", err)
	}
	for _, u := range list {
		u.Lock()
		buf = u.AppendText(buf[:0])
		u.Unlock()
		if _, err := bw.Write(buf); err != nil {
			return 0, fmt.Errorf("failed to write dump: %w", err)
		}
	}
	if _, err := bw.WriteString("}\n"); err != nil {
		return 0, fmt.Errorf("failed to write dump: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write dump: %w", err)
	}
	return len(list), nil
}

// WriteBinary writes the magic framed binary dump.
func WriteBinary(w io.Writer, st *State) (int, error) {
	cw := codec.NewWriter(w)
	list := st.Users.Snapshot()

	cw.Bytes([]byte(Magic))
	cw.Uint8(Version)
	schema.DumpBinary(cw, st.Schema.Defs())
	groups.DumpBinary(cw, st.Groups.Entries())
	cw.Uint32(uint32(len(list)))
	for _, u := range list {
		cw.Uint16(UserMagic)
		u.Lock()
		u.DumpBinary(cw)
		u.Unlock()
		if cw.Err() != nil {
			break
		}
	}
	cw.Bytes([]byte(Magic))
	if err := cw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write dump: %w", err)
	}
	return len(list), nil
}

// Restore decodes the dump at path into a fresh state. Nothing outside the
// returned state is touched, so a failed restore leaves no partial data.
// Warnings report renamed fields.
func Restore(path string, opt Options) (*State, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dump: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	if FormatFor(path) == FormatText {
		return ReadText(f, opt)
	}
	return ReadBinary(f, opt)
}

// ReadText decodes a text dump.
func ReadText(r io.Reader, opt Options) (*State, []string, error) {
	st := NewState(opt)
	p := codec.NewParser(r)

	defs, err := schema.ParseText(p)
	if err != nil {
		return nil, nil, err
	}
	fieldCount := st.Schema.Len()
	var warnings []string
	if defs != nil {
		if warnings, err = st.Schema.Reconcile(defs); err != nil {
			return nil, nil, err
		}
		fieldCount = len(defs)
	}

	entries, err := groups.ParseText(p)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		st.Groups.Restore(e.Name, e.ID, e.Mask)
	}

	if err := p.Expect("U{"); err != nil {
		return nil, nil, err
	}
	count := p.ReadInt()
	if count < 0 {
		return nil, nil, p.Errorf("invalid users count")
	}
	if err := p.Expect(":\n"); err != nil {
		return nil, nil, err
	}
	for i := int64(0); i < count; i++ {
		u, err := st.Users.ParseText(p, fieldCount)
		if err != nil {
			return nil, nil, err
		}
		if err := p.Expect("\n"); err != nil {
			return nil, nil, err
		}
		st.Users.Restore(u)
	}
	if err := p.Expect("}\n"); err != nil {
		return nil, nil, err
	}
	return st, warnings, nil
}

func readMagic(r *codec.Reader, where string) error {
	raw, err := r.Bytes(len(Magic))
	if err != nil || string(raw) != Magic {
		return &FormatError{Msg: "invalid pattern at " + where + " of file"}
	}
	return nil
}

// ReadBinary decodes a binary dump.
func ReadBinary(r io.Reader, opt Options) (*State, []string, error) {
	st := NewState(opt)
	cr := codec.NewReader(r)

	if err := readMagic(cr, "beginning"); err != nil {
		return nil, nil, err
	}
	version, err := cr.Uint8()
	if err != nil {
		return nil, nil, err
	}
	if version != Version {
		return nil, nil, &FormatError{Msg: "invalid binary dump version number"}
	}

	defs, err := schema.ParseBinary(cr)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := st.Schema.Reconcile(defs)
	if err != nil {
		return nil, nil, err
	}

	entries, err := groups.ParseBinary(cr)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		st.Groups.Restore(e.Name, e.ID, e.Mask)
	}

	count, err := cr.Uint32()
	if err != nil {
		return nil, nil, err
	}
	for i := uint32(0); i < count; i++ {
		magic, err := cr.Uint16()
		if err != nil {
			return nil, nil, err
		}
		if magic != UserMagic {
			return nil, nil, &FormatError{Msg: "invalid user magic number"}
		}
		u, err := st.Users.ParseBinary(cr, len(defs))
		if err != nil {
			return nil, nil, err
		}
		st.Users.Restore(u)
	}

	if err := readMagic(cr, "end"); err != nil {
		return nil, nil, err
	}
	return st, warnings, nil
}
