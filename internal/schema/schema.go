// Package schema holds the ordered list of field definitions shared by all users.
package schema

import (
	"strconv"
	"sync"

	"gopkg.in/src-d/go-errors.v1"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/phpser"
)

// Capacity is the maximum number of fields per user.
const Capacity = 8

// FieldMagic prefixes every field definition of a binary dump.
const FieldMagic = 3287

var (
	// ErrFrozen is returned when adding to a schema already in use by users.
	ErrFrozen = errors.NewKind("can not create field %q: fields structure is frozen")
	// ErrFull is returned when the schema already holds Capacity fields.
	ErrFull = errors.NewKind("can not create field %q: max fields number is %d")
	// ErrDuplicate is returned for a name already defined.
	ErrDuplicate = errors.NewKind("field name %q already exists")
	// ErrUnknownType is returned for an unknown type name.
	ErrUnknownType = errors.NewKind("unknown field type: %s (%s)")
	// ErrMismatch is returned when a dump does not fit the configured fields.
	ErrMismatch = errors.NewKind("invalid fields structure")
)

// Def is one field definition.
type Def struct {
	Name string
	Kind field.Kind
}

// Schema is the field registry. Field ids are indices into it.
type Schema struct {
	mu     sync.Mutex
	defs   []Def
	frozen bool
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{}
}

// FromDefs builds a schema from name/type pairs as found in the config file.
func FromDefs(pairs [][2]string) (*Schema, error) {
	s := New()
	for _, p := range pairs {
		kind, ok := field.ParseKind(p[1])
		if !ok {
			return nil, ErrUnknownType.New(p[1], p[0])
		}
		if err := s.Add(p[0], kind); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Clone returns an unfrozen copy of the definitions.
func (s *Schema) Clone() *Schema {
	return &Schema{defs: s.Defs()}
}

// Add appends a field definition.
func (s *Schema) Add(name string, kind field.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ErrFrozen.New(name)
	}
	if len(s.defs) >= Capacity {
		return ErrFull.New(name, Capacity)
	}
	if s.indexLocked(name) != -1 {
		return ErrDuplicate.New(name)
	}
	s.defs = append(s.defs, Def{Name: name, Kind: kind})
	return nil
}

// Freeze forbids further additions. It can not be undone.
func (s *Schema) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (s *Schema) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

func (s *Schema) indexLocked(name string) int {
	for i, d := range s.defs {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// ID resolves a field name.
func (s *Schema) ID(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.indexLocked(name)
	return id, id != -1
}

// Def returns the definition of id.
func (s *Schema) Def(id int) (Def, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.defs) {
		return Def{Name: "UNDEF"}, false
	}
	return s.defs[id], true
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.defs)
}

// Defs returns a copy of the definitions.
func (s *Schema) Defs() []Def {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Def(nil), s.defs...)
}

// Use freezes the schema and returns the definitions a new user is built on.
func (s *Schema) Use() []Def {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
	return append([]Def(nil), s.defs...)
}

// AppendPHP appends the name to type map.
func (s *Schema) AppendPHP(b []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b = phpser.AppendArray(b, len(s.defs))
	for _, d := range s.defs {
		b = phpser.AppendString(b, d.Name)
		b = phpser.AppendString(b, d.Kind.String())
	}
	return append(b, '}')
}

// AppendText appends the F{...} section of a text dump.
func AppendText(b []byte, defs []Def) []byte {
	b = append(b, "F{"...)
	b = strconv.AppendInt(b, int64(len(defs)), 10)
	b = append(b, ":\n"...)
	for _, d := range defs {
		b = append(b, "f{"...)
		b = codec.AppendQuoted(b, d.Name)
		b = append(b, ':')
		b = codec.AppendQuoted(b, d.Kind.String())
		b = append(b, "}\n"...)
	}
	return append(b, "}\n"...)
}

// ParseText reads an F{...} section. A dump without one yields nil.
func ParseText(p *codec.Parser) ([]Def, error) {
	if !p.TestNext('F') {
		return nil, nil
	}
	if err := p.Expect("{"); err != nil {
		return nil, err
	}
	count := p.ReadInt()
	if count < 0 || count > Capacity {
		return nil, p.Errorf("invalid fields count")
	}
	if err := p.Expect(":\n"); err != nil {
		return nil, err
	}
	defs := make([]Def, 0, count)
	for i := int64(0); i < count; i++ {
		if err := p.Expect("f{"); err != nil {
			return nil, err
		}
		name, err := p.ReadString()
		if err != nil {
			return nil, err
		}
		if err := p.Expect(":"); err != nil {
			return nil, err
		}
		typeName, err := p.ReadString()
		if err != nil {
			return nil, err
		}
		if err := p.Expect("}\n"); err != nil {
			return nil, err
		}
		kind, ok := field.ParseKind(typeName)
		if !ok {
			return nil, p.Errorf("unknown field type %q", typeName)
		}
		defs = append(defs, Def{Name: name, Kind: kind})
	}
	if err := p.Expect("}\n"); err != nil {
		return nil, err
	}
	return defs, nil
}

// DumpBinary writes the field definitions of a binary dump.
func DumpBinary(w *codec.Writer, defs []Def) {
	w.Uint8(uint8(len(defs)))
	for _, d := range defs {
		w.Uint16(FieldMagic)
		w.String8(d.Name)
		w.String8(d.Kind.String())
	}
}

// ParseBinary reads the definitions written by DumpBinary.
func ParseBinary(r *codec.Reader) ([]Def, error) {
	count, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if count > Capacity {
		return nil, &codec.FormatError{Msg: "invalid fields count " + strconv.Itoa(int(count))}
	}
	defs := make([]Def, 0, count)
	for i := 0; i < int(count); i++ {
		magic, err := r.Uint16()
		if err != nil {
			return nil, err
		}
		if magic != FieldMagic {
			return nil, &codec.FormatError{Msg: "invalid field magic number"}
		}
		name, err := r.String8()
		if err != nil {
			return nil, err
		}
		typeName, err := r.String8()
		if err != nil {
			return nil, err
		}
		kind, ok := field.ParseKind(typeName)
		if !ok {
			return nil, &codec.FormatError{Msg: "unknown field type " + strconv.Quote(typeName)}
		}
		defs = append(defs, Def{Name: name, Kind: kind})
	}
	return defs, nil
}

// Reconcile checks dumped definitions against the configured ones. An empty
// configuration adopts the dump. Renamed fields are reported as warnings; a
// dump with more fields or a different type at any position is rejected.
func (s *Schema) Reconcile(dumped []Def) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.defs) == 0 && !s.frozen {
		s.defs = append(s.defs, dumped...)
		return nil, nil
	}
	var warnings []string
	for i, d := range dumped {
		if i >= len(s.defs) || s.defs[i].Kind != d.Kind {
			return nil, ErrMismatch.New()
		}
		if s.defs[i].Name != d.Name {
			warnings = append(warnings, "field name has changed: '"+d.Name+"' != '"+s.defs[i].Name+"'")
		}
	}
	return warnings, nil
}
