package settings

import (
	"fmt"
	"strings"
)

// Type identifies the data type of a setting.
// The numeric values are part of the wire format and must not change.
type Type uint8

// Setting types.
const (
	TypeBool Type = iota
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeStr
	TypeBytes
)

// MaxSettingSize is the largest max size a setting may declare.
// Lengths travel as a single byte on the wire.
const MaxSettingSize = 255

var typeNames = [...]string{
	TypeBool:  "bool",
	TypeU8:    "u8",
	TypeU16:   "u16",
	TypeU32:   "u32",
	TypeU64:   "u64",
	TypeI8:    "i8",
	TypeI16:   "i16",
	TypeI32:   "i32",
	TypeI64:   "i64",
	TypeStr:   "str",
	TypeBytes: "bytes",
}

// String returns the lower-case type name used in schema files and shell output.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Valid reports whether t is a known setting type.
func (t Type) Valid() bool {
	return t <= TypeBytes
}

// FixedSize returns the storage size for fixed-width types.
// The second result is false for TypeStr and TypeBytes, whose size is caller supplied.
func (t Type) FixedSize() (int, bool) {
	switch t {
	case TypeBool, TypeU8, TypeI8:
		return 1, true
	case TypeU16, TypeI16:
		return 2, true //nolint:mnd // uint16 width
	case TypeU32, TypeI32:
		return 4, true //nolint:mnd // uint32 width
	case TypeU64, TypeI64:
		return 8, true //nolint:mnd // uint64 width
	default:
		return 0, false
	}
}

// ParseType converts a type name to a Type.
//
// Besides the canonical names it accepts "boolean", "string" and the
// C-style names ("uint8_t", "int32_t", ...) used by older schema files.
func ParseType(name string) (Type, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "boolean":
		return TypeBool, nil
	case "string":
		return TypeStr, nil
	}
	n = strings.TrimSuffix(n, "_t")
	if strings.HasPrefix(n, "uint") {
		n = "u" + strings.TrimPrefix(n, "uint")
	} else if strings.HasPrefix(n, "int") {
		n = "i" + strings.TrimPrefix(n, "int")
	}
	for i, s := range typeNames {
		if s == n {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// ChangeFunc is called after a setting's value changed.
//
// It runs synchronously on the goroutine that performed the change. It must
// not set the same setting again from inside the callback.
type ChangeFunc func(id uint16, key string)

// Setting is a single named, typed, size-bounded value with an optional default.
//
// Settings are owned by a Registry. Identity, type and size are fixed at
// registration and read through ID, Key, Type and MaxSize. Value and default
// data are only reachable through the accessor methods, which return copies.
type Setting struct {
	id      uint16
	key     string
	typ     Type
	maxSize int

	value    []byte
	valueSet bool

	def    []byte
	defSet bool

	changedRecently bool
	onChange        ChangeFunc
}

// ID returns the numeric id the setting was registered with.
func (s *Setting) ID() uint16 { return s.id }

// Key returns the setting's name.
func (s *Setting) Key() string { return s.key }

// Type returns the setting's value type.
func (s *Setting) Type() Type { return s.typ }

// MaxSize returns the maximum value and default length in bytes.
func (s *Setting) MaxSize() int { return s.maxSize }

// Value returns a copy of the value and whether it is set.
// Unlike Registry.Value it does not fall back to the default.
func (s *Setting) Value() ([]byte, bool) {
	if !s.valueSet {
		return nil, false
	}
	return clone(s.value), true
}

// Default returns a copy of the default and whether it is set.
func (s *Setting) Default() ([]byte, bool) {
	if !s.defSet {
		return nil, false
	}
	return clone(s.def), true
}

// IsSet reports whether a value (not a default) has been set.
func (s *Setting) IsSet() bool { return s.valueSet }

// HasDefault reports whether a default has been provisioned.
func (s *Setting) HasDefault() bool { return s.defSet }

// ChangedRecently reports whether the value changed since the flag was last cleared.
func (s *Setting) ChangedRecently() bool { return s.changedRecently }

// ValueLen returns the length of the set value, or 0 if unset.
func (s *Setting) ValueLen() int {
	if !s.valueSet {
		return 0
	}
	return len(s.value)
}

// DefaultLen returns the length of the default, or 0 if unset.
func (s *Setting) DefaultLen() int {
	if !s.defSet {
		return 0
	}
	return len(s.def)
}

// AppendValue appends the raw value bytes to dst without copying through an
// intermediate slice. Nothing is appended when the value is unset.
func (s *Setting) AppendValue(dst []byte) []byte {
	if !s.valueSet {
		return dst
	}
	return append(dst, s.value...)
}

// AppendDefault is AppendValue for the default.
func (s *Setting) AppendDefault(dst []byte) []byte {
	if !s.defSet {
		return dst
	}
	return append(dst, s.def...)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
