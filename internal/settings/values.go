package settings

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Typed encoders produce the little-endian byte form stored in a setting.
// Every surface that converts between Go values and setting bytes (shell,
// schema defaults, JSON bridge) goes through these helpers.

// EncodeBool encodes a bool setting value.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// EncodeUint encodes v with the width of typ, which must be an unsigned type.
func EncodeUint(typ Type, v uint64) ([]byte, error) {
	var limit uint64
	switch typ {
	case TypeU8:
		limit = math.MaxUint8
	case TypeU16:
		limit = math.MaxUint16
	case TypeU32:
		limit = math.MaxUint32
	case TypeU64:
		limit = math.MaxUint64
	default:
		return nil, fmt.Errorf("%w: %s is not unsigned", ErrInvalidValue, typ)
	}
	if v > limit {
		return nil, fmt.Errorf("%w: %d out of range for %s", ErrInvalidValue, v, typ)
	}
	size, _ := typ.FixedSize()
	buf := make([]byte, 8) //nolint:mnd // widest integer
	binary.LittleEndian.PutUint64(buf, v)
	return buf[:size], nil
}

// EncodeInt encodes v with the width of typ, which must be a signed type.
func EncodeInt(typ Type, v int64) ([]byte, error) {
	var lo, hi int64
	switch typ {
	case TypeI8:
		lo, hi = math.MinInt8, math.MaxInt8
	case TypeI16:
		lo, hi = math.MinInt16, math.MaxInt16
	case TypeI32:
		lo, hi = math.MinInt32, math.MaxInt32
	case TypeI64:
		lo, hi = math.MinInt64, math.MaxInt64
	default:
		return nil, fmt.Errorf("%w: %s is not signed", ErrInvalidValue, typ)
	}
	if v < lo || v > hi {
		return nil, fmt.Errorf("%w: %d out of range for %s", ErrInvalidValue, v, typ)
	}
	size, _ := typ.FixedSize()
	buf := make([]byte, 8) //nolint:mnd // widest integer
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf[:size], nil
}

// EncodeStr encodes a string setting value including its NUL terminator.
func EncodeStr(s string) []byte {
	out := make([]byte, len(s)+1)
	copy(out, s)
	return out
}

// DecodeBool decodes a bool setting value.
func DecodeBool(data []byte) (bool, error) {
	if len(data) != 1 {
		return false, fmt.Errorf("%w: bool needs 1 byte, got %d", ErrInvalidValue, len(data))
	}
	return data[0] != 0, nil
}

// DecodeUint decodes an unsigned setting value of any width.
func DecodeUint(typ Type, data []byte) (uint64, error) {
	if err := checkWidth(typ, data); err != nil {
		return 0, err
	}
	switch typ {
	case TypeU8:
		return uint64(data[0]), nil
	case TypeU16:
		return uint64(binary.LittleEndian.Uint16(data)), nil
	case TypeU32:
		return uint64(binary.LittleEndian.Uint32(data)), nil
	case TypeU64:
		return binary.LittleEndian.Uint64(data), nil
	default:
		return 0, fmt.Errorf("%w: %s is not unsigned", ErrInvalidValue, typ)
	}
}

// DecodeInt decodes a signed setting value of any width.
func DecodeInt(typ Type, data []byte) (int64, error) {
	if err := checkWidth(typ, data); err != nil {
		return 0, err
	}
	switch typ {
	case TypeI8:
		return int64(int8(data[0])), nil
	case TypeI16:
		return int64(int16(binary.LittleEndian.Uint16(data))), nil
	case TypeI32:
		return int64(int32(binary.LittleEndian.Uint32(data))), nil
	case TypeI64:
		return int64(binary.LittleEndian.Uint64(data)), nil //nolint:gosec // two's complement round trip
	default:
		return 0, fmt.Errorf("%w: %s is not signed", ErrInvalidValue, typ)
	}
}

// DecodeStr decodes a string setting value, stopping at the first NUL.
func DecodeStr(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

func checkWidth(typ Type, data []byte) error {
	size, fixed := typ.FixedSize()
	if !fixed {
		return fmt.Errorf("%w: %s is not a fixed-size type", ErrInvalidValue, typ)
	}
	if len(data) != size {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidValue, typ, size, len(data))
	}
	return nil
}

// FormatValue renders setting bytes as text.
//
// Bools print as true/false, integers in decimal, strings without their
// terminator and bytes as lower-case hex. Bytes that do not fit the type are
// printed as hex.
func FormatValue(typ Type, data []byte) string {
	switch typ {
	case TypeBool:
		if v, err := DecodeBool(data); err == nil {
			return strconv.FormatBool(v)
		}
	case TypeU8, TypeU16, TypeU32, TypeU64:
		if v, err := DecodeUint(typ, data); err == nil {
			return strconv.FormatUint(v, 10)
		}
	case TypeI8, TypeI16, TypeI32, TypeI64:
		if v, err := DecodeInt(typ, data); err == nil {
			return strconv.FormatInt(v, 10)
		}
	case TypeStr:
		return DecodeStr(data)
	}
	return hex.EncodeToString(data)
}

// ParseValue converts text to setting bytes for typ.
//
// Integers accept any base strconv understands ("0x1f", "0b101", "42").
// Bytes are standard hex, optionally prefixed with "0x".
func ParseValue(typ Type, text string) ([]byte, error) {
	switch typ {
	case TypeBool:
		v, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a bool", ErrInvalidValue, text)
		}
		return EncodeBool(v), nil
	case TypeU8, TypeU16, TypeU32, TypeU64:
		v, err := strconv.ParseUint(strings.TrimSpace(text), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an unsigned integer", ErrInvalidValue, text)
		}
		return EncodeUint(typ, v)
	case TypeI8, TypeI16, TypeI32, TypeI64:
		v, err := strconv.ParseInt(strings.TrimSpace(text), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, text)
		}
		return EncodeInt(typ, v)
	case TypeStr:
		return EncodeStr(text), nil
	case TypeBytes:
		s := strings.TrimPrefix(strings.TrimSpace(text), "0x")
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not hex", ErrInvalidValue, text)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
}
