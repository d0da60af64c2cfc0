package jsonbridge

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"

	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

var (
	// ErrInvalidJSON is returned when the input is not a JSON object.
	ErrInvalidJSON = errors.New("jsonbridge: invalid json")

	// ErrUnknownKey marks an input key that names no setting.
	ErrUnknownKey = errors.New("jsonbridge: unknown key")

	// ErrTypeMismatch marks an input value that does not fit its setting's type.
	ErrTypeMismatch = errors.New("jsonbridge: type mismatch")
)

// SetFromJSON applies a flat object of key → value to reg, in document order.
//
// Values use the JSON kind that matches the setting type: bool for bool,
// numbers for integers, strings for str and hex strings for bytes.
//
// Entries with unknown keys or mismatched values are skipped; they are
// reported together in the returned error (ErrUnknownKey, ErrTypeMismatch)
// after every other entry has been applied. A failing write (too large,
// storage) stops processing immediately.
//
// With alwaysMarkChanged every applied setting gets its change flag set,
// even when the value was already equal.
func SetFromJSON(ctx context.Context, reg *settings.Registry, data []byte, alwaysMarkChanged bool) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected an object", ErrInvalidJSON)
	}

	var skipped []error
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		key, _ := tok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%w: value of %q: %w", ErrInvalidJSON, key, err)
		}

		s, ok := reg.LookupKey(key)
		if !ok {
			skipped = append(skipped, fmt.Errorf("%w: %q", ErrUnknownKey, key))
			continue
		}
		raw, err := decodeValue(s.Type(), value)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%w: %q: %w", ErrTypeMismatch, key, err))
			continue
		}
		if err := reg.SetValue(ctx, s.ID(), raw); err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
		if alwaysMarkChanged {
			reg.SetChanged(s.ID())
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return errors.Join(skipped...)
}

// AllJSON renders every setting as a flat JSON object in registration order.
// Settings with neither value nor default are emitted as null.
func AllJSON(reg *settings.Registry) ([]byte, error) {
	return encode(reg, reg.All())
}

// ChangedJSON is AllJSON restricted to settings whose change flag is set.
// It does not clear the flags.
func ChangedJSON(reg *settings.Registry) ([]byte, error) {
	return encode(reg, reg.Changed())
}

func encode(reg *settings.Registry, seq iter.Seq[*settings.Setting]) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for s := range seq {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, err := json.Marshal(s.Key())
		if err != nil {
			return nil, fmt.Errorf("encoding key %q: %w", s.Key(), err)
		}
		buf.Write(key)
		buf.WriteByte(':')

		data, ok := reg.Value(s.ID())
		if !ok {
			buf.WriteString("null")
			continue
		}
		if err := encodeValue(&buf, s.Type(), data); err != nil {
			return nil, fmt.Errorf("encoding %q: %w", s.Key(), err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, typ settings.Type, data []byte) error {
	switch typ {
	case settings.TypeBool:
		if v, err := settings.DecodeBool(data); err == nil {
			buf.WriteString(strconv.FormatBool(v))
			return nil
		}
	case settings.TypeU8, settings.TypeU16, settings.TypeU32, settings.TypeU64:
		if v, err := settings.DecodeUint(typ, data); err == nil {
			buf.WriteString(strconv.FormatUint(v, 10))
			return nil
		}
	case settings.TypeI8, settings.TypeI16, settings.TypeI32, settings.TypeI64:
		if v, err := settings.DecodeInt(typ, data); err == nil {
			buf.WriteString(strconv.FormatInt(v, 10))
			return nil
		}
	case settings.TypeStr:
		b, err := json.Marshal(settings.DecodeStr(data))
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	// Bytes, and stored data that no longer fits its type.
	b, err := json.Marshal(hex.EncodeToString(data))
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func decodeValue(typ settings.Type, v any) ([]byte, error) {
	switch typ {
	case settings.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%s wants a bool, got %s", typ, kind(v))
		}
		return settings.EncodeBool(b), nil
	case settings.TypeU8, settings.TypeU16, settings.TypeU32, settings.TypeU64:
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%s wants a number, got %s", typ, kind(v))
		}
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s is not an unsigned integer", n)
		}
		return settings.EncodeUint(typ, u)
	case settings.TypeI8, settings.TypeI16, settings.TypeI32, settings.TypeI64:
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%s wants a number, got %s", typ, kind(v))
		}
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s is not an integer", n)
		}
		return settings.EncodeInt(typ, i)
	case settings.TypeStr:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s wants a string, got %s", typ, kind(v))
		}
		return settings.EncodeStr(s), nil
	case settings.TypeBytes:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s wants a hex string, got %s", typ, kind(v))
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not hex", s)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", typ)
	}
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
