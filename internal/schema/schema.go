package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-settings/internal/settings"
)

// CurrentVersion is the schema file version this package reads.
const CurrentVersion = 1

// Schema is the set of settings a node declares at startup.
type Schema struct {
	Version  int          `yaml:"version" toml:"version" json:"version"`
	Settings []Definition `yaml:"settings" toml:"settings" json:"settings"`

	logger settings.Logger
}

// Definition declares one setting.
//
// MaxSize is required for str and bytes and may be omitted for fixed-width
// types. Default is optional; it is written in the same textual form the
// shell accepts, or as a native bool/number. A bytes default may also be a
// list of byte values.
type Definition struct {
	ID      uint16 `yaml:"id" toml:"id" json:"id"`
	Key     string `yaml:"key" toml:"key" json:"key"`
	Type    string `yaml:"type" toml:"type" json:"type"`
	MaxSize int    `yaml:"max_size,omitempty" toml:"max_size,omitempty" json:"max_size,omitempty"`
	Default any    `yaml:"default,omitempty" toml:"default,omitempty" json:"default,omitempty"`

	typ        settings.Type
	defaultRaw []byte
	hasDefault bool
}

// SettingType returns the parsed type. Valid after Validate.
func (d Definition) SettingType() settings.Type { return d.typ }

// EncodedDefault returns the default in setting bytes. Valid after Validate.
func (d Definition) EncodedDefault() ([]byte, bool) {
	return d.defaultRaw, d.hasDefault
}

// Load reads and validates a schema file.
// The decoder is chosen by extension: .yaml/.yml, .toml or .json.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}

	s, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("loading schema %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates schema data in the format named by ext.
// Unknown fields are rejected in every format.
func Parse(data []byte, ext string) (*Schema, error) {
	s := &Schema{}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), s)
		if err != nil {
			return nil, fmt.Errorf("parsing toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown keys %v", ErrInvalid, undecoded)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		if err := dec.Decode(s); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetLogger sets the logger used by ApplyDefaults.
func (s *Schema) SetLogger(logger settings.Logger) {
	s.logger = logger
}

// Validate checks the schema and resolves types, sizes and defaults.
// All problems are reported together.
func (s *Schema) Validate() error {
	var errs []string

	if s.Version != CurrentVersion {
		errs = append(errs, fmt.Sprintf("version %d is not supported (want %d)", s.Version, CurrentVersion))
	}
	if len(s.Settings) == 0 {
		errs = append(errs, "no settings declared")
	}

	ids := make(map[uint16]string, len(s.Settings))
	keys := make(map[string]bool, len(s.Settings))

	for i := range s.Settings {
		d := &s.Settings[i]
		name := d.Key
		if name == "" {
			name = fmt.Sprintf("settings[%d]", i)
			errs = append(errs, name+": key is required")
		} else if strings.IndexByte(d.Key, 0) >= 0 {
			errs = append(errs, name+": key must not contain NUL")
		}
		if prev, dup := ids[d.ID]; dup {
			errs = append(errs, fmt.Sprintf("%s: id %d already used by %s", name, d.ID, prev))
		}
		ids[d.ID] = name
		if d.Key != "" && keys[d.Key] {
			errs = append(errs, fmt.Sprintf("%s: duplicate key", name))
		}
		keys[d.Key] = true

		typ, err := settings.ParseType(d.Type)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: unknown type %q", name, d.Type))
			continue
		}
		d.typ = typ

		if size, fixed := typ.FixedSize(); fixed {
			if d.MaxSize != 0 && d.MaxSize != size {
				errs = append(errs, fmt.Sprintf("%s: %s is %d bytes, max_size %d given", name, typ, size, d.MaxSize))
				continue
			}
			d.MaxSize = size
		} else if d.MaxSize < 1 || d.MaxSize > settings.MaxSettingSize {
			errs = append(errs, fmt.Sprintf("%s: %s needs max_size between 1 and %d", name, typ, settings.MaxSettingSize))
			continue
		}

		d.defaultRaw, d.hasDefault = nil, false
		if d.Default == nil {
			continue
		}
		raw, err := encodeDefault(typ, d.Default)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("%s: default: %v", name, err))
		case len(raw) > d.MaxSize:
			errs = append(errs, fmt.Sprintf("%s: default is %d bytes, max_size is %d", name, len(raw), d.MaxSize))
		default:
			d.defaultRaw, d.hasDefault = raw, true
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// Declare registers every setting with reg, in file order.
// reg must be initialized and not yet loaded.
func (s *Schema) Declare(reg *settings.Registry) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, d := range s.Settings {
		reg.AddSized(d.ID, d.Key, d.typ, d.MaxSize)
	}
	return nil
}

// ApplyDefaults provisions the declared defaults on a loaded registry.
//
// A default that is already stored with the same bytes is left alone. A
// different stored default is kept and logged when the registry rejects
// replacement; with DefaultOverwrite the schema wins.
func (s *Schema) ApplyDefaults(ctx context.Context, reg *settings.Registry) error {
	applied := 0
	for _, d := range s.Settings {
		if !d.hasDefault {
			continue
		}
		err := reg.SetDefault(ctx, d.ID, d.defaultRaw)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, settings.ErrAlreadySet):
			s.log().Warn("keeping stored default", "id", d.ID, "key", d.Key)
		default:
			return fmt.Errorf("provisioning default %q: %w", d.Key, err)
		}
	}
	s.log().Info("schema defaults applied", "defaults", applied)
	return nil
}

func (s *Schema) log() settings.Logger {
	if s.logger == nil {
		return nopLogger{}
	}
	return s.logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// encodeDefault converts a decoded default into setting bytes.
func encodeDefault(typ settings.Type, v any) ([]byte, error) {
	switch v := v.(type) {
	case string:
		return settings.ParseValue(typ, v)
	case bool:
		if typ != settings.TypeBool {
			return nil, fmt.Errorf("bool given for %s", typ)
		}
		return settings.EncodeBool(v), nil
	case []any:
		if typ != settings.TypeBytes {
			return nil, fmt.Errorf("list given for %s", typ)
		}
		out := make([]byte, 0, len(v))
		for i, e := range v {
			n, err := integerText(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			b, err := strconv.ParseUint(n, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("element %d: %s is not a byte", i, n)
			}
			out = append(out, byte(b))
		}
		return out, nil
	}

	switch typ {
	case settings.TypeBool, settings.TypeStr, settings.TypeBytes:
		return nil, fmt.Errorf("number given for %s", typ)
	}
	text, err := integerText(v)
	if err != nil {
		return nil, err
	}
	return settings.ParseValue(typ, text)
}

// integerText renders the numeric kinds produced by the three decoders
// in base 10.
func integerText(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case uint64:
		return strconv.FormatUint(n, 10), nil
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return n.String(), nil
		}
		if _, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return n.String(), nil
		}
		return "", fmt.Errorf("%s is not an integer", n)
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return "", fmt.Errorf("%v is not an integer", n)
		}
		return strconv.FormatInt(int64(n), 10), nil
	default:
		return "", fmt.Errorf("unsupported default %T", v)
	}
}
