package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DefaultPolicy decides what SetDefault does when a different default is already provisioned.
type DefaultPolicy uint8

const (
	// DefaultReject refuses to replace an existing default (ErrAlreadySet).
	DefaultReject DefaultPolicy = iota

	// DefaultOverwrite replaces an existing default.
	DefaultOverwrite
)

// ParseDefaultPolicy converts "reject" or "overwrite" to a DefaultPolicy.
func ParseDefaultPolicy(s string) (DefaultPolicy, error) {
	switch s {
	case "", "reject":
		return DefaultReject, nil
	case "overwrite":
		return DefaultOverwrite, nil
	default:
		return 0, fmt.Errorf("settings: unknown default policy %q", s)
	}
}

// String returns the policy name as used in configuration.
func (p DefaultPolicy) String() string {
	if p == DefaultOverwrite {
		return "overwrite"
	}
	return "reject"
}

type state uint8

const (
	stateUninitialized state = iota
	stateInitialized
	stateLoaded
)

// Registry is the setting registry and value engine.
//
// A Registry moves through three states, one way only:
//
//	uninitialized (zero value) → initialized (New) → loaded (Load)
//
// Settings can only be added while initialized. Values, defaults and change
// flags can only be read or written once loaded.
//
// A Registry does no locking. Callers must serialize access, for example by
// running every operation on a Queue.
type Registry struct {
	list     *list
	store    Store
	state    state
	policy   DefaultPolicy
	onChange ChangeFunc
	logger   Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithDefaultPolicy sets how SetDefault treats an already provisioned default.
func WithDefaultPolicy(p DefaultPolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithLogger sets the registry logger.
func WithLogger(l Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an initialized, empty registry persisted through store.
func New(store Store, opts ...Option) *Registry {
	if store == nil {
		panic("settings: nil store")
	}
	r := &Registry{
		list:   newList(),
		store:  store,
		state:  stateInitialized,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Policy returns the configured default policy.
func (r *Registry) Policy() DefaultPolicy {
	return r.policy
}

// Loaded reports whether Load has completed.
func (r *Registry) Loaded() bool {
	return r.state == stateLoaded
}

// Add registers a fixed-size setting. It panics for TypeStr and TypeBytes,
// which need AddSized.
func (r *Registry) Add(id uint16, key string, typ Type) *Setting {
	size, fixed := typ.FixedSize()
	if !fixed {
		panic(fmt.Sprintf("settings: %q of type %s needs AddSized", key, typ))
	}
	return r.AddSized(id, key, typ, size)
}

// AddSized registers a setting with an explicit max size.
//
// It panics if the registry is not initialized, is already loaded, if id or
// key is already taken, or if maxSize does not fit the type.
func (r *Registry) AddSized(id uint16, key string, typ Type, maxSize int) *Setting {
	r.mustBeInitialized()
	if r.state == stateLoaded {
		panic(fmt.Sprintf("settings: cannot add %q after load", key))
	}
	return r.list.add(id, key, typ, maxSize)
}

// Load restores persisted defaults and values and marks the registry loaded.
//
// Defaults are applied before values. Stored entries for keys that are no
// longer registered, or that exceed the current max size, are skipped with a
// warning. Loading does not fire change callbacks or set change flags.
// If the store fails the registry stays initialized and Load may be retried.
func (r *Registry) Load(ctx context.Context) error {
	r.mustBeInitialized()
	if r.state == stateLoaded {
		panic("settings: registry already loaded")
	}

	entries, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: loading settings: %w", ErrStorage, err)
	}

	for _, e := range entries {
		if e.DefaultSet {
			r.restore(e.Key, "default", e.Default, func(s *Setting) {
				s.def = append(s.def[:0], e.Default...)
				s.defSet = true
			})
		}
	}
	for _, e := range entries {
		if e.ValueSet {
			r.restore(e.Key, "value", e.Value, func(s *Setting) {
				s.value = append(s.value[:0], e.Value...)
				s.valueSet = true
			})
		}
	}

	r.state = stateLoaded
	r.logger.Info("settings loaded", "settings", r.list.len(), "stored", len(entries))
	return nil
}

func (r *Registry) restore(key, kind string, data []byte, apply func(*Setting)) {
	s, ok := r.list.getByKey(key)
	if !ok {
		r.logger.Warn("ignoring stored setting", "key", key, "kind", kind, "reason", "not registered")
		return
	}
	if len(data) > s.maxSize {
		r.logger.Warn("ignoring stored setting", "key", key, "kind", kind,
			"reason", "too large", "size", len(data), "max_size", s.maxSize)
		return
	}
	apply(s)
}

// SetGlobalChangeFunc sets the callback invoked after any setting's value changes.
// It runs after the setting's own callback.
func (r *Registry) SetGlobalChangeFunc(fn ChangeFunc) {
	r.mustBeInitialized()
	r.onChange = fn
}

// SetChangeFunc sets the callback for one setting. It panics on an unknown id.
func (r *Registry) SetChangeFunc(id uint16, fn ChangeFunc) {
	r.mustBeInitialized()
	s, ok := r.list.getByID(id)
	if !ok {
		panic(fmt.Sprintf("settings: id %d does not exist", id))
	}
	s.onChange = fn
}

// SetChangeFuncByKey sets the callback for one setting. It panics on an unknown key.
func (r *Registry) SetChangeFuncByKey(key string, fn ChangeFunc) {
	r.mustBeInitialized()
	s, ok := r.list.getByKey(key)
	if !ok {
		panic(fmt.Sprintf("settings: key %q does not exist", key))
	}
	s.onChange = fn
}

// Lookup returns the setting with id, if any. It never panics on unknown ids.
func (r *Registry) Lookup(id uint16) (*Setting, bool) {
	r.mustBeLoaded()
	return r.list.getByID(id)
}

// LookupKey returns the setting with key, if any.
func (r *Registry) LookupKey(key string) (*Setting, bool) {
	r.mustBeLoaded()
	return r.list.getByKey(key)
}

// Exists reports whether a setting with id is registered.
func (r *Registry) Exists(id uint16) bool {
	_, ok := r.Lookup(id)
	return ok
}

// ExistsKey reports whether a setting with key is registered.
func (r *Registry) ExistsKey(key string) bool {
	_, ok := r.LookupKey(key)
	return ok
}

// Len returns the number of registered settings.
func (r *Registry) Len() int {
	r.mustBeInitialized()
	return r.list.len()
}

// SetValue sets the value of setting id.
//
// A value identical to the current one is a no-op: nothing is persisted and
// no callback fires. Otherwise the value is written to the store first; only
// when that succeeds is it applied, the change flag set and the setting's
// callback followed by the global callback invoked.
func (r *Registry) SetValue(ctx context.Context, id uint16, data []byte) error {
	return r.setValue(ctx, r.mustID(id), data)
}

// SetValueByKey is SetValue addressed by key.
func (r *Registry) SetValueByKey(ctx context.Context, key string, data []byte) error {
	return r.setValue(ctx, r.mustKey(key), data)
}

func (r *Registry) setValue(ctx context.Context, s *Setting, data []byte) error {
	if len(data) > s.maxSize {
		return fmt.Errorf("%w: %q accepts %d bytes, got %d", ErrValueTooLarge, s.key, s.maxSize, len(data))
	}
	if s.valueSet && bytes.Equal(s.value, data) {
		return nil
	}
	if err := r.store.WriteValue(ctx, s.key, data); err != nil {
		return fmt.Errorf("%w: writing value %q: %w", ErrStorage, s.key, err)
	}

	s.value = append(s.value[:0], data...)
	s.valueSet = true
	s.changedRecently = true
	r.logger.Debug("setting changed", "id", s.id, "key", s.key, "size", len(data))

	if s.onChange != nil {
		s.onChange(s.id, s.key)
	}
	if r.onChange != nil {
		r.onChange(s.id, s.key)
	}
	return nil
}

// SetDefault provisions the default of setting id.
//
// Setting the same default again succeeds without writing. A different
// default over an existing one fails with ErrAlreadySet unless the registry
// uses DefaultOverwrite. Defaults never fire callbacks or touch the change flag.
func (r *Registry) SetDefault(ctx context.Context, id uint16, data []byte) error {
	return r.setDefault(ctx, r.mustID(id), data)
}

// SetDefaultByKey is SetDefault addressed by key.
func (r *Registry) SetDefaultByKey(ctx context.Context, key string, data []byte) error {
	return r.setDefault(ctx, r.mustKey(key), data)
}

func (r *Registry) setDefault(ctx context.Context, s *Setting, data []byte) error {
	if len(data) > s.maxSize {
		return fmt.Errorf("%w: %q accepts %d bytes, got %d", ErrValueTooLarge, s.key, s.maxSize, len(data))
	}
	if s.defSet {
		if bytes.Equal(s.def, data) {
			return nil
		}
		if r.policy == DefaultReject {
			return fmt.Errorf("%w: %q", ErrAlreadySet, s.key)
		}
	}
	if err := r.store.WriteDefault(ctx, s.key, data); err != nil {
		return fmt.Errorf("%w: writing default %q: %w", ErrStorage, s.key, err)
	}

	s.def = append(s.def[:0], data...)
	s.defSet = true
	r.logger.Debug("default provisioned", "id", s.id, "key", s.key, "size", len(data))
	return nil
}

// Value returns the value of setting id, falling back to its default.
// The second result is false when neither is set.
func (r *Registry) Value(id uint16) ([]byte, bool) {
	return effective(r.mustID(id))
}

// ValueByKey is Value addressed by key.
func (r *Registry) ValueByKey(key string) ([]byte, bool) {
	return effective(r.mustKey(key))
}

func effective(s *Setting) ([]byte, bool) {
	if s.valueSet {
		return clone(s.value), true
	}
	if s.defSet {
		return clone(s.def), true
	}
	return nil, false
}

// Default returns the default of setting id, ignoring its value.
func (r *Registry) Default(id uint16) ([]byte, bool) {
	return r.mustID(id).Default()
}

// DefaultByKey is Default addressed by key.
func (r *Registry) DefaultByKey(key string) ([]byte, bool) {
	return r.mustKey(key).Default()
}

// RestoreDefault sets the value of setting id to its default.
// The change goes through SetValue, so callbacks fire and the store is updated.
func (r *Registry) RestoreDefault(ctx context.Context, id uint16) error {
	return r.restoreDefault(ctx, r.mustID(id))
}

// RestoreDefaultByKey is RestoreDefault addressed by key.
func (r *Registry) RestoreDefaultByKey(ctx context.Context, key string) error {
	return r.restoreDefault(ctx, r.mustKey(key))
}

func (r *Registry) restoreDefault(ctx context.Context, s *Setting) error {
	if !s.defSet {
		return fmt.Errorf("%w: %q", ErrNoDefault, s.key)
	}
	return r.setValue(ctx, s, clone(s.def))
}

// RestoreDefaults restores every setting that has a default.
// Settings without a default keep their value. Every setting is attempted;
// failures are joined into the returned error.
func (r *Registry) RestoreDefaults(ctx context.Context) error {
	r.mustBeLoaded()
	var errs []error
	for _, s := range r.list.items {
		if !s.defSet {
			continue
		}
		if err := r.restoreDefault(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsSet reports whether setting id has a value (defaults do not count).
func (r *Registry) IsSet(id uint16) bool { return r.mustID(id).valueSet }

// IsSetByKey is IsSet addressed by key.
func (r *Registry) IsSetByKey(key string) bool { return r.mustKey(key).valueSet }

// HasDefault reports whether setting id has a default.
func (r *Registry) HasDefault(id uint16) bool { return r.mustID(id).defSet }

// HasDefaultByKey is HasDefault addressed by key.
func (r *Registry) HasDefaultByKey(key string) bool { return r.mustKey(key).defSet }

// KeyToID returns the id of the setting with key.
func (r *Registry) KeyToID(key string) uint16 { return r.mustKey(key).id }

// IDToKey returns the key of the setting with id.
func (r *Registry) IDToKey(id uint16) string { return r.mustID(id).key }

// MaxLen returns the max size of setting id.
func (r *Registry) MaxLen(id uint16) int { return r.mustID(id).maxSize }

// MaxLenByKey is MaxLen addressed by key.
func (r *Registry) MaxLenByKey(key string) int { return r.mustKey(key).maxSize }

// TypeOf returns the type of setting id.
func (r *Registry) TypeOf(id uint16) Type { return r.mustID(id).typ }

// TypeOfByKey is TypeOf addressed by key.
func (r *Registry) TypeOfByKey(key string) Type { return r.mustKey(key).typ }

// SetChanged forces the change flag of setting id.
func (r *Registry) SetChanged(id uint16) { r.mustID(id).changedRecently = true }

// SetChangedByKey is SetChanged addressed by key.
func (r *Registry) SetChangedByKey(key string) { r.mustKey(key).changedRecently = true }

// ClearChanged clears the change flag of setting id.
func (r *Registry) ClearChanged(id uint16) { r.mustID(id).changedRecently = false }

// ClearChangedByKey is ClearChanged addressed by key.
func (r *Registry) ClearChangedByKey(key string) { r.mustKey(key).changedRecently = false }

// ClearAllChanged clears the change flag of every setting.
func (r *Registry) ClearAllChanged() {
	r.mustBeLoaded()
	r.list.clearChanged()
}

// Iter returns a fresh iterator over all settings in registration order.
func (r *Registry) Iter() *Iterator {
	r.mustBeInitialized()
	return r.list.iterator(false)
}

// IterChanged returns a fresh iterator over settings whose change flag is set.
func (r *Registry) IterChanged() *Iterator {
	r.mustBeInitialized()
	return r.list.iterator(true)
}

// All returns all settings in registration order as a range-over-func sequence.
func (r *Registry) All() iter.Seq[*Setting] {
	r.mustBeInitialized()
	return r.list.seq(false)
}

// Changed returns the settings whose change flag is set.
func (r *Registry) Changed() iter.Seq[*Setting] {
	r.mustBeInitialized()
	return r.list.seq(true)
}

// Reset drops every setting and callback and returns the registry to the
// empty initialized state. It exists for test isolation.
func (r *Registry) Reset() {
	r.mustBeInitialized()
	r.list.clearAll()
	r.onChange = nil
	r.state = stateInitialized
}

func (r *Registry) mustBeInitialized() {
	if r == nil || r.state == stateUninitialized {
		panic("settings: registry not initialized, use New")
	}
}

func (r *Registry) mustBeLoaded() {
	r.mustBeInitialized()
	if r.state != stateLoaded {
		panic("settings: registry not loaded")
	}
}

func (r *Registry) mustID(id uint16) *Setting {
	r.mustBeLoaded()
	s, ok := r.list.getByID(id)
	if !ok {
		panic(fmt.Sprintf("settings: id %d does not exist", id))
	}
	return s
}

func (r *Registry) mustKey(key string) *Setting {
	r.mustBeLoaded()
	s, ok := r.list.getByKey(key)
	if !ok {
		panic(fmt.Sprintf("settings: key %q does not exist", key))
	}
	return s
}
