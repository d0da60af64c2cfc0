package settings

import (
	"context"
	"sync"
)

// Entry is the persisted state of one setting, keyed by setting key.
type Entry struct {
	Key        string
	Value      []byte
	ValueSet   bool
	Default    []byte
	DefaultSet bool
}

// Store is the persistence collaborator behind a Registry.
//
// WriteValue and WriteDefault are called synchronously inside SetValue and
// SetDefault before the in-memory state changes, so a setting is only
// visible as changed once it is durable. Implementations own their retry
// policy; the registry never retries.
type Store interface {
	// LoadAll returns everything previously written, in any order.
	LoadAll(ctx context.Context) ([]Entry, error)

	// WriteValue durably stores the value bytes for key.
	WriteValue(ctx context.Context, key string, data []byte) error

	// WriteDefault durably stores the default bytes for key.
	WriteDefault(ctx context.Context, key string, data []byte) error
}

// MemoryStore is an in-memory Store.
// It is used by tests and by dry runs of the CLI.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

// LoadAll implements Store.
func (m *MemoryStore) LoadAll(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.order))
	for _, key := range m.order {
		e := *m.entries[key]
		e.Value = clone(e.Value)
		e.Default = clone(e.Default)
		out = append(out, e)
	}
	return out, nil
}

// WriteValue implements Store.
func (m *MemoryStore) WriteValue(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	e.Value = clone(data)
	e.ValueSet = true
	return nil
}

// WriteDefault implements Store.
func (m *MemoryStore) WriteDefault(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	e.Default = clone(data)
	e.DefaultSet = true
	return nil
}

func (m *MemoryStore) entry(key string) *Entry {
	e, ok := m.entries[key]
	if !ok {
		e = &Entry{Key: key}
		m.entries[key] = e
		m.order = append(m.order, key)
	}
	return e
}
