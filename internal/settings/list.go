package settings

import (
	"fmt"
	"strings"
)

// list is the ordered record store behind a Registry.
//
// Records live in a slice in insertion order; the two maps index the same
// pointers by id and key. Nothing is ever removed except by clearAll.
type list struct {
	items []*Setting
	byID  map[uint16]*Setting
	byKey map[string]*Setting
}

func newList() *list {
	return &list{
		byID:  make(map[uint16]*Setting),
		byKey: make(map[string]*Setting),
	}
}

// add registers a new record and returns it.
// Violating any registration precondition panics.
func (l *list) add(id uint16, key string, typ Type, maxSize int) *Setting {
	if key == "" {
		panic("settings: key must not be empty")
	}
	if strings.IndexByte(key, 0) >= 0 {
		panic(fmt.Sprintf("settings: key %q contains a NUL byte", key))
	}
	if !typ.Valid() {
		panic(fmt.Sprintf("settings: %q has unknown type %d", key, uint8(typ)))
	}
	if size, fixed := typ.FixedSize(); fixed {
		if maxSize != size {
			panic(fmt.Sprintf("settings: %q of type %s must have size %d, got %d", key, typ, size, maxSize))
		}
	} else if maxSize < 1 || maxSize > MaxSettingSize {
		panic(fmt.Sprintf("settings: %q of type %s needs a size in 1..%d, got %d", key, typ, MaxSettingSize, maxSize))
	}
	if _, dup := l.byID[id]; dup {
		panic(fmt.Sprintf("settings: id %d already exists", id))
	}
	if _, dup := l.byKey[key]; dup {
		panic(fmt.Sprintf("settings: key %q already exists", key))
	}

	s := &Setting{
		id:      id,
		key:     key,
		typ:     typ,
		maxSize: maxSize,
		value:   make([]byte, 0, maxSize),
		def:     make([]byte, 0, maxSize),
	}
	l.items = append(l.items, s)
	l.byID[id] = s
	l.byKey[key] = s
	return s
}

func (l *list) getByID(id uint16) (*Setting, bool) {
	s, ok := l.byID[id]
	return s, ok
}

func (l *list) getByKey(key string) (*Setting, bool) {
	s, ok := l.byKey[key]
	return s, ok
}

func (l *list) len() int { return len(l.items) }

// clearAll drops every record.
func (l *list) clearAll() {
	l.items = nil
	clear(l.byID)
	clear(l.byKey)
}

// clearChanged clears the change flag on every record.
func (l *list) clearChanged() {
	for _, s := range l.items {
		s.changedRecently = false
	}
}
