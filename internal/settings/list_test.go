package settings

import (
	"context"
	"testing"
)

// expectPanic fails the test if fn returns without panicking.
func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic, got none", name)
		}
	}()
	fn()
}

func TestAdd_SizeAndType(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		maxSize int
	}{
		{"bool", TypeBool, 1},
		{"u8", TypeU8, 1},
		{"u16", TypeU16, 2},
		{"u32", TypeU32, 4},
		{"u64", TypeU64, 8},
		{"i8", TypeI8, 1},
		{"i16", TypeI16, 2},
		{"i32", TypeI32, 4},
		{"i64", TypeI64, 8},
		{"str", TypeStr, 32},
		{"bytes", TypeBytes, 255},
		{"bytes min", TypeBytes, 1},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(NewMemoryStore())
			id := uint16(i + 1)
			reg.AddSized(id, tt.name, tt.typ, tt.maxSize)
			if err := reg.Load(context.Background()); err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if got := reg.MaxLen(id); got != tt.maxSize {
				t.Errorf("MaxLen() = %d, want %d", got, tt.maxSize)
			}
			if got := reg.TypeOf(id); got != tt.typ {
				t.Errorf("TypeOf() = %v, want %v", got, tt.typ)
			}
			if got := reg.KeyToID(tt.name); got != id {
				t.Errorf("KeyToID() = %d, want %d", got, id)
			}
			if got := reg.IDToKey(id); got != tt.name {
				t.Errorf("IDToKey() = %q, want %q", got, tt.name)
			}
			if reg.IsSet(id) || reg.HasDefault(id) {
				t.Error("new setting should have neither value nor default")
			}
		})
	}
}

func TestSetting_IdentityAccessors(t *testing.T) {
	reg := New(NewMemoryStore())
	added := reg.AddSized(9, "label", TypeStr, 12)

	s, ok := reg.LookupKey("label")
	if !ok || s != added {
		t.Fatalf("LookupKey(label) = %p, %v, want %p", s, ok, added)
	}
	if s.ID() != 9 || s.Key() != "label" || s.Type() != TypeStr || s.MaxSize() != 12 {
		t.Errorf("accessors = %d %q %v %d, want 9 \"label\" str 12", s.ID(), s.Key(), s.Type(), s.MaxSize())
	}

	// Data written through the registry does not change the identity.
	if err := reg.SetValue(context.Background(), 9, []byte("hello")); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if got, ok := reg.Lookup(9); !ok || got.Key() != "label" || got.MaxSize() != 12 {
		t.Errorf("Lookup(9) after SetValue = %v, %v", got, ok)
	}
	if got := reg.KeyToID("label"); got != 9 {
		t.Errorf("KeyToID(label) = %d, want 9", got)
	}
}

func TestAdd_Preconditions(t *testing.T) {
	tests := []struct {
		name string
		fn   func(reg *Registry)
	}{
		{"duplicate id", func(reg *Registry) {
			reg.Add(1, "a", TypeU8)
			reg.Add(1, "b", TypeU8)
		}},
		{"duplicate key", func(reg *Registry) {
			reg.Add(1, "a", TypeU8)
			reg.Add(2, "a", TypeU8)
		}},
		{"wrong fixed size", func(reg *Registry) {
			reg.AddSized(1, "a", TypeU16, 4)
		}},
		{"str without size", func(reg *Registry) {
			reg.Add(1, "a", TypeStr)
		}},
		{"bytes too large", func(reg *Registry) {
			reg.AddSized(1, "a", TypeBytes, 256)
		}},
		{"zero size", func(reg *Registry) {
			reg.AddSized(1, "a", TypeBytes, 0)
		}},
		{"empty key", func(reg *Registry) {
			reg.Add(1, "", TypeBool)
		}},
		{"key with NUL", func(reg *Registry) {
			reg.Add(1, "a\x00b", TypeBool)
		}},
		{"unknown type", func(reg *Registry) {
			reg.AddSized(1, "a", Type(42), 1)
		}},
		{"add after load", func(reg *Registry) {
			_ = reg.Load(context.Background())
			reg.Add(1, "a", TypeBool)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(NewMemoryStore())
			expectPanic(t, tt.name, func() { tt.fn(reg) })
		})
	}
}

func TestIter_InsertionOrder(t *testing.T) {
	reg := New(NewMemoryStore())
	ids := []uint16{7, 3, 9, 1}
	keys := []string{"seven", "three", "nine", "one"}
	for i := range ids {
		reg.Add(ids[i], keys[i], TypeU8)
	}

	it := reg.Iter()
	var got []uint16
	for s, ok := it.Next(); ok; s, ok = it.Next() {
		got = append(got, s.ID())
	}
	if len(got) != len(ids) {
		t.Fatalf("visited %d settings, want %d", len(got), len(ids))
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Errorf("position %d = %d, want %d", i, got[i], ids[i])
		}
	}

	// Exhausted iterator stays exhausted until reset.
	if _, ok := it.Next(); ok {
		t.Error("Next() after end should return false")
	}
	it.Reset()
	if s, ok := it.Next(); !ok || s.ID() != ids[0] {
		t.Errorf("Next() after Reset = %v, want id %d", s, ids[0])
	}

	var seq []string
	for s := range reg.All() {
		seq = append(seq, s.Key())
	}
	for i := range keys {
		if seq[i] != keys[i] {
			t.Errorf("All() position %d = %q, want %q", i, seq[i], keys[i])
		}
	}
}

func TestIterChanged(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore())
	reg.Add(1, "a", TypeU8)
	reg.Add(2, "b", TypeU8)
	reg.Add(3, "c", TypeU8)
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := reg.SetValue(ctx, 1, []byte{1}); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	reg.SetChangedByKey("c")

	var changed []uint16
	for s := range reg.Changed() {
		changed = append(changed, s.ID())
	}
	if len(changed) != 2 || changed[0] != 1 || changed[1] != 3 {
		t.Errorf("changed = %v, want [1 3]", changed)
	}

	reg.ClearChanged(1)
	it := reg.IterChanged()
	if s, ok := it.Next(); !ok || s.ID() != 3 {
		t.Errorf("IterChanged() first = %v, want id 3", s)
	}

	reg.ClearAllChanged()
	it = reg.IterChanged()
	if s, ok := it.Next(); ok {
		t.Errorf("IterChanged() after ClearAllChanged yielded %q", s.Key())
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore())
	reg.Add(1, "a", TypeU8)
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	reg.Reset()

	if reg.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", reg.Len())
	}
	if reg.Loaded() {
		t.Error("Loaded() after Reset = true, want false")
	}

	// The same id and key can be registered again.
	reg.Add(1, "a", TypeU16)
	if err := reg.Load(ctx); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if got := reg.TypeOf(1); got != TypeU16 {
		t.Errorf("TypeOf() = %v, want u16", got)
	}
}
