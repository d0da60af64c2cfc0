package settings

import "iter"

// Iterator walks settings in registration order.
//
// An Iterator is a snapshot of the registry's record list taken when it was
// created. Settings added afterwards are not visited; records are never
// removed while a registry is loaded, so the snapshot stays valid.
//
//	it := reg.Iter()
//	for s, ok := it.Next(); ok; s, ok = it.Next() {
//	    fmt.Println(s.Key())
//	}
type Iterator struct {
	items       []*Setting
	pos         int
	changedOnly bool
}

// Next returns the next setting, or false when the sequence is exhausted.
func (it *Iterator) Next() (*Setting, bool) {
	for it.pos < len(it.items) {
		s := it.items[it.pos]
		it.pos++
		if it.changedOnly && !s.changedRecently {
			continue
		}
		return s, true
	}
	return nil, false
}

// Reset moves the iterator back to the first setting.
func (it *Iterator) Reset() {
	it.pos = 0
}

func (l *list) iterator(changedOnly bool) *Iterator {
	return &Iterator{items: l.items, changedOnly: changedOnly}
}

func (l *list) seq(changedOnly bool) iter.Seq[*Setting] {
	items := l.items
	return func(yield func(*Setting) bool) {
		for _, s := range items {
			if changedOnly && !s.changedRecently {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}
