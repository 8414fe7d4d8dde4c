// Package registry implements the persistent service table behind container
// snapshots. Every mutation returns a new Table; published tables are never
// modified, so readers can hold one without locking.
package registry

import (
	"errors"
	"fmt"
	"hash/maphash"
	"iter"

	"github.com/benbjohnson/immutable"
	"github.com/junioryono/graft/internal/typesys"
)

var (
	// ErrDuplicateDefault is returned by Throw when a default entry exists.
	ErrDuplicateDefault = errors.New("default registration already exists")

	// ErrDuplicateKey is returned when a keyed entry already exists.
	ErrDuplicateKey = errors.New("keyed registration already exists")
)

// Policy controls what Add does when the service type already has entries.
type Policy int

const (
	// AppendNonKeyed appends defaults and rejects duplicate keys.
	AppendNonKeyed Policy = iota

	// Throw rejects any duplicate.
	Throw

	// Keep leaves the existing entries untouched.
	Keep

	// Replace swaps the existing entries in place.
	Replace

	// AppendNewImplementation appends unless the same implementation is
	// already registered.
	AppendNewImplementation
)

func (p Policy) String() string {
	switch p {
	case AppendNonKeyed:
		return "AppendNonKeyed"
	case Throw:
		return "Throw"
	case Keep:
		return "Keep"
	case Replace:
		return "Replace"
	case AppendNewImplementation:
		return "AppendNewImplementation"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// KeyedItem pairs a service key with its entry.
type KeyedItem[F any] struct {
	Key  any
	Item F
}

// Entry holds everything registered for one service type. Defaults and
// keyed items keep insertion order; keyed items are also indexed by key.
// Entries are persistent: Add and Remove share structure with the entry
// they start from.
type Entry[F any] struct {
	defaults *immutable.List[F]
	keyed    *immutable.List[KeyedItem[F]]
	index    *immutable.Map[any, int] // key -> position in keyed
}

func newEntry[F any]() *Entry[F] {
	return &Entry[F]{
		defaults: immutable.NewList[F](),
		keyed:    immutable.NewList[KeyedItem[F]](),
		index:    immutable.NewMap[any, int](keyHasher{}),
	}
}

// Len returns the number of items in the entry.
func (e *Entry[F]) Len() int {
	if e == nil {
		return 0
	}
	return e.defaults.Len() + e.keyed.Len()
}

// Defaults returns the items registered without a key.
func (e *Entry[F]) Defaults() []F {
	if e == nil {
		return nil
	}
	out := make([]F, 0, e.defaults.Len())
	for it := e.defaults.Iterator(); !it.Done(); {
		_, v := it.Next()
		out = append(out, v)
	}
	return out
}

// Keyed returns the keyed items in registration order.
func (e *Entry[F]) Keyed() []KeyedItem[F] {
	if e == nil {
		return nil
	}
	out := make([]KeyedItem[F], 0, e.keyed.Len())
	for it := e.keyed.Iterator(); !it.Done(); {
		_, v := it.Next()
		out = append(out, v)
	}
	return out
}

// Find returns the item registered under key.
func (e *Entry[F]) Find(key any) (F, bool) {
	var zero F
	if e == nil {
		return zero, false
	}
	i, ok := e.index.Get(key)
	if !ok {
		return zero, false
	}
	return e.keyed.Get(i).Item, true
}

// Hooks customise Add.
type Hooks[F any] struct {
	// SameImplementation compares two items for AppendNewImplementation.
	SameImplementation func(a, b F) bool

	// Inherit returns next adjusted to take prev's place under Replace.
	Inherit func(prev, next F) F
}

// Table is a persistent map from service type to entry.
type Table[F any] struct {
	m *immutable.Map[*typesys.Type, *Entry[F]]
}

// NewTable returns an empty table.
func NewTable[F any]() Table[F] {
	return Table[F]{m: immutable.NewMap[*typesys.Type, *Entry[F]](typeHasher{})}
}

// Len returns the number of service types with entries.
func (t Table[F]) Len() int {
	if t.m == nil {
		return 0
	}
	return t.m.Len()
}

// Get returns the entry for serviceType, or nil.
func (t Table[F]) Get(serviceType *typesys.Type) *Entry[F] {
	if t.m == nil {
		return nil
	}
	e, _ := t.m.Get(serviceType)
	return e
}

// All iterates every service type and its entry. Order is unspecified.
func (t Table[F]) All() iter.Seq2[*typesys.Type, *Entry[F]] {
	return func(yield func(*typesys.Type, *Entry[F]) bool) {
		if t.m == nil {
			return
		}
		it := t.m.Iterator()
		for !it.Done() {
			k, v, ok := it.Next()
			if !ok {
				return
			}
			if !yield(k, v) {
				return
			}
		}
	}
}

// Add registers item under (serviceType, key) applying policy. It returns
// the new table and whether the table changed. A nil key adds a default.
func (t Table[F]) Add(serviceType *typesys.Type, key any, item F, policy Policy, hooks Hooks[F]) (Table[F], bool, error) {
	if t.m == nil {
		t = NewTable[F]()
	}

	current := t.Get(serviceType)
	if current == nil {
		current = newEntry[F]()
	}
	next := *current

	if key == nil {
		switch {
		case current.defaults.Len() == 0:
			next.defaults = current.defaults.Append(item)
		case policy == Throw:
			return t, false, ErrDuplicateDefault
		case policy == Keep:
			return t, false, nil
		case policy == Replace:
			if hooks.Inherit != nil {
				item = hooks.Inherit(current.defaults.Get(0), item)
			}
			next.defaults = immutable.NewList(item)
		case policy == AppendNewImplementation && hooks.SameImplementation != nil:
			for it := current.defaults.Iterator(); !it.Done(); {
				if _, existing := it.Next(); hooks.SameImplementation(existing, item) {
					return t, false, nil
				}
			}
			next.defaults = current.defaults.Append(item)
		default:
			next.defaults = current.defaults.Append(item)
		}

		return Table[F]{m: t.m.Set(serviceType, &next)}, true, nil
	}

	if i, ok := current.index.Get(key); ok {
		existing := current.keyed.Get(i).Item
		switch policy {
		case Keep:
			return t, false, nil
		case Replace:
			if hooks.Inherit != nil {
				item = hooks.Inherit(existing, item)
			}
			next.keyed = current.keyed.Set(i, KeyedItem[F]{Key: key, Item: item})
			return Table[F]{m: t.m.Set(serviceType, &next)}, true, nil
		case AppendNewImplementation:
			if hooks.SameImplementation != nil && hooks.SameImplementation(existing, item) {
				return t, false, nil
			}
		}
		return t, false, ErrDuplicateKey
	}

	next.index = current.index.Set(key, current.keyed.Len())
	next.keyed = current.keyed.Append(KeyedItem[F]{Key: key, Item: item})
	return Table[F]{m: t.m.Set(serviceType, &next)}, true, nil
}

// Remove drops the items under serviceType for which match returns true
// (key is nil for defaults). It returns the new table and the removed count.
func (t Table[F]) Remove(serviceType *typesys.Type, match func(key any, item F) bool) (Table[F], int) {
	current := t.Get(serviceType)
	if current == nil {
		return t, 0
	}

	next := newEntry[F]()
	removed := 0
	for it := current.defaults.Iterator(); !it.Done(); {
		_, d := it.Next()
		if match(nil, d) {
			removed++
			continue
		}
		next.defaults = next.defaults.Append(d)
	}
	for it := current.keyed.Iterator(); !it.Done(); {
		_, k := it.Next()
		if match(k.Key, k.Item) {
			removed++
			continue
		}
		next.index = next.index.Set(k.Key, next.keyed.Len())
		next.keyed = next.keyed.Append(k)
	}

	if removed == 0 {
		return t, 0
	}
	if next.Len() == 0 {
		return Table[F]{m: t.m.Delete(serviceType)}, removed
	}
	return Table[F]{m: t.m.Set(serviceType, next)}, removed
}

type typeHasher struct{}

var keySeed = maphash.MakeSeed()

type keyHasher struct{}

func (keyHasher) Hash(k any) uint32 {
	h := maphash.Comparable(keySeed, k)
	return uint32(h ^ (h >> 32))
}

func (keyHasher) Equal(a, b any) bool {
	return a == b
}

func (typeHasher) Hash(t *typesys.Type) uint32 {
	id := t.ID()
	return uint32(id ^ (id >> 32))
}

func (typeHasher) Equal(a, b *typesys.Type) bool {
	return a == b
}
