package typesys

import (
	"fmt"
	"reflect"
	"sync"
)

// goTypes maps Go types to their canonical descriptors.
var goTypes sync.Map // map[reflect.Type]*Type

// Lookup returns the descriptor already associated with rt.
func Lookup(rt reflect.Type) (*Type, bool) {
	if rt == nil {
		return nil, false
	}
	if cached, ok := goTypes.Load(rt); ok {
		return cached.(*Type), true
	}
	return nil, false
}

// ForGo returns the plain descriptor for rt, creating it on first use.
func ForGo(rt reflect.Type) *Type {
	if rt == nil {
		return nil
	}
	if cached, ok := goTypes.Load(rt); ok {
		return cached.(*Type)
	}

	t := newType(FormatGoType(rt))
	t.goType.Store(rt)

	actual, _ := goTypes.LoadOrStore(rt, t)
	return actual.(*Type)
}

// Attach associates rt with an existing descriptor (typically a closed
// generic) and returns the canonical descriptor for rt. When rt is already
// associated with another descriptor, that one wins and an error is returned.
func Attach(rt reflect.Type, t *Type) (*Type, error) {
	if rt == nil || t == nil {
		return nil, fmt.Errorf("typesys: cannot attach nil type")
	}
	if t.IsOpen() {
		return nil, fmt.Errorf("typesys: cannot attach Go type %s to open type %s", rt, t)
	}

	actual, loaded := goTypes.LoadOrStore(rt, t)
	existing := actual.(*Type)
	if loaded && existing != t {
		return existing, fmt.Errorf("typesys: Go type %s is already described by %s", rt, existing)
	}
	if !t.attach(rt) {
		return t, fmt.Errorf("typesys: %s is already backed by Go type %s", t, t.GoType())
	}
	return t, nil
}

// FormatGoType renders rt compactly for descriptor names and messages.
func FormatGoType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	case reflect.Map:
		key, elem := t.Key(), t.Elem()
		keyStr := key.Name()
		if keyStr == "" {
			keyStr = key.String()
		}
		elemStr := elem.Name()
		if elemStr == "" {
			elemStr = elem.String()
		}
		return "map[" + keyStr + "]" + elemStr
	case reflect.Func:
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
