package typesys

import "reflect"

// AssignableTo reports whether a value of src can serve where dst is expected.
//
// The relation is reflexive and honours, in order: Go assignability when both
// descriptors carry a Go type, struct embedding, declared bases and, for
// closed types of the same definition, per-parameter variance.
func AssignableTo(src, dst *Type) bool {
	if src == nil || dst == nil {
		return false
	}
	if src == dst {
		return true
	}

	if sr, dr := src.GoType(), dst.GoType(); sr != nil && dr != nil {
		if sr.AssignableTo(dr) || embeds(sr, dr) {
			return true
		}
	}

	for _, b := range src.bases {
		if AssignableTo(b, dst) {
			return true
		}
	}

	if src.def != nil && src.def == dst.def {
		for i, p := range src.def.params {
			sa, da := src.args[i], dst.args[i]
			switch p.Variance {
			case Covariant:
				if !AssignableTo(sa, da) {
					return false
				}
			case Contravariant:
				if !AssignableTo(da, sa) {
					return false
				}
			default:
				if sa != da {
					return false
				}
			}
		}
		return true
	}

	return false
}

// embeds reports whether src is a struct (or pointer to struct) that embeds
// dst, directly or through other embedded structs.
func embeds(src, dst reflect.Type) bool {
	return embedsDepth(src, dst, 0)
}

func embedsDepth(src, dst reflect.Type, depth int) bool {
	if depth > 8 {
		return false
	}
	if src.Kind() == reflect.Pointer {
		src = src.Elem()
	}
	if src.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < src.NumField(); i++ {
		f := src.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft == dst || (dst.Kind() == reflect.Pointer && dst.Elem() == ft) {
			return true
		}
		if embedsDepth(ft, dst, depth+1) {
			return true
		}
	}
	return false
}

// Unify matches template against concrete, recording placeholder bindings in
// binding (indexed by placeholder position). It reports false on conflict.
func Unify(template, concrete *Type, binding []*Type) bool {
	if template == nil || concrete == nil {
		return false
	}

	if template.IsPlaceholder() {
		i := template.index
		if i >= len(binding) {
			return false
		}
		if binding[i] == nil {
			binding[i] = concrete
			return true
		}
		return binding[i] == concrete
	}

	if !template.IsOpen() {
		return template == concrete
	}

	if template.def == nil || template.def != concrete.def {
		return false
	}
	for i := range template.args {
		if !Unify(template.args[i], concrete.args[i], binding) {
			return false
		}
	}
	return true
}

// Substitute replaces placeholders in t with args. Placeholders without a
// matching argument are left in place.
func Substitute(t *Type, args []*Type) *Type {
	if t == nil || !t.IsOpen() {
		return t
	}
	if t.IsPlaceholder() {
		if t.index < len(args) && args[t.index] != nil {
			return args[t.index]
		}
		return t
	}

	closed := make([]*Type, len(t.args))
	for i, a := range t.args {
		closed[i] = Substitute(a, args)
	}
	return t.def.Of(closed...)
}
