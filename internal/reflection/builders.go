package reflection

import (
	"fmt"
	"reflect"
)

// Call invokes the constructor with one value per entry of Parameters. For
// parameter objects the values are assembled into the In struct first.
// Invalid values leave the corresponding parameter at its zero value.
// Errors returned by the constructor are passed through unchanged.
func (info *ConstructorInfo) Call(args []any) (any, error) {
	if len(args) != len(info.Parameters) {
		return nil, fmt.Errorf("constructor %s expects %d arguments, got %d", info.Type, len(info.Parameters), len(args))
	}

	var in []reflect.Value
	if info.IsParamObject {
		obj, err := info.buildParamObject(args)
		if err != nil {
			return nil, err
		}
		in = []reflect.Value{obj}
	} else {
		in = make([]reflect.Value, len(args))
		for i, p := range info.Parameters {
			v, err := ValueOf(args[i], p.Type)
			if err != nil {
				return nil, fmt.Errorf("argument %d of %s: %w", i, info.Type, err)
			}
			in[i] = v
		}
	}

	out := info.Value.Call(in)

	if info.HasErrorReturn {
		if errVal := out[1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}

	return out[0].Interface(), nil
}

// buildParamObject creates and populates an In struct.
func (info *ConstructorInfo) buildParamObject(args []any) (reflect.Value, error) {
	paramType := info.paramObject
	structType := paramType
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}

	structPtr := reflect.New(structType)
	structValue := structPtr.Elem()

	for i, p := range info.Parameters {
		v, err := ValueOf(args[i], p.Type)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("field %s: %w", p.Name, err)
		}
		field := structValue.Field(p.Index)
		if field.CanSet() {
			field.Set(v)
		}
	}

	if paramType.Kind() == reflect.Pointer {
		return structPtr, nil
	}
	return structValue, nil
}

// ValueOf converts v to a reflect.Value assignable to t. Nil becomes the
// zero value of t.
func ValueOf(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		if rv.Type() != t {
			converted := reflect.New(t).Elem()
			converted.Set(rv)
			return converted, nil
		}
		return rv, nil
	}

	return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", rv.Type(), t)
}
