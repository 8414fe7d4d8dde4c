// Package reflection inspects constructor functions once, at registration
// time, so resolution never has to look at function signatures again.
package reflection

import (
	"fmt"
	"reflect"
	"sync"
)

// In marks a struct as a parameter object: each exported field becomes a
// dependency. Fields understand the tags `key:"..."`, `optional:"true"` and
// `inject:"-"`.
type In struct{}

var (
	inType  = reflect.TypeFor[In]()
	errType = reflect.TypeFor[error]()
)

// Analyzer performs reflection-based analysis of constructors.
// It caches analysis results keyed by function pointer.
type Analyzer struct {
	mu    sync.RWMutex
	cache map[uintptr]*ConstructorInfo
}

// ConstructorInfo contains analyzed information about a constructor function.
type ConstructorInfo struct {
	Type           reflect.Type
	Value          reflect.Value
	Parameters     []ParameterInfo
	Result         reflect.Type
	HasErrorReturn bool

	// IsParamObject is set when the single parameter embeds In.
	IsParamObject bool
	paramObject   reflect.Type
}

// ParameterInfo describes a constructor parameter or a field of an In struct.
type ParameterInfo struct {
	Type     reflect.Type
	Name     string // field name for In structs
	Index    int    // parameter index or field index
	Optional bool   // from optional:"true"
	Key      any    // from key:"..."
}

// TagInfo contains parsed struct tag information.
type TagInfo struct {
	Optional bool
	Key      string
	Ignore   bool
}

// New creates a new Analyzer.
func New() *Analyzer {
	return &Analyzer{
		cache: make(map[uintptr]*ConstructorInfo),
	}
}

// Analyze analyzes a constructor function and extracts its dependencies.
func (a *Analyzer) Analyze(constructor any) (*ConstructorInfo, error) {
	if constructor == nil {
		return nil, fmt.Errorf("constructor cannot be nil")
	}

	val := reflect.ValueOf(constructor)
	if val.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %T", constructor)
	}
	if val.IsNil() {
		return nil, fmt.Errorf("constructor cannot be nil")
	}

	// Different closures over the same code share a pointer, so the type is
	// part of the check below.
	cacheKey := val.Pointer()

	a.mu.RLock()
	if cached, ok := a.cache[cacheKey]; ok && cached.Type == val.Type() {
		a.mu.RUnlock()
		return cached.withValue(val), nil
	}
	a.mu.RUnlock()

	info := &ConstructorInfo{
		Type:  val.Type(),
		Value: val,
	}

	if info.Type.IsVariadic() {
		return nil, fmt.Errorf("variadic constructor %s is not supported", info.Type)
	}

	if err := a.analyzeParameters(info); err != nil {
		return nil, fmt.Errorf("failed to analyze parameters: %w", err)
	}

	if err := a.analyzeReturns(info); err != nil {
		return nil, fmt.Errorf("failed to analyze returns: %w", err)
	}

	a.mu.Lock()
	a.cache[cacheKey] = info
	a.mu.Unlock()

	return info, nil
}

// withValue returns a copy of info bound to val. Closures share analysis
// but not captured state.
func (info *ConstructorInfo) withValue(val reflect.Value) *ConstructorInfo {
	clone := *info
	clone.Value = val
	return &clone
}

// analyzeParameters analyzes function parameters or In struct fields.
func (a *Analyzer) analyzeParameters(info *ConstructorInfo) error {
	fnType := info.Type

	if fnType.NumIn() == 1 && hasEmbeddedType(fnType.In(0), inType) {
		info.IsParamObject = true
		info.paramObject = fnType.In(0)
		return a.analyzeParamObject(info, fnType.In(0))
	}

	info.Parameters = make([]ParameterInfo, fnType.NumIn())
	for i := 0; i < fnType.NumIn(); i++ {
		info.Parameters[i] = ParameterInfo{
			Type:  fnType.In(i),
			Index: i,
		}
	}

	return nil
}

// analyzeParamObject analyzes an In struct's fields.
func (a *Analyzer) analyzeParamObject(info *ConstructorInfo, structType reflect.Type) error {
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}

	if structType.Kind() != reflect.Struct {
		return fmt.Errorf("In parameter must be a struct, got %v", structType.Kind())
	}

	params := make([]ParameterInfo, 0, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)

		if !field.IsExported() {
			continue
		}
		if field.Anonymous && field.Type == inType {
			continue
		}

		tagInfo := parseFieldTags(field.Tag)
		if tagInfo.Ignore {
			continue
		}

		param := ParameterInfo{
			Type:     field.Type,
			Name:     field.Name,
			Index:    i,
			Optional: tagInfo.Optional,
		}
		if tagInfo.Key != "" {
			param.Key = tagInfo.Key
		}

		params = append(params, param)
	}

	info.Parameters = params
	return nil
}

// analyzeReturns requires a single result, optionally followed by an error.
func (a *Analyzer) analyzeReturns(info *ConstructorInfo) error {
	fnType := info.Type

	switch fnType.NumOut() {
	case 1:
		if fnType.Out(0) == errType {
			return fmt.Errorf("constructor %s only returns error", fnType)
		}
		info.Result = fnType.Out(0)
	case 2:
		if !fnType.Out(1).Implements(errType) {
			return fmt.Errorf("second result of %s must be error", fnType)
		}
		info.Result = fnType.Out(0)
		info.HasErrorReturn = true
	default:
		return fmt.Errorf("constructor %s must return a value and an optional error", fnType)
	}

	return nil
}

// CacheSize returns the number of cached analyses.
func (a *Analyzer) CacheSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}

// Clear clears the analysis cache.
func (a *Analyzer) Clear() {
	a.mu.Lock()
	a.cache = make(map[uintptr]*ConstructorInfo)
	a.mu.Unlock()
}

// parseFieldTags parses struct field tags for injection annotations.
func parseFieldTags(tag reflect.StructTag) TagInfo {
	info := TagInfo{}

	if val, ok := tag.Lookup("optional"); ok {
		info.Optional = val == "true"
	}
	if val, ok := tag.Lookup("key"); ok {
		info.Key = val
	}
	if val, ok := tag.Lookup("inject"); ok && val == "-" {
		info.Ignore = true
	}

	return info
}

// hasEmbeddedType checks if a struct type has an embedded field of the given type.
func hasEmbeddedType(t, embedded reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type == embedded {
			return true
		}
	}

	return false
}
