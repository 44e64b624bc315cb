// Package reflector provides signature metadata for registered types using
// runtime reflection.
package reflector

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/olehluchkiv/gosignature/internal/annotation"
	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// Provider describes types registered by sample value. Reflection cannot see
// parameter names, unexported methods, union constraints or source order of
// methods: parameters are named argN, methods come in lexical order and
// types are always plain named types.
type Provider struct {
	logger *slog.Logger

	mu    sync.RWMutex
	types map[string]reflect.Type
	ctors map[string]reflect.Type
}

var _ signature.Provider = (*Provider)(nil)

// New creates an empty Provider.
func New(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		logger: logger.With("component", "reflector"),
		types:  make(map[string]reflect.Type),
		ctors:  make(map[string]reflect.Type),
	}
}

// Register adds the types of samples. Pointers are dereferenced, so
// (*io.Reader)(nil) registers the interface.
func (p *Provider) Register(samples ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range samples {
		t := reflect.TypeOf(s)
		id, err := signature.TypeIdentifier(t)
		if err != nil {
			return fmt.Errorf("registering %T: %w", s, err)
		}
		for t.Kind() == reflect.Pointer && t.Name() == "" {
			t = t.Elem()
		}
		p.types[id] = t
		p.logger.Debug("type registered", "type", id)
	}
	return nil
}

// RegisterConstructor records fn as the constructor of the registered type
// it returns as its first result, by value or by pointer.
func (p *Provider) RegisterConstructor(fn any) error {
	ft := reflect.TypeOf(fn)
	if ft == nil || ft.Kind() != reflect.Func || ft.NumOut() == 0 {
		return fmt.Errorf("constructor must be a function with a result, got %T", fn)
	}
	id, err := signature.TypeIdentifier(ft.Out(0))
	if err != nil {
		return fmt.Errorf("constructor result: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.types[id]; !ok {
		return fmt.Errorf("constructor result %s: %w", id, signature.ErrTypeNotFound)
	}
	p.ctors[id] = ft
	return nil
}

// Identifiers lists the registered types in lexical order.
func (p *Provider) Identifiers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.types))
	for id := range p.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Class implements signature.Provider.
func (p *Provider) Class(_ context.Context, name string) (*signature.ClassMeta, error) {
	p.mu.RLock()
	t, ok := p.types[name]
	ctor := p.ctors[name]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not registered", signature.ErrTypeNotFound, name)
	}

	class := &signature.ClassMeta{Name: name}
	if t.Kind() == reflect.Interface {
		class.Modifiers = signature.ModAbstract
		class.Methods = methods(t, t, signature.ModAbstract)
		return class, nil
	}

	class.Modifiers = signature.ModFinal
	if t.Kind() == reflect.Struct {
		props := properties(t)
		class.Properties = props
		if allReadOnly(props) {
			class.Modifiers |= signature.ModReadOnly
		}
	}
	if ctor != nil {
		class.Constructor = &signature.FunctionMeta{Parameters: parameters(ctor, 0)}
	}
	class.Methods = methods(reflect.PointerTo(t), t, 0)
	return class, nil
}

func properties(t reflect.Type) []signature.PropertyMeta {
	getters := getters(reflect.PointerTo(t))
	props := make([]signature.PropertyMeta, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Name == "_" {
			continue
		}
		// parse errors leave the field without tag metadata
		entries, _ := annotation.ParseTag(string(f.Tag))

		prop := signature.PropertyMeta{
			Name:       f.Name,
			Type:       typeExpr(f.Type),
			Modifiers:  visibility(f.IsExported(), t.PkgPath()),
			Attributes: annotation.TagAttributes(entries, signature.TargetProperty, annotation.DefaultKey),
		}
		switch {
		case f.IsExported():
			prop.ReadOnlyKnown = true
		case getters[strings.ToLower(f.Name)]:
			prop.ReadOnlyKnown = true
			prop.Modifiers |= signature.ModReadOnly
		}
		if raw, ok := annotation.Lookup(entries, annotation.DefaultKey); ok {
			prop.Default = defaultMeta(raw, f.Type)
		}
		props = append(props, prop)
	}
	return props
}

func getters(t reflect.Type) map[string]bool {
	getters := make(map[string]bool)
	for i := range t.NumMethod() {
		m := t.Method(i)
		// receiver is the first input
		if m.Type.NumIn() == 1 && m.Type.NumOut() == 1 {
			getters[strings.ToLower(m.Name)] = true
		}
	}
	return getters
}

func allReadOnly(props []signature.PropertyMeta) bool {
	if len(props) == 0 {
		return false
	}
	for _, p := range props {
		if !p.ReadOnlyKnown || !p.Modifiers.Has(signature.ModReadOnly) {
			return false
		}
	}
	return true
}

// methods lists the method set of t. Concrete method types carry the
// receiver as their first input, interface method types do not.
func methods(t, owner reflect.Type, extra signature.Modifiers) []signature.MethodMeta {
	skip := 1
	if t.Kind() == reflect.Interface {
		skip = 0
	}
	out := make([]signature.MethodMeta, 0, t.NumMethod())
	for i := range t.NumMethod() {
		m := t.Method(i)
		out = append(out, signature.MethodMeta{
			Name:       m.Name,
			Modifiers:  visibility(m.IsExported(), owner.PkgPath()) | extra,
			ReturnType: returnType(m.Type),
			Parameters: parameters(m.Type, skip),
		})
	}
	return out
}

func parameters(ft reflect.Type, skip int) []signature.ParameterMeta {
	params := make([]signature.ParameterMeta, 0, ft.NumIn()-skip)
	for i := skip; i < ft.NumIn(); i++ {
		params = append(params, signature.ParameterMeta{
			Name: fmt.Sprintf("arg%d", i-skip),
			Type: typeExpr(ft.In(i)),
		})
	}
	return params
}

func visibility(exported bool, pkgPath string) signature.Modifiers {
	switch {
	case !exported:
		return signature.ModPrivate
	case isInternal(pkgPath):
		return signature.ModProtected
	default:
		return signature.ModPublic
	}
}

func isInternal(pkgPath string) bool {
	return strings.HasPrefix(pkgPath, "internal/") ||
		strings.HasSuffix(pkgPath, "/internal") ||
		strings.Contains(pkgPath, "/internal/")
}
