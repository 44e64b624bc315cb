package analyzer

import (
	"fmt"
	"go/types"
	"sort"
	"strings"

	"github.com/olehluchkiv/gosignature/internal/annotation"
	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// classBuilder converts one defined type into ClassMeta.
type classBuilder struct {
	p          *Provider
	identifier string
	named      *types.Named
	scope      *types.Scope // declaring package scope, nil for predeclared types
}

func (b *classBuilder) build() (*signature.ClassMeta, error) {
	class := &signature.ClassMeta{Name: b.identifier}

	if iface, ok := b.named.Underlying().(*types.Interface); ok {
		class.Modifiers = signature.ModAbstract
		methods, err := b.interfaceMethods(iface)
		if err != nil {
			return nil, err
		}
		class.Methods = methods
		return class, nil
	}

	class.Modifiers = signature.ModFinal
	st, _ := b.named.Underlying().(*types.Struct)
	if st != nil {
		props, err := b.properties(st)
		if err != nil {
			return nil, err
		}
		class.Properties = props
		if allReadOnly(props) {
			class.Modifiers |= signature.ModReadOnly
		}
	}

	class.Constructor = b.constructor(st)

	methods, err := b.methods()
	if err != nil {
		return nil, err
	}
	class.Methods = methods
	return class, nil
}

func (b *classBuilder) properties(st *types.Struct) ([]signature.PropertyMeta, error) {
	getters := b.getters()
	props := make([]signature.PropertyMeta, 0, st.NumFields())
	for i := range st.NumFields() {
		f := st.Field(i)
		if f.Name() == "_" {
			continue
		}

		entries, err := annotation.ParseTag(st.Tag(i))
		if err != nil {
			b.p.logger.Warn("ignoring malformed struct tag", "type", b.identifier, "field", f.Name(), "error", err)
			entries = nil
		}

		prop := signature.PropertyMeta{
			Name:      f.Name(),
			Type:      typeExpr(f.Type()),
			Modifiers: visibility(f),
		}
		switch {
		case f.Exported():
			prop.ReadOnlyKnown = true
		case getters[strings.ToLower(f.Name())]:
			prop.ReadOnlyKnown = true
			prop.Modifiers |= signature.ModReadOnly
		}

		if raw, ok := annotation.Lookup(entries, annotation.DefaultKey); ok {
			prop.Default = defaultMeta(raw, f.Type())
		}

		attrs := annotation.TagAttributes(entries, signature.TargetProperty, annotation.DefaultKey)
		directives, err := b.directives(f)
		if err != nil {
			return nil, err
		}
		for _, d := range directives {
			attrs = append(attrs, d.Attribute(signature.TargetProperty))
		}
		prop.Attributes = attrs
		props = append(props, prop)
	}
	return props, nil
}

// getters collects the lower-cased names of exported methods that take no
// arguments and return one value.
func (b *classBuilder) getters() map[string]bool {
	getters := make(map[string]bool)
	for i := range b.named.NumMethods() {
		fn := b.named.Method(i)
		sig := fn.Type().(*types.Signature)
		if fn.Exported() && sig.Params().Len() == 0 && sig.Results().Len() == 1 {
			getters[strings.ToLower(fn.Name())] = true
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

// constructor finds New<Name>, or New, returning the type or a pointer to it.
func (b *classBuilder) constructor(st *types.Struct) *signature.FunctionMeta {
	if b.scope == nil {
		return nil
	}
	var fn *types.Func
	for _, name := range []string{"New" + b.named.Obj().Name(), "New"} {
		if f, ok := b.scope.Lookup(name).(*types.Func); ok && returnsType(f, b.named) {
			fn = f
			break
		}
	}
	if fn == nil {
		return nil
	}

	fields := make(map[string]bool)
	if st != nil {
		for i := range st.NumFields() {
			fields[strings.ToLower(st.Field(i).Name())] = true
		}
	}
	return &signature.FunctionMeta{
		Parameters: parameters(fn.Type().(*types.Signature), fields),
	}
}

func returnsType(fn *types.Func, named *types.Named) bool {
	sig := fn.Type().(*types.Signature)
	if sig.Recv() != nil || sig.Results().Len() == 0 {
		return false
	}
	t := sig.Results().At(0).Type()
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	n, ok := t.(*types.Named)
	return ok && n.Obj() == named.Obj()
}

func (b *classBuilder) methods() ([]signature.MethodMeta, error) {
	fns := make([]*types.Func, 0, b.named.NumMethods())
	for i := range b.named.NumMethods() {
		fns = append(fns, b.named.Method(i))
	}
	return b.buildMethods(fns, 0)
}

// interfaceMethods covers the full method set, embedded interfaces
// included.
func (b *classBuilder) interfaceMethods(iface *types.Interface) ([]signature.MethodMeta, error) {
	fns := make([]*types.Func, 0, iface.NumMethods())
	for i := range iface.NumMethods() {
		fns = append(fns, iface.Method(i))
	}
	return b.buildMethods(fns, signature.ModAbstract)
}

// buildMethods orders methods by declaration position.
func (b *classBuilder) buildMethods(fns []*types.Func, extra signature.Modifiers) ([]signature.MethodMeta, error) {
	sort.SliceStable(fns, func(i, j int) bool { return fns[i].Pos() < fns[j].Pos() })

	methods := make([]signature.MethodMeta, 0, len(fns))
	for _, fn := range fns {
		sig := fn.Type().(*types.Signature)
		m := signature.MethodMeta{
			Name:       fn.Name(),
			Modifiers:  visibility(fn) | extra,
			ReturnType: returnType(sig.Results()),
			Parameters: parameters(sig, nil),
		}
		directives, err := b.directives(fn)
		if err != nil {
			return nil, err
		}
		for _, d := range directives {
			m.Attributes = append(m.Attributes, d.Attribute(signature.TargetMethod))
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// parameters maps a signature's parameters. Unnamed parameters are called
// argN. A parameter is promoted when promotable holds its lower-cased name.
func parameters(sig *types.Signature, promotable map[string]bool) []signature.ParameterMeta {
	params := sig.Params()
	out := make([]signature.ParameterMeta, 0, params.Len())
	for i := range params.Len() {
		v := params.At(i)
		name := v.Name()
		if name == "" || name == "_" {
			name = fmt.Sprintf("arg%d", i)
		}
		out = append(out, signature.ParameterMeta{
			Name:     name,
			Type:     typeExpr(v.Type()),
			Promoted: promotable[strings.ToLower(name)],
		})
	}
	return out
}

func (b *classBuilder) directives(obj types.Object) ([]*annotation.Directive, error) {
	doc := b.p.doc(obj)
	if doc == nil {
		return nil, nil
	}
	lines := make([]string, 0, len(doc.List))
	for _, c := range doc.List {
		lines = append(lines, c.Text)
	}
	directives, err := annotation.ParseDirectives(lines)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %w", signature.ErrMalformedDeclaration, b.identifier, obj.Name(), err)
	}
	return directives, nil
}

// visibility maps Go export rules: unexported is private, exported under an
// internal/ path is protected, anything else is public.
func visibility(obj types.Object) signature.Modifiers {
	if !obj.Exported() {
		return signature.ModPrivate
	}
	if obj.Pkg() != nil && isInternal(obj.Pkg().Path()) {
		return signature.ModProtected
	}
	return signature.ModPublic
}
