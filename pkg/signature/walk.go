package signature

import "fmt"

// declKind selects the rules that differ between kinds of declaration:
// untyped handling and promotion.
type declKind int

const (
	declParameter declKind = iota
	declConstructorParameter
	declProperty
)

// walker turns one ClassMeta into signature values. It only ever looks at
// the declarations of that class; referenced types are recorded by name.
type walker struct {
	identifier string
	untyped    UntypedPropertyPolicy
}

func (w walker) constructorArguments(class *ClassMeta) ([]Parameter, error) {
	if class.Constructor == nil {
		return []Parameter{}, nil
	}
	return w.parameters(class.Constructor.Parameters, declConstructorParameter, "constructor")
}

func (w walker) parameters(metas []ParameterMeta, kind declKind, owner string) ([]Parameter, error) {
	params := make([]Parameter, 0, len(metas))
	for _, m := range metas {
		op := fmt.Sprintf("%s parameter %s", owner, m.Name)
		p, err := w.parameter(m.Name, m.Type, m.Default, m.Attributes, kind, op)
		if err != nil {
			return nil, err
		}
		if kind == declConstructorParameter {
			p.IsPromoted = m.Promoted
		}
		params = append(params, p)
	}
	return params, nil
}

// parameter is shared by constructor parameters, method parameters and
// properties.
func (w walker) parameter(name string, typ *TypeExpr, def *DefaultMeta, attrs []AttributeMeta, kind declKind, op string) (Parameter, error) {
	p := Parameter{
		Name:  name,
		Types: []Type{},
	}

	if typ == nil {
		if kind == declProperty && w.untyped == RejectUntypedProperties {
			return Parameter{}, malformed(CodeUntypedProperty, w.identifier, op, "property has no declared type")
		}
	} else {
		types, err := w.buildTypes(typ, op)
		if err != nil {
			return Parameter{}, err
		}
		p.Types = types
		p.IsAllowsNull = typ.Nullable
	}

	if def != nil {
		value, err := w.resolveDefault(def, op)
		if err != nil {
			return Parameter{}, err
		}
		p.DefaultValue = value
	}

	p.Attributes = buildAttributes(attrs)
	return p, nil
}

func (w walker) resolveDefault(def *DefaultMeta, op string) (*Value, error) {
	if def.Resolve == nil {
		return nil, malformed(CodeDefaultResolution, w.identifier, op, "default %q cannot be resolved", def.Raw)
	}
	data, err := def.Resolve()
	if err != nil {
		return nil, unexpected(CodeDefaultResolution, w.identifier, op,
			fmt.Errorf("%w: resolving default %q: %w", ErrMalformedDeclaration, def.Raw, err))
	}
	return &Value{Data: data}, nil
}

func (w walker) properties(class *ClassMeta) ([]Property, error) {
	properties := make([]Property, 0, len(class.Properties))
	for _, m := range class.Properties {
		op := "property " + m.Name
		p, err := w.parameter(m.Name, m.Type, m.Default, m.Attributes, declProperty, op)
		if err != nil {
			return nil, err
		}
		visibility, err := w.visibility(m.Modifiers, op)
		if err != nil {
			return nil, err
		}
		prop := Property{
			Parameter:  p,
			Visibility: &visibility,
			IsStatic:   boolPtr(m.Modifiers.Has(ModStatic)),
		}
		if m.ReadOnlyKnown {
			prop.IsReadOnly = boolPtr(m.Modifiers.Has(ModReadOnly))
		}
		properties = append(properties, prop)
	}
	return properties, nil
}

func (w walker) methods(class *ClassMeta) ([]Method, error) {
	methods := make([]Method, 0, len(class.Methods))
	for _, m := range class.Methods {
		method, err := w.method(m)
		if err != nil {
			return nil, err
		}
		methods = append(methods, method)
	}
	return methods, nil
}

func (w walker) method(m MethodMeta) (Method, error) {
	op := "method " + m.Name
	method := Method{Name: m.Name}

	if m.ReturnType != nil {
		types, err := w.buildTypes(m.ReturnType, op+" return type")
		if err != nil {
			return Method{}, err
		}
		method.ReturnTypes = types
		method.ReturnAllowsNull = m.ReturnType.Nullable
	}

	visibility, err := w.visibility(m.Modifiers, op)
	if err != nil {
		return Method{}, err
	}
	method.Visibility = visibility
	method.IsStatic = m.Modifiers.Has(ModStatic)

	params, err := w.parameters(m.Parameters, declParameter, op)
	if err != nil {
		return Method{}, err
	}
	method.Parameters = params
	method.Attributes = buildAttributes(m.Attributes)
	return method, nil
}

// visibility requires one of the three visibility flags. Checks run in the
// order private, public, protected and the last match wins.
func (w walker) visibility(mods Modifiers, op string) (Visibility, error) {
	var v Visibility
	if mods.Has(ModPrivate) {
		v = Private
	}
	if mods.Has(ModPublic) {
		v = Public
	}
	if mods.Has(ModProtected) {
		v = Protected
	}
	if v == 0 {
		return 0, malformed(CodeMissingVisibility, w.identifier, op, "no visibility reported")
	}
	return v, nil
}

// buildTypes converts a declared type expression into a union of
// alternatives, preserving declaration order.
func (w walker) buildTypes(t *TypeExpr, op string) ([]Type, error) {
	switch t.Kind {
	case TypeNamed:
		return []Type{namedType(t)}, nil
	case TypeUnion:
		return w.buildUnion(t, op)
	case TypeIntersection:
		it, err := w.buildIntersection(t, op)
		if err != nil {
			return nil, err
		}
		return []Type{it}, nil
	default:
		return nil, malformed(CodeUnsupportedTypeKind, w.identifier, op, "unsupported type kind %d", int(t.Kind))
	}
}

func (w walker) buildUnion(t *TypeExpr, op string) ([]Type, error) {
	types := make([]Type, 0, len(t.Members))
	for _, m := range t.Members {
		if m == nil {
			return nil, malformed(CodeUnsupportedTypeKind, w.identifier, op, "union has a nil member")
		}
		switch m.Kind {
		case TypeNamed:
			types = append(types, namedType(m))
		case TypeIntersection:
			it, err := w.buildIntersection(m, op)
			if err != nil {
				return nil, err
			}
			types = append(types, it)
		case TypeUnion:
			nested, err := w.buildUnion(m, op)
			if err != nil {
				return nil, err
			}
			types = append(types, nested...)
		default:
			return nil, malformed(CodeUnsupportedTypeKind, w.identifier, op, "unsupported type kind %d", int(m.Kind))
		}
	}
	return types, nil
}

func (w walker) buildIntersection(t *TypeExpr, op string) (Type, error) {
	members := make([]NamedType, 0, len(t.Members))
	for _, m := range t.Members {
		if m == nil {
			return Type{}, malformed(CodeUnsupportedTypeKind, w.identifier, op, "intersection has a nil member")
		}
		if m.Kind != TypeNamed {
			return Type{}, malformed(CodeIntersectionMember, w.identifier, op,
				"intersection member is a %s type, only named types are allowed", m.Kind)
		}
		members = append(members, NamedType{DataType: m.Name, IsBuiltin: m.Builtin})
	}
	return Intersection(members...), nil
}

func namedType(t *TypeExpr) Type {
	return Named(t.Name, t.Builtin)
}

// buildAttributes copies attributes in declaration order. An attribute is
// repeated when the provider says so or when its name occurs more than once
// on the declaration.
func buildAttributes(metas []AttributeMeta) []Attribute {
	counts := make(map[string]int, len(metas))
	for _, m := range metas {
		counts[m.Name]++
	}
	attrs := make([]Attribute, 0, len(metas))
	for _, m := range metas {
		args := append([]Argument{}, m.Arguments...)
		attrs = append(attrs, Attribute{
			Name:       m.Name,
			Target:     m.Target,
			IsRepeated: m.Repeated || counts[m.Name] > 1,
			Arguments:  args,
		})
	}
	return attrs
}

func boolPtr(b bool) *bool {
	return &b
}
