package signature

import "context"

// Provider yields the declared metadata of a type. Implementations exist for
// go/types (compile-time), reflect (runtime) and YAML schema files.
//
// Class must return an error wrapping ErrTypeNotFound when name does not
// identify a known type.
type Provider interface {
	Class(ctx context.Context, name string) (*ClassMeta, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, name string) (*ClassMeta, error)

func (f ProviderFunc) Class(ctx context.Context, name string) (*ClassMeta, error) {
	return f(ctx, name)
}

// Modifiers is the set of modifier flags a provider reports for a
// declaration.
type Modifiers uint16

const (
	ModPublic Modifiers = 1 << iota
	ModProtected
	ModPrivate
	ModStatic
	ModReadOnly
	ModAbstract
	ModFinal
)

// Has reports whether every flag in m2 is set.
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

// ClassMeta is the raw metadata of one type, in declaration order.
type ClassMeta struct {
	Name        string
	Modifiers   Modifiers
	Constructor *FunctionMeta // nil when the type declares no constructor
	Properties  []PropertyMeta
	Methods     []MethodMeta
}

// FunctionMeta is a constructor's parameter list.
type FunctionMeta struct {
	Parameters []ParameterMeta
}

// ParameterMeta describes a constructor or method parameter.
type ParameterMeta struct {
	Name       string
	Type       *TypeExpr // nil when untyped
	Promoted   bool      // only meaningful for constructor parameters
	Default    *DefaultMeta
	Attributes []AttributeMeta
}

// PropertyMeta describes a declared property. ReadOnlyKnown is false when
// the provider cannot tell whether the property is read-only; the ModReadOnly
// flag is ignored in that case.
type PropertyMeta struct {
	Name          string
	Type          *TypeExpr
	Modifiers     Modifiers
	ReadOnlyKnown bool
	Default       *DefaultMeta
	Attributes    []AttributeMeta
}

// MethodMeta describes a declared method. ReturnType is nil when no return
// type is declared.
type MethodMeta struct {
	Name       string
	Modifiers  Modifiers
	ReturnType *TypeExpr
	Parameters []ParameterMeta
	Attributes []AttributeMeta
}

// DefaultMeta is a statically known default. Resolve evaluates it.
type DefaultMeta struct {
	Raw     string
	Resolve func() (Literal, error)
}

// ConstDefault returns a DefaultMeta that always resolves to v.
func ConstDefault(v Literal) *DefaultMeta {
	return &DefaultMeta{
		Raw:     v.String(),
		Resolve: func() (Literal, error) { return v, nil },
	}
}

// AttributeMeta is an attribute exactly as the provider reports it.
type AttributeMeta struct {
	Name      string
	Target    Target
	Repeated  bool
	Arguments []Argument
}

// TypeKind is the shape of a declared type expression.
type TypeKind int

const (
	TypeNamed TypeKind = iota
	TypeUnion
	TypeIntersection
)

func (k TypeKind) String() string {
	switch k {
	case TypeNamed:
		return "named"
	case TypeUnion:
		return "union"
	case TypeIntersection:
		return "intersection"
	default:
		return "unknown"
	}
}

// TypeExpr is a declared type expression as the provider sees it. Name and
// Builtin apply to named expressions, Members to unions and intersections.
// Providers may report any nesting; the extractor rejects the ones that are
// not representable.
type TypeExpr struct {
	Kind     TypeKind
	Name     string
	Builtin  bool
	Nullable bool
	Members  []*TypeExpr
}

// NamedExpr builds a named type expression.
func NamedExpr(name string, builtin, nullable bool) *TypeExpr {
	return &TypeExpr{Kind: TypeNamed, Name: name, Builtin: builtin, Nullable: nullable}
}

// UnionExpr builds a union of members. The union accepts null when any
// member does.
func UnionExpr(members ...*TypeExpr) *TypeExpr {
	nullable := false
	for _, m := range members {
		if m.Nullable || (m.Kind == TypeNamed && m.Name == "null") {
			nullable = true
		}
	}
	return &TypeExpr{Kind: TypeUnion, Nullable: nullable, Members: members}
}

// IntersectionExpr builds an intersection of members.
func IntersectionExpr(members ...*TypeExpr) *TypeExpr {
	return &TypeExpr{Kind: TypeIntersection, Members: members}
}
