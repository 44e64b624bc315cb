// Package signature extracts immutable descriptions of a type's shape
// (constructor parameters, properties and methods) from a metadata Provider
// and memoizes them in a two-tier cache.
package signature

import (
	"fmt"
	"strings"
)

// ObjectSignature describes one type. Values returned by an Extractor are
// shared with its cache and must not be modified.
type ObjectSignature struct {
	ObjectName           string      `json:"objectName" msgpack:"objectName"`
	IsReadOnly           bool        `json:"isReadOnly" msgpack:"isReadOnly"`
	IsFinal              bool        `json:"isFinal" msgpack:"isFinal"`
	ConstructorArguments []Parameter `json:"constructorArguments" msgpack:"constructorArguments"`
	Properties           []Property  `json:"properties" msgpack:"properties"`
	Methods              []Method    `json:"methods" msgpack:"methods"`
}

// Property looks up a property by name.
func (s *ObjectSignature) Property(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Parameter.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Method looks up a method by name.
func (s *ObjectSignature) Method(name string) (Method, bool) {
	for _, m := range s.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// Parameter is a constructor argument, a method parameter, or the typed part
// of a property.
type Parameter struct {
	Name         string      `json:"name" msgpack:"name"`
	Types        []Type      `json:"types" msgpack:"types"`
	IsPromoted   bool        `json:"isPromoted" msgpack:"isPromoted"`
	IsAllowsNull bool        `json:"isAllowsNull" msgpack:"isAllowsNull"`
	DefaultValue *Value      `json:"defaultValue,omitempty" msgpack:"defaultValue,omitempty"`
	Attributes   []Attribute `json:"attributes" msgpack:"attributes"`
}

// HasDefault reports whether a default value is statically known.
func (p Parameter) HasDefault() bool {
	return p.DefaultValue != nil
}

// Property wraps a Parameter with the facets only properties have. A nil
// facet means the provider could not determine it.
type Property struct {
	Parameter  Parameter   `json:"parameter" msgpack:"parameter"`
	IsReadOnly *bool       `json:"isReadOnly,omitempty" msgpack:"isReadOnly,omitempty"`
	Visibility *Visibility `json:"visibility,omitempty" msgpack:"visibility,omitempty"`
	IsStatic   *bool       `json:"isStatic,omitempty" msgpack:"isStatic,omitempty"`
}

// Method describes one declared method. ReturnTypes is nil when no return
// type is declared, which is different from an empty union.
type Method struct {
	Name             string      `json:"name" msgpack:"name"`
	ReturnTypes      []Type      `json:"returnTypes" msgpack:"returnTypes"`
	ReturnAllowsNull bool        `json:"returnAllowsNull" msgpack:"returnAllowsNull"`
	Visibility       Visibility  `json:"visibility" msgpack:"visibility"`
	IsStatic         bool        `json:"isStatic" msgpack:"isStatic"`
	Parameters       []Parameter `json:"parameters" msgpack:"parameters"`
	Attributes       []Attribute `json:"attributes" msgpack:"attributes"`
}

// NamedType is a single type name.
type NamedType struct {
	DataType  string `json:"dataType" msgpack:"dataType"`
	IsBuiltin bool   `json:"isBuiltin" msgpack:"isBuiltin"`
}

func (n NamedType) String() string {
	return n.DataType
}

// IntersectionType matches values that satisfy every member at once.
type IntersectionType struct {
	NamedTypes []NamedType `json:"namedTypes" msgpack:"namedTypes"`
}

func (t IntersectionType) String() string {
	names := make([]string, len(t.NamedTypes))
	for i, n := range t.NamedTypes {
		names[i] = n.DataType
	}
	return strings.Join(names, "&")
}

// Type is one alternative of a union: either a NamedType or an
// IntersectionType. Exactly one of the two fields is set.
type Type struct {
	Named        *NamedType        `json:"named,omitempty" msgpack:"named,omitempty"`
	Intersection *IntersectionType `json:"intersection,omitempty" msgpack:"intersection,omitempty"`
}

// Named wraps n as a union alternative.
func Named(dataType string, builtin bool) Type {
	return Type{Named: &NamedType{DataType: dataType, IsBuiltin: builtin}}
}

// Intersection wraps members as a union alternative.
func Intersection(members ...NamedType) Type {
	return Type{Intersection: &IntersectionType{NamedTypes: members}}
}

// IsIntersection reports whether t is an intersection alternative.
func (t Type) IsIntersection() bool {
	return t.Intersection != nil
}

func (t Type) String() string {
	switch {
	case t.Named != nil:
		return t.Named.String()
	case t.Intersection != nil:
		return "(" + t.Intersection.String() + ")"
	default:
		return ""
	}
}

// FormatTypes renders a union the way it would be declared.
func FormatTypes(types []Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	if len(parts) == 1 && types[0].IsIntersection() {
		return types[0].Intersection.String()
	}
	return strings.Join(parts, "|")
}

// Attribute is a metadata tag attached to a declaration. Its arguments are
// recorded verbatim and never interpreted.
type Attribute struct {
	Name       string     `json:"name" msgpack:"name"`
	Target     Target     `json:"target" msgpack:"target"`
	IsRepeated bool       `json:"isRepeated" msgpack:"isRepeated"`
	Arguments  []Argument `json:"arguments" msgpack:"arguments"`
}

// Argument is one attribute argument. Name is empty for positional
// arguments.
type Argument struct {
	Name  string  `json:"name,omitempty" msgpack:"name,omitempty"`
	Value Literal `json:"value" msgpack:"value"`
}

// Value boxes a resolved default so that "no default" (nil *Value) can be
// told apart from "defaults to null".
type Value struct {
	Data Literal `json:"data" msgpack:"data"`
}

// Target identifies the kind of declaration an attribute decorates.
type Target int

const (
	TargetClass         Target = 1
	TargetFunction      Target = 2
	TargetMethod        Target = 4
	TargetProperty      Target = 8
	TargetClassConstant Target = 16
	TargetParameter     Target = 32
)

func (t Target) String() string {
	switch t {
	case TargetClass:
		return "class"
	case TargetFunction:
		return "function"
	case TargetMethod:
		return "method"
	case TargetProperty:
		return "property"
	case TargetClassConstant:
		return "class_constant"
	case TargetParameter:
		return "parameter"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// Visibility of a property or method.
type Visibility int

const (
	Public Visibility = iota + 1
	Protected
	Private
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case Protected:
		return "protected"
	case Private:
		return "private"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Visibility) MarshalText() ([]byte, error) {
	switch v {
	case Public, Protected, Private:
		return []byte(v.String()), nil
	default:
		return nil, fmt.Errorf("invalid visibility %d", int(v))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Visibility) UnmarshalText(text []byte) error {
	parsed, err := ParseVisibility(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVisibility parses "public", "protected" or "private".
func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return Public, nil
	case "protected":
		return Protected, nil
	case "private":
		return Private, nil
	default:
		return 0, fmt.Errorf("unknown visibility %q (valid: public, protected, private)", s)
	}
}
