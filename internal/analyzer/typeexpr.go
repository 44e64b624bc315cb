package analyzer

import (
	"fmt"
	"go/types"
	"strings"

	"github.com/olehluchkiv/gosignature/internal/annotation"
	"github.com/olehluchkiv/gosignature/pkg/signature"
)

func qualifier(pkg *types.Package) string {
	return pkg.Path()
}

func typeString(t types.Type) string {
	return types.TypeString(t, qualifier)
}

// typeExpr maps a Go type onto a type expression. Defined types keep their
// qualified name, composite types their type string; type parameters are
// described by their constraint.
func typeExpr(t types.Type) *signature.TypeExpr {
	switch t := t.(type) {
	case *types.Basic:
		return signature.NamedExpr(t.Name(), true, t.Kind() == types.UntypedNil || t.Kind() == types.UnsafePointer)
	case *types.Alias:
		if t.Obj().Pkg() == nil {
			return signature.NamedExpr(t.Obj().Name(), true, isNilable(t))
		}
		return typeExpr(types.Unalias(t))
	case *types.TypeParam:
		return typeParamExpr(t)
	case *types.Named:
		if t.Obj().Pkg() == nil {
			return signature.NamedExpr(t.Obj().Name(), true, isNilable(t))
		}
		return signature.NamedExpr(typeString(t), false, isNilable(t))
	default:
		return signature.NamedExpr(typeString(t), !hasUserType(t), isNilable(t))
	}
}

// typeParamExpr describes a type parameter by its constraint: a union of
// terms is a union, several embedded constraints are an intersection.
func typeParamExpr(tp *types.TypeParam) *signature.TypeExpr {
	fallback := signature.NamedExpr(tp.Obj().Name(), false, false)

	iface, ok := tp.Constraint().Underlying().(*types.Interface)
	if !ok || iface.NumExplicitMethods() > 0 {
		return fallback
	}
	switch n := iface.NumEmbeddeds(); {
	case n == 1:
		if u, ok := iface.EmbeddedType(0).(*types.Union); ok {
			return unionExpr(u)
		}
	case n > 1:
		members := make([]*signature.TypeExpr, 0, n)
		for i := range n {
			members = append(members, embeddedExpr(iface.EmbeddedType(i)))
		}
		return signature.IntersectionExpr(members...)
	}
	return fallback
}

func embeddedExpr(t types.Type) *signature.TypeExpr {
	if u, ok := t.(*types.Union); ok {
		return unionExpr(u)
	}
	return typeExpr(t)
}

func unionExpr(u *types.Union) *signature.TypeExpr {
	members := make([]*signature.TypeExpr, 0, u.Len())
	for i := range u.Len() {
		term := u.Term(i)
		m := typeExpr(term.Type())
		if term.Tilde() {
			m.Name = "~" + m.Name
		}
		members = append(members, m)
	}
	if len(members) == 1 {
		return members[0]
	}
	return signature.UnionExpr(members...)
}

// returnType folds a result list: none is no return type, several are one
// tuple type.
func returnType(results *types.Tuple) *signature.TypeExpr {
	switch results.Len() {
	case 0:
		return nil
	case 1:
		return typeExpr(results.At(0).Type())
	}
	parts := make([]string, results.Len())
	builtin := true
	for i := range results.Len() {
		t := results.At(i).Type()
		parts[i] = typeString(t)
		if hasUserType(t) {
			builtin = false
		}
	}
	return signature.NamedExpr("("+strings.Join(parts, ", ")+")", builtin, false)
}

func isNilable(t types.Type) bool {
	switch t.Underlying().(type) {
	case *types.Pointer, *types.Slice, *types.Map, *types.Chan, *types.Signature, *types.Interface:
		return true
	}
	return false
}

// hasUserType reports whether a type mentions a defined type from a package
// or a type parameter.
func hasUserType(t types.Type) bool {
	switch t := t.(type) {
	case *types.Named:
		return t.Obj().Pkg() != nil
	case *types.Alias:
		return hasUserType(types.Unalias(t))
	case *types.TypeParam:
		return true
	case *types.Pointer:
		return hasUserType(t.Elem())
	case *types.Slice:
		return hasUserType(t.Elem())
	case *types.Array:
		return hasUserType(t.Elem())
	case *types.Chan:
		return hasUserType(t.Elem())
	case *types.Map:
		return hasUserType(t.Key()) || hasUserType(t.Elem())
	case *types.Tuple:
		for i := range t.Len() {
			if hasUserType(t.At(i).Type()) {
				return true
			}
		}
		return false
	case *types.Signature:
		return hasUserType(t.Params()) || hasUserType(t.Results())
	case *types.Struct:
		for i := range t.NumFields() {
			if hasUserType(t.Field(i).Type()) {
				return true
			}
		}
		return false
	case *types.Interface:
		for i := range t.NumEmbeddeds() {
			if hasUserType(t.EmbeddedType(i)) {
				return true
			}
		}
		for i := range t.NumExplicitMethods() {
			if hasUserType(t.ExplicitMethod(i).Type()) {
				return true
			}
		}
		return false
	case *types.Union:
		for i := range t.Len() {
			if hasUserType(t.Term(i).Type()) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func defaultMeta(raw string, t types.Type) *signature.DefaultMeta {
	return &signature.DefaultMeta{
		Raw:     raw,
		Resolve: func() (signature.Literal, error) { return resolveDefault(raw, t) },
	}
}

// resolveDefault interprets a default:"..." tag against the field's type.
// Basic types parse the text directly; other types take a JSON value.
func resolveDefault(raw string, t types.Type) (signature.Literal, error) {
	kind := annotation.ValueJSON
	if basic, ok := t.Underlying().(*types.Basic); ok {
		info := basic.Info()
		switch {
		case info&types.IsString != 0:
			kind = annotation.ValueString
		case info&types.IsBoolean != 0:
			kind = annotation.ValueBool
		case info&types.IsUnsigned != 0:
			kind = annotation.ValueUint
		case info&types.IsInteger != 0:
			kind = annotation.ValueInt
		case info&types.IsFloat != 0:
			kind = annotation.ValueFloat
		default:
			return signature.Literal{}, fmt.Errorf("default for %s: unsupported basic type", typeString(t))
		}
	}
	lit, err := annotation.ParseDefault(raw, kind, isNilable(t))
	if err != nil {
		return signature.Literal{}, fmt.Errorf("default for %s: %w", typeString(t), err)
	}
	return lit, nil
}
