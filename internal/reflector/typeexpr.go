package reflector

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/olehluchkiv/gosignature/internal/annotation"
	"github.com/olehluchkiv/gosignature/pkg/signature"
)

func typeExpr(t reflect.Type) *signature.TypeExpr {
	return signature.NamedExpr(typeString(t), !hasUserType(t), isNilable(t))
}

// typeString renders t with full package paths, unlike reflect.Type.String.
func typeString(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeString(t.Elem())
	case reflect.Slice:
		return "[]" + typeString(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), typeString(t.Elem()))
	case reflect.Map:
		return "map[" + typeString(t.Key()) + "]" + typeString(t.Elem())
	case reflect.Chan:
		switch t.ChanDir() {
		case reflect.RecvDir:
			return "<-chan " + typeString(t.Elem())
		case reflect.SendDir:
			return "chan<- " + typeString(t.Elem())
		default:
			return "chan " + typeString(t.Elem())
		}
	case reflect.Func:
		var b strings.Builder
		b.WriteString("func(")
		for i := range t.NumIn() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(typeString(t.In(i)))
		}
		b.WriteString(")")
		if out := tupleString(t); out != "" {
			b.WriteString(" ")
			b.WriteString(out)
		}
		return b.String()
	default:
		return t.String()
	}
}

func tupleString(ft reflect.Type) string {
	switch ft.NumOut() {
	case 0:
		return ""
	case 1:
		return typeString(ft.Out(0))
	}
	parts := make([]string, ft.NumOut())
	for i := range ft.NumOut() {
		parts[i] = typeString(ft.Out(i))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func returnType(ft reflect.Type) *signature.TypeExpr {
	switch ft.NumOut() {
	case 0:
		return nil
	case 1:
		return typeExpr(ft.Out(0))
	}
	builtin := true
	for i := range ft.NumOut() {
		if hasUserType(ft.Out(i)) {
			builtin = false
		}
	}
	return signature.NamedExpr(tupleString(ft), builtin, false)
}

func isNilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return true
	}
	return false
}

func hasUserType(t reflect.Type) bool {
	if t.Name() != "" {
		return t.PkgPath() != ""
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Chan:
		return hasUserType(t.Elem())
	case reflect.Map:
		return hasUserType(t.Key()) || hasUserType(t.Elem())
	case reflect.Func:
		for i := range t.NumIn() {
			if hasUserType(t.In(i)) {
				return true
			}
		}
		for i := range t.NumOut() {
			if hasUserType(t.Out(i)) {
				return true
			}
		}
	case reflect.Struct:
		for i := range t.NumField() {
			if hasUserType(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

func defaultMeta(raw string, t reflect.Type) *signature.DefaultMeta {
	return &signature.DefaultMeta{
		Raw: raw,
		Resolve: func() (signature.Literal, error) {
			lit, err := annotation.ParseDefault(raw, valueKind(t), isNilable(t))
			if err != nil {
				return signature.Literal{}, fmt.Errorf("default for %s: %w", typeString(t), err)
			}
			return lit, nil
		},
	}
}

func valueKind(t reflect.Type) annotation.ValueKind {
	switch t.Kind() {
	case reflect.String:
		return annotation.ValueString
	case reflect.Bool:
		return annotation.ValueBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return annotation.ValueInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return annotation.ValueUint
	case reflect.Float32, reflect.Float64:
		return annotation.ValueFloat
	default:
		return annotation.ValueJSON
	}
}
