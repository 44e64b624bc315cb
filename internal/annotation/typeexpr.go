package annotation

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// hostBuiltins are the primitive type names of the declaration language plus
// the predeclared Go types.
var hostBuiltins = map[string]bool{
	"int": true, "float": true, "string": true, "bool": true, "array": true,
	"mixed": true, "void": true, "null": true, "never": true, "iterable": true,
	"object": true, "callable": true, "false": true, "true": true, "self": true,
	"static": true,

	"int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"uintptr": true, "float32": true, "float64": true, "complex64": true,
	"complex128": true, "byte": true, "rune": true, "error": true, "any": true,
}

// IsBuiltin reports whether name is a builtin type name.
func IsBuiltin(name string) bool {
	return hostBuiltins[name]
}

// nullableNames accept null without an explicit null member.
var nullableNames = map[string]bool{"null": true, "mixed": true}

type typeGrammar struct {
	Nullable bool           `parser:"@'?'?"`
	Terms    []*termGrammar `parser:"@@ ( '|' @@ )*"`
}

type termGrammar struct {
	Group []string `parser:"  '(' @Name ( '&' @Name )* ')'"`
	Names []string `parser:"| @Name ( '&' @Name )*"`
}

var typeParser = participle.MustBuild[typeGrammar](
	participle.Lexer(lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Name", Pattern: `[A-Za-z_\\][A-Za-z0-9_.\\/\[\]*]*`},
		{Name: "Punct", Pattern: `[?|&()]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})),
	participle.Elide("Whitespace"),
)

// ParseTypeExpr parses a textual type: int, ?int, int|string|null,
// Countable&Iterator or (A&B)|null. isBuiltin classifies names; nil uses
// IsBuiltin.
func ParseTypeExpr(text string, isBuiltin func(string) bool) (*signature.TypeExpr, error) {
	if isBuiltin == nil {
		isBuiltin = IsBuiltin
	}
	g, err := typeParser.ParseString("", text)
	if err != nil {
		return nil, fmt.Errorf("parsing type %q: %w", text, err)
	}

	named := func(name string) *signature.TypeExpr {
		return signature.NamedExpr(name, isBuiltin(name), nullableNames[name])
	}

	members := make([]*signature.TypeExpr, 0, len(g.Terms))
	for _, t := range g.Terms {
		names := t.Names
		if t.Group != nil {
			names = t.Group
		}
		if len(names) == 1 {
			members = append(members, named(names[0]))
			continue
		}
		parts := make([]*signature.TypeExpr, 0, len(names))
		for _, n := range names {
			parts = append(parts, named(n))
		}
		members = append(members, signature.IntersectionExpr(parts...))
	}

	if g.Nullable {
		if len(members) != 1 || members[0].Kind != signature.TypeNamed {
			return nil, fmt.Errorf("parsing type %q: '?' applies to a single named type", text)
		}
		members[0].Nullable = true
		return members[0], nil
	}
	if len(members) == 1 {
		return members[0], nil
	}
	return signature.UnionExpr(members...), nil
}
