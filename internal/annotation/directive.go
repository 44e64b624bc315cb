package annotation

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// DirectivePrefix starts every directive comment line.
const DirectivePrefix = "//sig:"

// Directive is a parsed //sig:Name(args...) comment.
type Directive struct {
	Name      string
	Arguments []signature.Argument
}

// Attribute converts the directive into attribute metadata for target.
func (d *Directive) Attribute(target signature.Target) signature.AttributeMeta {
	return signature.AttributeMeta{
		Name:      d.Name,
		Target:    target,
		Arguments: append([]signature.Argument{}, d.Arguments...),
	}
}

type directiveGrammar struct {
	Name string             `parser:"Prefix @Ident"`
	Args []*argumentGrammar `parser:"( '(' ( @@ ( ',' @@ )* ','? )? ')' )?"`
}

type argumentGrammar struct {
	Name  *string       `parser:"( @Ident '=' )?"`
	Value *valueGrammar `parser:"@@"`
}

type valueGrammar struct {
	Null   bool         `parser:"  @'null'"`
	Bool   *string      `parser:"| @( 'true' | 'false' )"`
	Float  *float64     `parser:"| @Float"`
	Int    *int64       `parser:"| @Int"`
	String *string      `parser:"| @String"`
	List   *listGrammar `parser:"| @@"`
	Map    *mapGrammar  `parser:"| @@"`
	Const  *string      `parser:"| @Ident"`
}

type listGrammar struct {
	Open  string          `parser:"@'['"`
	Items []*valueGrammar `parser:"( @@ ( ',' @@ )* ','? )? ']'"`
}

type mapGrammar struct {
	Open    string             `parser:"@'{'"`
	Entries []*mapEntryGrammar `parser:"( @@ ( ',' @@ )* ','? )? '}'"`
}

type mapEntryGrammar struct {
	Key   string        `parser:"( @Ident | @String | @Int ) ':'"`
	Value *valueGrammar `parser:"@@"`
}

var directiveParser = participle.MustBuild[directiveGrammar](
	participle.Lexer(lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Prefix", Pattern: `//sig:`},
		{Name: "String", Pattern: `"(\\.|[^"\\])*"|'(\\.|[^'\\])*'`},
		{Name: "Float", Pattern: `[-+]?\d+(\.\d+([eE][-+]?\d+)?|[eE][-+]?\d+)`},
		{Name: "Int", Pattern: `[-+]?\d+`},
		{Name: "Ident", Pattern: `[A-Za-z_\\][A-Za-z0-9_.\\]*`},
		{Name: "Punct", Pattern: `[(),\[\]{}=:]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})),
	participle.Unquote("String"),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// IsDirective reports whether a comment line is a directive.
func IsDirective(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), DirectivePrefix)
}

// ParseDirective parses one //sig:Name(arg, key=value, [1, 2], {a: 1}) line.
// The argument list is optional. Bare identifiers other than true, false and
// null are kept as string literals.
func ParseDirective(line string) (*Directive, error) {
	g, err := directiveParser.ParseString("", strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("parsing directive %q: %w", line, err)
	}
	d := &Directive{
		Name:      g.Name,
		Arguments: make([]signature.Argument, 0, len(g.Args)),
	}
	for _, a := range g.Args {
		arg := signature.Argument{Value: a.Value.literal()}
		if a.Name != nil {
			arg.Name = *a.Name
		}
		d.Arguments = append(d.Arguments, arg)
	}
	return d, nil
}

// ParseDirectives parses every directive among comment lines and skips the
// rest.
func ParseDirectives(lines []string) ([]*Directive, error) {
	var directives []*Directive
	for _, line := range lines {
		if !IsDirective(line) {
			continue
		}
		d, err := ParseDirective(line)
		if err != nil {
			return nil, err
		}
		directives = append(directives, d)
	}
	return directives, nil
}

func (v *valueGrammar) literal() signature.Literal {
	switch {
	case v.Null:
		return signature.NullLiteral()
	case v.Bool != nil:
		return signature.BoolLiteral(*v.Bool == "true")
	case v.Float != nil:
		return signature.FloatLiteral(*v.Float)
	case v.Int != nil:
		return signature.IntLiteral(*v.Int)
	case v.String != nil:
		return signature.StringLiteral(*v.String)
	case v.List != nil:
		items := make([]signature.Literal, 0, len(v.List.Items))
		for _, item := range v.List.Items {
			items = append(items, item.literal())
		}
		return signature.ListLiteral(items...)
	case v.Map != nil:
		entries := make([]signature.Entry, 0, len(v.Map.Entries))
		for _, e := range v.Map.Entries {
			entries = append(entries, signature.Entry{Key: e.Key, Value: e.Value.literal()})
		}
		return signature.MapLiteral(entries...)
	case v.Const != nil:
		return signature.StringLiteral(*v.Const)
	default:
		return signature.NullLiteral()
	}
}
