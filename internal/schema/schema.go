// Package schema provides signature metadata from a YAML declaration file.
//
// A schema lists types by name:
//
//	types:
//	  - name: shop.Order
//	    final: true
//	    constructor:
//	      parameters:
//	        - {name: id, type: int, promoted: true}
//	    properties:
//	      - {name: id, type: int, visibility: public, readonly: true}
//	    methods:
//	      - {name: total, visibility: public, returns: float}
//
// Type expressions use the declaration syntax understood by
// annotation.ParseTypeExpr. A missing type key leaves the declaration
// untyped, a missing readonly key leaves read-only status unknown.
package schema

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/olehluchkiv/gosignature/internal/annotation"
	"github.com/olehluchkiv/gosignature/pkg/signature"
)

type document struct {
	Types []typeDecl `yaml:"types"`
}

type typeDecl struct {
	Name        string         `yaml:"name"`
	Abstract    bool           `yaml:"abstract"`
	ReadOnly    bool           `yaml:"readonly"`
	Final       bool           `yaml:"final"`
	Constructor *functionDecl  `yaml:"constructor"`
	Properties  []propertyDecl `yaml:"properties"`
	Methods     []methodDecl   `yaml:"methods"`
}

type functionDecl struct {
	Parameters []parameterDecl `yaml:"parameters"`
}

// Default is a yaml.Node by value: an absent key leaves Kind zero, an
// explicit null does not.
type parameterDecl struct {
	Name       string          `yaml:"name"`
	Type       string          `yaml:"type"`
	Promoted   bool            `yaml:"promoted"`
	Default    yaml.Node       `yaml:"default"`
	Attributes []attributeDecl `yaml:"attributes"`
}

type propertyDecl struct {
	Name       string          `yaml:"name"`
	Type       string          `yaml:"type"`
	Visibility string          `yaml:"visibility"`
	Static     bool            `yaml:"static"`
	ReadOnly   *bool           `yaml:"readonly"`
	Default    yaml.Node       `yaml:"default"`
	Attributes []attributeDecl `yaml:"attributes"`
}

type methodDecl struct {
	Name       string          `yaml:"name"`
	Visibility string          `yaml:"visibility"`
	Static     bool            `yaml:"static"`
	Abstract   bool            `yaml:"abstract"`
	Returns    string          `yaml:"returns"`
	Parameters []parameterDecl `yaml:"parameters"`
	Attributes []attributeDecl `yaml:"attributes"`
}

type attributeDecl struct {
	Name      string      `yaml:"name"`
	Repeated  bool        `yaml:"repeated"`
	Arguments []yaml.Node `yaml:"arguments"`
}

// Provider serves the types declared in one schema document.
type Provider struct {
	types map[string]typeDecl
	order []string
}

var _ signature.Provider = (*Provider)(nil)

// Load reads and parses the schema file at path.
func Load(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse parses a schema document. Type names must be unique and non-empty.
func Parse(data []byte) (*Provider, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	p := &Provider{types: make(map[string]typeDecl, len(doc.Types))}
	for i, t := range doc.Types {
		if t.Name == "" {
			return nil, fmt.Errorf("type #%d has no name", i)
		}
		if _, dup := p.types[t.Name]; dup {
			return nil, fmt.Errorf("type %s declared twice", t.Name)
		}
		p.types[t.Name] = t
		p.order = append(p.order, t.Name)
	}
	return p, nil
}

// Identifiers lists the declared types in lexical order.
func (p *Provider) Identifiers() []string {
	ids := append([]string(nil), p.order...)
	sort.Strings(ids)
	return ids
}

// Class implements signature.Provider. Malformed type expressions and
// attribute arguments surface here, wrapping ErrMalformedDeclaration.
func (p *Provider) Class(_ context.Context, name string) (*signature.ClassMeta, error) {
	t, ok := p.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not declared in the schema", signature.ErrTypeNotFound, name)
	}

	class := &signature.ClassMeta{Name: t.Name}
	if t.Abstract {
		class.Modifiers |= signature.ModAbstract
	}
	if t.ReadOnly {
		class.Modifiers |= signature.ModReadOnly
	}
	if t.Final {
		class.Modifiers |= signature.ModFinal
	}

	if t.Constructor != nil {
		params, err := parameters(t.Constructor.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%s constructor: %w", name, err)
		}
		class.Constructor = &signature.FunctionMeta{Parameters: params}
	}

	for _, pd := range t.Properties {
		prop, err := property(pd)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, pd.Name, err)
		}
		class.Properties = append(class.Properties, prop)
	}

	for _, md := range t.Methods {
		m, err := method(md)
		if err != nil {
			return nil, fmt.Errorf("%s.%s(): %w", name, md.Name, err)
		}
		class.Methods = append(class.Methods, m)
	}
	return class, nil
}

func property(pd propertyDecl) (signature.PropertyMeta, error) {
	typ, err := typeExpr(pd.Type)
	if err != nil {
		return signature.PropertyMeta{}, err
	}
	mods, err := visibility(pd.Visibility)
	if err != nil {
		return signature.PropertyMeta{}, err
	}
	if pd.Static {
		mods |= signature.ModStatic
	}
	attrs, err := attributes(pd.Attributes, signature.TargetProperty)
	if err != nil {
		return signature.PropertyMeta{}, err
	}

	prop := signature.PropertyMeta{
		Name:       pd.Name,
		Type:       typ,
		Modifiers:  mods,
		Default:    defaultMeta(&pd.Default),
		Attributes: attrs,
	}
	if pd.ReadOnly != nil {
		prop.ReadOnlyKnown = true
		if *pd.ReadOnly {
			prop.Modifiers |= signature.ModReadOnly
		}
	}
	return prop, nil
}

func method(md methodDecl) (signature.MethodMeta, error) {
	ret, err := typeExpr(md.Returns)
	if err != nil {
		return signature.MethodMeta{}, fmt.Errorf("return type: %w", err)
	}
	mods, err := visibility(md.Visibility)
	if err != nil {
		return signature.MethodMeta{}, err
	}
	if md.Static {
		mods |= signature.ModStatic
	}
	if md.Abstract {
		mods |= signature.ModAbstract
	}
	params, err := parameters(md.Parameters)
	if err != nil {
		return signature.MethodMeta{}, err
	}
	attrs, err := attributes(md.Attributes, signature.TargetMethod)
	if err != nil {
		return signature.MethodMeta{}, err
	}
	return signature.MethodMeta{
		Name:       md.Name,
		Modifiers:  mods,
		ReturnType: ret,
		Parameters: params,
		Attributes: attrs,
	}, nil
}

func parameters(decls []parameterDecl) ([]signature.ParameterMeta, error) {
	params := make([]signature.ParameterMeta, 0, len(decls))
	for _, d := range decls {
		typ, err := typeExpr(d.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", d.Name, err)
		}
		attrs, err := attributes(d.Attributes, signature.TargetParameter)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", d.Name, err)
		}
		params = append(params, signature.ParameterMeta{
			Name:       d.Name,
			Type:       typ,
			Promoted:   d.Promoted,
			Default:    defaultMeta(&d.Default),
			Attributes: attrs,
		})
	}
	return params, nil
}

func typeExpr(text string) (*signature.TypeExpr, error) {
	if text == "" {
		return nil, nil
	}
	expr, err := annotation.ParseTypeExpr(text, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", signature.ErrMalformedDeclaration, err)
	}
	return expr, nil
}

// visibility leaves the modifiers empty when the key is absent; the
// extractor reports that case itself.
func visibility(text string) (signature.Modifiers, error) {
	if text == "" {
		return 0, nil
	}
	v, err := signature.ParseVisibility(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", signature.ErrMalformedDeclaration, err)
	}
	switch v {
	case signature.Protected:
		return signature.ModProtected, nil
	case signature.Private:
		return signature.ModPrivate, nil
	default:
		return signature.ModPublic, nil
	}
}

func attributes(decls []attributeDecl, target signature.Target) ([]signature.AttributeMeta, error) {
	attrs := make([]signature.AttributeMeta, 0, len(decls))
	for _, d := range decls {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: attribute without a name", signature.ErrMalformedDeclaration)
		}
		args := make([]signature.Argument, 0, len(d.Arguments))
		for i := range d.Arguments {
			arg, err := argument(&d.Arguments[i])
			if err != nil {
				return nil, fmt.Errorf("attribute %s: %w", d.Name, err)
			}
			args = append(args, arg)
		}
		attrs = append(attrs, signature.AttributeMeta{
			Name:      d.Name,
			Target:    target,
			Repeated:  d.Repeated,
			Arguments: args,
		})
	}
	return attrs, nil
}

// argument treats a single-key mapping as a named argument.
func argument(n *yaml.Node) (signature.Argument, error) {
	if n.Kind == yaml.MappingNode && len(n.Content) == 2 {
		v, err := literal(n.Content[1])
		if err != nil {
			return signature.Argument{}, err
		}
		return signature.Argument{Name: n.Content[0].Value, Value: v}, nil
	}
	v, err := literal(n)
	if err != nil {
		return signature.Argument{}, err
	}
	return signature.Argument{Value: v}, nil
}

func defaultMeta(n *yaml.Node) *signature.DefaultMeta {
	if n.Kind == 0 {
		return nil
	}
	raw := n.Value
	if n.Kind != yaml.ScalarNode {
		if out, err := yaml.Marshal(n); err == nil {
			raw = string(bytes.TrimSpace(out))
		}
	}
	return &signature.DefaultMeta{
		Raw: raw,
		Resolve: func() (signature.Literal, error) {
			lit, err := literal(n)
			if err != nil {
				return signature.Literal{}, fmt.Errorf("default %q: %w", raw, err)
			}
			return lit, nil
		},
	}
}

// literal converts a YAML node using its resolved tag.
func literal(n *yaml.Node) (signature.Literal, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return literal(n.Alias)
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return signature.NullLiteral(), nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return signature.Literal{}, err
			}
			return signature.BoolLiteral(b), nil
		case "!!int":
			var i int64
			if err := n.Decode(&i); err != nil {
				return signature.Literal{}, err
			}
			return signature.IntLiteral(i), nil
		case "!!float":
			var f float64
			if err := n.Decode(&f); err != nil {
				return signature.Literal{}, err
			}
			return signature.FloatLiteral(f), nil
		default:
			return signature.StringLiteral(n.Value), nil
		}
	case yaml.SequenceNode:
		items := make([]signature.Literal, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := literal(c)
			if err != nil {
				return signature.Literal{}, err
			}
			items = append(items, item)
		}
		return signature.ListLiteral(items...), nil
	case yaml.MappingNode:
		entries := make([]signature.Entry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := literal(n.Content[i+1])
			if err != nil {
				return signature.Literal{}, err
			}
			entries = append(entries, signature.Entry{Key: n.Content[i].Value, Value: v})
		}
		return signature.MapLiteral(entries...), nil
	default:
		return signature.Literal{}, fmt.Errorf("unsupported YAML node kind %d", n.Kind)
	}
}
