// Package annotation parses the textual metadata attached to declarations:
// struct tags, //sig: directives and type expressions.
package annotation

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// DefaultKey is the struct tag key that declares a field's default value.
const DefaultKey = "default"

// TagEntry is one key:"value" pair of a struct tag.
type TagEntry struct {
	Key   string
	Value string
}

// Values splits the entry's value on commas. An empty value has no parts.
func (e TagEntry) Values() []string {
	if e.Value == "" {
		return nil
	}
	return strings.Split(e.Value, ",")
}

type tagGrammar struct {
	Entries []*tagEntryGrammar `parser:"@@*"`
}

type tagEntryGrammar struct {
	Key   string `parser:"@Key ':'"`
	Value string `parser:"@String"`
}

var tagParser = participle.MustBuild[tagGrammar](
	participle.Lexer(lexer.MustSimple([]lexer.SimpleRule{
		{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
		{Name: "Key", Pattern: `[^\s:"]+`},
		{Name: "Punct", Pattern: `:`},
		{Name: "Whitespace", Pattern: `\s+`},
	})),
	participle.Unquote("String"),
	participle.Elide("Whitespace"),
)

// ParseTag parses a struct tag into its entries in declaration order.
func ParseTag(tag string) ([]TagEntry, error) {
	g, err := tagParser.ParseString("", tag)
	if err != nil {
		return nil, fmt.Errorf("parsing tag %q: %w", tag, err)
	}
	entries := make([]TagEntry, 0, len(g.Entries))
	for _, e := range g.Entries {
		entries = append(entries, TagEntry{Key: e.Key, Value: e.Value})
	}
	return entries, nil
}

// TagAttributes turns tag entries into attributes: one per key, with the
// comma-separated parts of the value as positional string arguments. Keys
// listed in skip are left out.
func TagAttributes(entries []TagEntry, target signature.Target, skip ...string) []signature.AttributeMeta {
	attrs := make([]signature.AttributeMeta, 0, len(entries))
	for _, e := range entries {
		if contains(skip, e.Key) {
			continue
		}
		args := make([]signature.Argument, 0)
		for _, part := range e.Values() {
			args = append(args, signature.Argument{Value: signature.StringLiteral(part)})
		}
		attrs = append(attrs, signature.AttributeMeta{
			Name:      e.Key,
			Target:    target,
			Arguments: args,
		})
	}
	return attrs
}

// Lookup returns the value of the first entry with key.
func Lookup(entries []TagEntry, key string) (string, bool) {
	for _, e := range entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
