package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// DiagramOptions controls Mermaid diagram generation.
type DiagramOptions struct {
	MaxMembersPerBox int             // default 12, 0 means unlimited
	IncludeInit      bool            // include %%{init:}%% directive (for standalone .mmd files)
	HidePrivate      bool            // omit private properties and methods
	Abstract         map[string]bool // object names rendered as <<interface>>
}

// DefaultDiagramOptions returns sensible defaults for diagram generation.
func DefaultDiagramOptions() DiagramOptions {
	return DiagramOptions{MaxMembersPerBox: 12}
}

// relation is a property of one rendered signature typed with another.
type relation struct {
	from, to, label string
}

// GenerateMermaid produces a Mermaid classDiagram with one block per
// signature.
func GenerateMermaid(sigs []*signature.ObjectSignature, opts DiagramOptions) string {
	var b strings.Builder

	sorted := make([]*signature.ObjectSignature, 0, len(sigs))
	for _, s := range sigs {
		if s != nil {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ObjectName < sorted[j].ObjectName
	})

	rendered := make(map[string]bool, len(sorted))
	for _, s := range sorted {
		rendered[s.ObjectName] = true
	}
	rels := relations(sorted, rendered, opts)

	if opts.IncludeInit {
		b.WriteString("%%{init: {'theme': 'base', 'themeVariables': {'primaryColor': '#ffffff', 'primaryBorderColor': '#cccccc', 'primaryTextColor': '#000000', 'lineColor': '#555555'}}%%\n")
	}
	b.WriteString("classDiagram")
	if len(sorted) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	b.WriteString("    direction LR\n")
	b.WriteString("    classDef interfaceStyle fill:#2374ab,stroke:#1a5a8a,color:#fff,stroke-width:2px,font-weight:bold\n")
	b.WriteString("    classDef implStyle fill:#4a9c6d,stroke:#357a50,color:#fff,stroke-width:2px")

	for _, s := range sorted {
		b.WriteString("\n")
		writeBlock(&b, s, opts)
	}

	if len(rels) > 0 {
		b.WriteString("\n")
	}
	for _, rel := range rels {
		b.WriteString("\n")
		fmt.Fprintf(&b, "    %s --> %s : %s", NodeID(rel.from), NodeID(rel.to), rel.label)
	}

	b.WriteString("\n")
	for _, s := range sorted {
		style := "implStyle"
		if opts.Abstract[s.ObjectName] {
			style = "interfaceStyle"
		}
		fmt.Fprintf(&b, "\n    cssClass \"%s\" %s", NodeID(s.ObjectName), style)
	}

	return b.String()
}

// relations lists property edges between rendered signatures, sorted by
// (from, to, label).
func relations(sigs []*signature.ObjectSignature, rendered map[string]bool, opts DiagramOptions) []relation {
	var rels []relation
	for _, s := range sigs {
		for _, p := range s.Properties {
			if opts.HidePrivate && isPrivate(p.Visibility) {
				continue
			}
			seen := make(map[string]bool)
			for _, name := range namedTypes(p.Parameter.Types) {
				target := elementName(name)
				if rendered[target] && !seen[target] {
					seen[target] = true
					rels = append(rels, relation{from: s.ObjectName, to: target, label: p.Parameter.Name})
				}
			}
		}
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].from != rels[j].from {
			return rels[i].from < rels[j].from
		}
		if rels[i].to != rels[j].to {
			return rels[i].to < rels[j].to
		}
		return rels[i].label < rels[j].label
	})
	return rels
}

func namedTypes(types []signature.Type) []string {
	var names []string
	for _, t := range types {
		switch {
		case t.Named != nil:
			names = append(names, t.Named.DataType)
		case t.Intersection != nil:
			for _, n := range t.Intersection.NamedTypes {
				names = append(names, n.DataType)
			}
		}
	}
	return names
}

// elementName strips pointer, slice and array prefixes: *[]shop.Item
// names shop.Item.
func elementName(name string) string {
	for {
		switch {
		case strings.HasPrefix(name, "*"):
			name = name[1:]
		case strings.HasPrefix(name, "[]"):
			name = name[2:]
		case strings.HasPrefix(name, "["):
			i := strings.Index(name, "]")
			if i < 0 {
				return name
			}
			name = name[i+1:]
		default:
			return name
		}
	}
}

// SanitizeSignature removes characters in member labels that break Mermaid syntax.
// Mermaid treats {}, <>, and ~ as special in class diagram labels.
// Uses only ASCII-safe replacements that work in both mmdc CLI and browser Mermaid.js.
func SanitizeSignature(sig string) string {
	// Replace <-chan with chan (drop direction indicator, Mermaid can't handle <).
	sig = strings.ReplaceAll(sig, "<-chan", "chan")
	// Replace interface{} with "any" BEFORE stripping braces: bare "interface"
	// is a reserved keyword in browser Mermaid.js (<<interface>> tag parsing).
	sig = strings.ReplaceAll(sig, "interface {}", "any")
	sig = strings.ReplaceAll(sig, "interface{}", "any")
	sig = strings.ReplaceAll(sig, "{}", "")
	sig = strings.ReplaceAll(sig, "~", "")
	return sig
}

// NodeID builds a sanitized node ID from an object name.
func NodeID(name string) string {
	r := strings.NewReplacer("/", "_", ".", "_", "-", "_", "\\", "_", "[", "_", "]", "_", "*", "_", ",", "_", " ", "")
	return r.Replace(name)
}

func writeBlock(b *strings.Builder, s *signature.ObjectSignature, opts DiagramOptions) {
	fmt.Fprintf(b, "    class %s {\n", NodeID(s.ObjectName))
	if opts.Abstract[s.ObjectName] {
		b.WriteString("        <<interface>>\n")
	}
	b.WriteString("        %% type: " + s.ObjectName + "\n")

	var lines []string
	for _, p := range s.Properties {
		if opts.HidePrivate && isPrivate(p.Visibility) {
			continue
		}
		lines = append(lines, propertyLine(p))
	}
	for _, m := range s.Methods {
		if opts.HidePrivate && m.Visibility == signature.Private {
			continue
		}
		lines = append(lines, methodLine(m, opts.Abstract[s.ObjectName]))
	}

	limit := len(lines)
	truncated := false
	if opts.MaxMembersPerBox > 0 && limit > opts.MaxMembersPerBox {
		limit = opts.MaxMembersPerBox
		truncated = true
	}
	for _, line := range lines[:limit] {
		b.WriteString("        " + line + "\n")
	}
	if truncated {
		b.WriteString("        ...\n")
	}
	b.WriteString("    }")
}

func propertyLine(p signature.Property) string {
	marker := "+"
	if p.Visibility != nil {
		marker = visibilityMarker(*p.Visibility)
	}
	line := marker + p.Parameter.Name
	if len(p.Parameter.Types) > 0 {
		line = marker + SanitizeSignature(signature.FormatTypes(p.Parameter.Types)) + " " + p.Parameter.Name
	}
	if p.IsStatic != nil && *p.IsStatic {
		line += "$"
	}
	return line
}

func methodLine(m signature.Method, abstract bool) string {
	params := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		params[i] = p.Name
		if len(p.Types) > 0 {
			params[i] += " " + signature.FormatTypes(p.Types)
		}
	}
	line := visibilityMarker(m.Visibility) + m.Name + "(" + strings.Join(params, ", ") + ")"
	if m.ReturnTypes != nil {
		line += " " + signature.FormatTypes(m.ReturnTypes)
	}
	line = SanitizeSignature(line)
	// classifiers go last, after the return type
	switch {
	case abstract:
		line += "*"
	case m.IsStatic:
		line += "$"
	}
	return line
}

func visibilityMarker(v signature.Visibility) string {
	switch v {
	case signature.Protected:
		return "#"
	case signature.Private:
		return "-"
	default:
		return "+"
	}
}

func isPrivate(v *signature.Visibility) bool {
	return v != nil && *v == signature.Private
}
