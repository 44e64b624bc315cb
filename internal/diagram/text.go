package diagram

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// palette holds the colors of one WriteText call. Colors are enabled or
// disabled per call so concurrent writers don't race on color.NoColor.
type palette struct {
	title, section, name, typ, muted *color.Color
}

func newPalette(colored bool) palette {
	p := palette{
		title:   color.New(color.FgCyan, color.Bold),
		section: color.New(color.FgBlue),
		name:    color.New(color.FgGreen),
		typ:     color.New(color.FgYellow),
		muted:   color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{p.title, p.section, p.name, p.typ, p.muted} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// WriteText writes a human-readable summary of sig.
func WriteText(w io.Writer, sig *signature.ObjectSignature, colored bool) error {
	p := newPalette(colored)
	var b strings.Builder

	var flags []string
	if sig.IsFinal {
		flags = append(flags, "final")
	}
	if sig.IsReadOnly {
		flags = append(flags, "readonly")
	}
	b.WriteString(p.title.Sprint(sig.ObjectName))
	if len(flags) > 0 {
		b.WriteString(" " + p.muted.Sprintf("[%s]", strings.Join(flags, ", ")))
	}
	b.WriteString("\n")

	b.WriteString(p.section.Sprint("Constructor:") + "\n")
	if len(sig.ConstructorArguments) == 0 {
		b.WriteString("  " + p.muted.Sprint("(none)") + "\n")
	}
	for _, arg := range sig.ConstructorArguments {
		b.WriteString("  " + p.parameter(arg))
		if arg.IsPromoted {
			b.WriteString(" " + p.muted.Sprint("(promoted)"))
		}
		b.WriteString("\n")
	}

	b.WriteString(p.section.Sprint("Properties:") + "\n")
	if len(sig.Properties) == 0 {
		b.WriteString("  " + p.muted.Sprint("(none)") + "\n")
	}
	for _, prop := range sig.Properties {
		var mods []string
		if prop.Visibility != nil {
			mods = append(mods, prop.Visibility.String())
		}
		if prop.IsStatic != nil && *prop.IsStatic {
			mods = append(mods, "static")
		}
		if prop.IsReadOnly != nil && *prop.IsReadOnly {
			mods = append(mods, "readonly")
		}
		b.WriteString("  ")
		if len(mods) > 0 {
			b.WriteString(p.muted.Sprint(strings.Join(mods, " ")) + " ")
		}
		b.WriteString(p.parameter(prop.Parameter) + "\n")
	}

	b.WriteString(p.section.Sprint("Methods:") + "\n")
	if len(sig.Methods) == 0 {
		b.WriteString("  " + p.muted.Sprint("(none)") + "\n")
	}
	for _, m := range sig.Methods {
		mods := m.Visibility.String()
		if m.IsStatic {
			mods += " static"
		}
		params := make([]string, len(m.Parameters))
		for i, param := range m.Parameters {
			params[i] = p.parameter(param)
		}
		b.WriteString("  " + p.muted.Sprint(mods) + " " + p.name.Sprint(m.Name) + "(" + strings.Join(params, ", ") + ")")
		if m.ReturnTypes != nil {
			b.WriteString(": " + p.typ.Sprint(signature.FormatTypes(m.ReturnTypes)))
		}
		b.WriteString(attributeSuffix(m.Attributes) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	if err != nil {
		return fmt.Errorf("writing signature: %w", err)
	}
	return nil
}

// parameter renders "name: type = default".
func (p palette) parameter(param signature.Parameter) string {
	s := p.name.Sprint(param.Name)
	if len(param.Types) > 0 {
		s += ": " + p.typ.Sprint(signature.FormatTypes(param.Types))
	}
	if param.DefaultValue != nil {
		s += " = " + param.DefaultValue.Data.String()
	}
	return s + attributeSuffix(param.Attributes)
}

func attributeSuffix(attrs []signature.Attribute) string {
	if len(attrs) == 0 {
		return ""
	}
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = "@" + a.Name
	}
	return " " + strings.Join(names, " ")
}
