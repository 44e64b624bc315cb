package signature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// LiteralKind identifies which field of a Literal carries its value.
type LiteralKind uint8

const (
	KindNull LiteralKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindMap
)

func (k LiteralKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Literal is an opaque constant: a default value or an attribute argument.
// Exactly the field selected by Kind is meaningful.
type Literal struct {
	Kind  LiteralKind `msgpack:"k"`
	Str   string      `msgpack:"s,omitempty"`
	Int   int64       `msgpack:"i,omitempty"`
	Float float64     `msgpack:"f,omitempty"`
	Bool  bool        `msgpack:"b,omitempty"`
	List  []Literal   `msgpack:"l,omitempty"`
	Map   []Entry     `msgpack:"m,omitempty"`
}

// Entry is one key of a map literal. Maps keep their declared key order.
type Entry struct {
	Key   string  `json:"key" msgpack:"k"`
	Value Literal `json:"value" msgpack:"v"`
}

func NullLiteral() Literal { return Literal{Kind: KindNull} }
func StringLiteral(s string) Literal { return Literal{Kind: KindString, Str: s} }
func IntLiteral(i int64) Literal { return Literal{Kind: KindInt, Int: i} }
func FloatLiteral(f float64) Literal { return Literal{Kind: KindFloat, Float: f} }
func BoolLiteral(b bool) Literal { return Literal{Kind: KindBool, Bool: b} }
func ListLiteral(items ...Literal) Literal { return Literal{Kind: KindList, List: items} }
func MapLiteral(entries ...Entry) Literal { return Literal{Kind: KindMap, Map: entries} }

// IsNull reports whether l is the null literal.
func (l Literal) IsNull() bool {
	return l.Kind == KindNull
}

// Lookup returns the value stored under key in a map literal.
func (l Literal) Lookup(key string) (Literal, bool) {
	for _, e := range l.Map {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Literal{}, false
}

// Interface converts l into plain Go values (nil, string, int64, float64,
// bool, []any, map[string]any). Map key order is lost.
func (l Literal) Interface() any {
	switch l.Kind {
	case KindString:
		return l.Str
	case KindInt:
		return l.Int
	case KindFloat:
		return l.Float
	case KindBool:
		return l.Bool
	case KindList:
		items := make([]any, len(l.List))
		for i, item := range l.List {
			items[i] = item.Interface()
		}
		return items
	case KindMap:
		m := make(map[string]any, len(l.Map))
		for _, e := range l.Map {
			m[e.Key] = e.Value.Interface()
		}
		return m
	default:
		return nil
	}
}

// String renders l in a compact source-like form.
func (l Literal) String() string {
	switch l.Kind {
	case KindString:
		return strconv.Quote(l.Str)
	case KindInt:
		return strconv.FormatInt(l.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(l.Bool)
	case KindList:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, item := range l.List {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(item.String())
		}
		b.WriteByte(']')
		return b.String()
	case KindMap:
		var b bytes.Buffer
		b.WriteByte('{')
		for i, e := range l.Map {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.Key)
			b.WriteString(": ")
			b.WriteString(e.Value.String())
		}
		b.WriteByte('}')
		return b.String()
	default:
		return "null"
	}
}

// MarshalJSON writes l as its natural JSON value, keeping map key order.
func (l Literal) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	if err := l.writeJSON(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (l Literal) writeJSON(b *bytes.Buffer) error {
	switch l.Kind {
	case KindNull:
		b.WriteString("null")
	case KindString:
		s, err := json.Marshal(l.Str)
		if err != nil {
			return err
		}
		b.Write(s)
	case KindInt:
		b.WriteString(strconv.FormatInt(l.Int, 10))
	case KindFloat:
		s, err := json.Marshal(l.Float)
		if err != nil {
			return err
		}
		b.Write(s)
		// keep floats distinguishable from ints on the way back in
		if bytes.IndexAny(s, ".eE") < 0 {
			b.WriteString(".0")
		}
	case KindBool:
		b.WriteString(strconv.FormatBool(l.Bool))
	case KindList:
		b.WriteByte('[')
		for i, item := range l.List {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := item.writeJSON(b); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case KindMap:
		b.WriteByte('{')
		for i, e := range l.Map {
			if i > 0 {
				b.WriteByte(',')
			}
			k, err := json.Marshal(e.Key)
			if err != nil {
				return err
			}
			b.Write(k)
			b.WriteByte(':')
			if err := e.Value.writeJSON(b); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("unknown literal kind %d", l.Kind)
	}
	return nil
}

// UnmarshalJSON reads a natural JSON value. Numbers without a fraction or
// exponent become ints.
func (l *Literal) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeLiteral(dec)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func decodeLiteral(dec *json.Decoder) (Literal, error) {
	tok, err := dec.Token()
	if err != nil {
		return Literal{}, err
	}
	switch t := tok.(type) {
	case nil:
		return NullLiteral(), nil
	case string:
		return StringLiteral(t), nil
	case bool:
		return BoolLiteral(t), nil
	case json.Number:
		return NumberLiteral(t.String())
	case json.Delim:
		switch t {
		case '[':
			list := ListLiteral()
			for dec.More() {
				item, err := decodeLiteral(dec)
				if err != nil {
					return Literal{}, err
				}
				list.List = append(list.List, item)
			}
			if _, err := dec.Token(); err != nil {
				return Literal{}, err
			}
			return list, nil
		case '{':
			m := MapLiteral()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Literal{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Literal{}, fmt.Errorf("unexpected map key %v", keyTok)
				}
				value, err := decodeLiteral(dec)
				if err != nil {
					return Literal{}, err
				}
				m.Map = append(m.Map, Entry{Key: key, Value: value})
			}
			if _, err := dec.Token(); err != nil {
				return Literal{}, err
			}
			return m, nil
		}
	}
	return Literal{}, fmt.Errorf("unexpected JSON token %v", tok)
}

// NumberLiteral parses a decimal number into an int literal when it has no
// fraction or exponent, and into a float literal otherwise.
func NumberLiteral(s string) (Literal, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntLiteral(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Literal{}, fmt.Errorf("parsing number %q: %w", s, err)
	}
	return FloatLiteral(f), nil
}
