package annotation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/olehluchkiv/gosignature/pkg/signature"
)

// ValueKind is the shape a default:"..." text is parsed into.
type ValueKind int

const (
	// ValueJSON reads the text as a JSON value.
	ValueJSON ValueKind = iota
	ValueString
	ValueBool
	ValueInt
	ValueUint
	ValueFloat
)

// ParseDefault interprets the text of a default tag. nil and null resolve to
// the null literal when the declared type accepts nil.
func ParseDefault(raw string, kind ValueKind, nilable bool) (signature.Literal, error) {
	if (raw == "nil" || raw == "null") && nilable {
		return signature.NullLiteral(), nil
	}

	switch kind {
	case ValueString:
		return signature.StringLiteral(raw), nil
	case ValueBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return signature.Literal{}, err
		}
		return signature.BoolLiteral(b), nil
	case ValueInt:
		i, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return signature.Literal{}, err
		}
		return signature.IntLiteral(i), nil
	case ValueUint:
		u, err := strconv.ParseUint(raw, 0, 64)
		if err != nil {
			return signature.Literal{}, err
		}
		if u > math.MaxInt64 {
			return signature.Literal{}, fmt.Errorf("%d overflows int64", u)
		}
		return signature.IntLiteral(int64(u)), nil
	case ValueFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return signature.Literal{}, err
		}
		return signature.FloatLiteral(f), nil
	default:
		var lit signature.Literal
		if err := json.Unmarshal([]byte(raw), &lit); err != nil {
			return signature.Literal{}, err
		}
		return lit, nil
	}
}
