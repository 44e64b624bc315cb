package signature

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpected matches every error raised by the extractor. These
	// indicate a programming error or an unsupported declaration, not a
	// runtime data problem.
	ErrUnexpected = errors.New("unexpected")

	// ErrTypeNotFound is returned (wrapped) by providers for unknown type
	// identifiers.
	ErrTypeNotFound = errors.New("type not found")

	// ErrMalformedDeclaration marks a declaration the extractor cannot
	// describe.
	ErrMalformedDeclaration = errors.New("malformed declaration")
)

// Error codes carried by UnexpectedError.
const (
	CodeTypeResolution      = 1724442032
	CodeMissingVisibility   = 1724522961
	CodeIntersectionMember  = 1724439483
	CodeUntypedProperty     = 1724600001
	CodeDefaultResolution   = 1724600002
	CodeUnsupportedTypeKind = 1724600003
)

// UnexpectedError is the single error type returned by ReadSignature and
// IsAbstract.
type UnexpectedError struct {
	Code       int
	Identifier string // type being extracted
	Op         string // declaration being read, e.g. "property id"
	Err        error
}

func (e *UnexpectedError) Error() string {
	msg := fmt.Sprintf("unexpected error %d", e.Code)
	if e.Identifier != "" {
		msg += " in " + e.Identifier
	}
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnexpected) hold for every UnexpectedError.
func (e *UnexpectedError) Is(target error) bool {
	return target == ErrUnexpected
}

func unexpected(code int, identifier, op string, err error) *UnexpectedError {
	return &UnexpectedError{Code: code, Identifier: identifier, Op: op, Err: err}
}

func malformed(code int, identifier, op, format string, args ...any) *UnexpectedError {
	err := fmt.Errorf("%w: "+format, append([]any{ErrMalformedDeclaration}, args...)...)
	return unexpected(code, identifier, op, err)
}

// ErrorCode returns the code of the UnexpectedError in err's chain, or 0.
func ErrorCode(err error) int {
	var ue *UnexpectedError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return 0
}
