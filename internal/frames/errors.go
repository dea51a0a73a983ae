package frames

import (
	"errors"
	"fmt"
)

// Kind distinguishes caller mistakes from infrastructure hiccups
type Kind int

const (
	KindBadInput Kind = iota
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindBadInput:
		return "bad_input"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ValidationError is the single user-facing failure category
type ValidationError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// BadInput reports a missing or malformed input
func BadInput(format string, args ...any) error {
	return &ValidationError{Kind: KindBadInput, Message: fmt.Sprintf(format, args...)}
}

// Transient reports an infrastructure failure such as exhausted fetch retries
func Transient(err error, format string, args ...any) error {
	return &ValidationError{Kind: KindTransient, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsValidation reports whether err carries a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// KindOf returns the kind of a ValidationError in err's chain
func KindOf(err error) (Kind, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return 0, false
}
