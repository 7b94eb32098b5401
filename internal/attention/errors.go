package attention

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid or inconsistent hyperparameters. It is
	// only returned from constructors.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrShapeMismatch marks tensors whose shapes do not fit the operation.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrSelectionRange marks a top-k selection that cannot be served by the
	// sequence it is applied to.
	ErrSelectionRange = errors.New("selection out of range")
)

type kindError struct {
	kind error
	msg  string
}

func (e kindError) Error() string {
	return e.kind.Error() + ": " + e.msg
}

func (e kindError) Unwrap() error {
	return e.kind
}

func configErrorf(format string, args ...any) error {
	return kindError{kind: ErrConfiguration, msg: fmt.Sprintf(format, args...)}
}

func shapeErrorf(format string, args ...any) error {
	return kindError{kind: ErrShapeMismatch, msg: fmt.Sprintf(format, args...)}
}

func rangeErrorf(format string, args ...any) error {
	return kindError{kind: ErrSelectionRange, msg: fmt.Sprintf(format, args...)}
}

// ConfigErrorf builds an error that matches ErrConfiguration. It is exported
// for collaborating packages that validate their own hyperparameters.
func ConfigErrorf(format string, args ...any) error {
	return configErrorf(format, args...)
}

// ShapeErrorf builds an error that matches ErrShapeMismatch.
func ShapeErrorf(format string, args ...any) error {
	return shapeErrorf(format, args...)
}
