package property

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/instrkit/instrkit-go/pkg/comms"
)

// Property errors.
var (
	// ErrDeclaration is returned when a property is constructed with
	// inconsistent options. Declaration errors are fatal to the
	// declaration and never occur at runtime.
	ErrDeclaration = errors.New("property: invalid declaration")

	// ErrValidation is returned when a value fails enumeration, range or
	// precondition validation. Validation errors are raised before any
	// transport activity and are never retried.
	ErrValidation = errors.New("property: validation failed")

	// ErrNotReadable is returned when reading a property declared without
	// a getter.
	ErrNotReadable = errors.New("property: not readable")

	// ErrNotWritable is returned when writing a property declared without
	// a setter.
	ErrNotWritable = errors.New("property: not writable")
)

// CommError reports that the instrument failed to apply an operation: the
// post-set verification found the device unhappy. It carries the property
// name and both representations of the value for diagnostics.
type CommError struct {
	// Property is the name of the property being set.
	Property string

	// Value is the user-level value.
	Value any

	// Wire is the converted value that was sent to the instrument.
	Wire any

	// Detail is whatever precision the operation check returned.
	Detail any
}

// Error implements the error interface.
func (e *CommError) Error() string {
	msg := fmt.Sprintf("instrument failed to set %s to %v (%v)",
		e.Property, e.Value, e.Wire)
	if e.Detail != nil {
		msg += fmt.Sprintf(": %v", e.Detail)
	}
	return msg
}

// Unwrap classifies a CommError as a communication failure.
func (e *CommError) Unwrap() error { return comms.ErrCommunication }

// AssertionError reports a failed declarative precondition check. It names
// the property, the assertion that failed, and the values of every
// property the assertion referenced.
type AssertionError struct {
	// Property is the name of the property whose check failed.
	Property string

	// Expression is the source text of the failing assertion.
	Expression string

	// Values holds the referenced property values at evaluation time.
	Values map[string]any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	msg := fmt.Sprintf("precondition of %s failed: %s", e.Property, e.Expression)
	if len(e.Values) > 0 {
		names := make([]string, 0, len(e.Values))
		for n := range e.Values {
			names = append(names, n)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, n := range names {
			parts = append(parts, fmt.Sprintf("%s=%v", n, e.Values[n]))
		}
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	return msg
}

// Unwrap classifies an AssertionError as a validation failure.
func (e *AssertionError) Unwrap() error { return ErrValidation }
