// Package errors provides the error taxonomy of the object layer.
// Every error raised by the engine carries a Kind for programmatic matching
// and a stable ErrorCode that the RPC boundary reports to clients.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode is the stable, client-visible code of an error
type ErrorCode string

const (
	// CodeInternal is reported for unrecognized failures
	CodeInternal ErrorCode = "0001"
	// CodeDatabase is reported for driver and constraint failures
	CodeDatabase ErrorCode = "0002"
	// CodeArgument is reported for malformed arguments and domains
	CodeArgument ErrorCode = "0003"
	// CodeAccessDenied is reported for ACL denials
	CodeAccessDenied ErrorCode = "0005"
	// CodeValidation is reported for rejected record values
	CodeValidation ErrorCode = "0006"
	// CodeResourceNotFound is reported for unknown models and records
	CodeResourceNotFound ErrorCode = "0007"
	// CodeConcurrency is reported for stale record versions
	CodeConcurrency ErrorCode = "0008"
	// CodeDefinition is reported for malformed model declarations
	CodeDefinition ErrorCode = "0009"
	// CodeFieldAccess is reported for references to undeclared fields
	CodeFieldAccess ErrorCode = "0010"
)

// Kind classifies an error
type Kind int

const (
	// KindDefinition marks a malformed field or model declaration
	KindDefinition Kind = iota
	// KindResourceNotFound marks an unknown model or record
	KindResourceNotFound
	// KindFieldAccess marks a reference to a field the model does not declare
	KindFieldAccess
	// KindValidation marks missing required values or readonly writes
	KindValidation
	// KindConcurrency marks a stale _version on write
	KindConcurrency
	// KindSecurity marks an ACL denial
	KindSecurity
	// KindArgument marks a malformed argument or domain
	KindArgument
	// KindArgumentOutOfRange marks an argument naming something unknown
	KindArgumentOutOfRange
	// KindData marks a failure reported by the database
	KindData
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindDefinition:
		return "definition"
	case KindResourceNotFound:
		return "resource_not_found"
	case KindFieldAccess:
		return "field_access"
	case KindValidation:
		return "validation"
	case KindConcurrency:
		return "concurrency"
	case KindSecurity:
		return "security"
	case KindArgument:
		return "argument"
	case KindArgumentOutOfRange:
		return "argument_out_of_range"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Code returns the stable error code for the kind
func (k Kind) Code() ErrorCode {
	switch k {
	case KindDefinition:
		return CodeDefinition
	case KindResourceNotFound:
		return CodeResourceNotFound
	case KindFieldAccess:
		return CodeFieldAccess
	case KindValidation:
		return CodeValidation
	case KindConcurrency:
		return CodeConcurrency
	case KindSecurity:
		return CodeAccessDenied
	case KindArgument, KindArgumentOutOfRange:
		return CodeArgument
	case KindData:
		return CodeDatabase
	default:
		return CodeInternal
	}
}

// Sentinels for errors.Is matching by kind
var (
	ErrDefinition         = &Error{Kind: KindDefinition}
	ErrResourceNotFound   = &Error{Kind: KindResourceNotFound}
	ErrFieldAccess        = &Error{Kind: KindFieldAccess}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrConcurrency        = &Error{Kind: KindConcurrency}
	ErrSecurity           = &Error{Kind: KindSecurity}
	ErrArgument           = &Error{Kind: KindArgument}
	ErrArgumentOutOfRange = &Error{Kind: KindArgumentOutOfRange}
	ErrData               = &Error{Kind: KindData}
)

// Error is the structured error raised by the object layer
type Error struct {
	// Kind classifies the error
	Kind Kind
	// Code is the stable client-visible code
	Code ErrorCode
	// Message is the human-readable description
	Message string
	// Resource is the model the error refers to (optional)
	Resource string
	// Fields maps field names to messages for validation errors
	Fields map[string]string
	// Err is the wrapped cause (optional)
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Resource != "" {
		b.WriteString(" [")
		b.WriteString(e.Resource)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+": "+e.Fields[name])
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by kind. ArgumentOutOfRange errors also match ErrArgument.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind == t.Kind {
		return true
	}
	return e.Kind == KindArgumentOutOfRange && t.Kind == KindArgument
}

func newError(kind Kind, resource, format string, args ...interface{}) *Error {
	return &Error{
		Kind:     kind,
		Code:     kind.Code(),
		Message:  fmt.Sprintf(format, args...),
		Resource: resource,
	}
}

// Definition creates a definition error for a malformed declaration
func Definition(resource, format string, args ...interface{}) *Error {
	return newError(KindDefinition, resource, format, args...)
}

// ResourceNotFound creates an error for an unknown model or record
func ResourceNotFound(resource, format string, args ...interface{}) *Error {
	return newError(KindResourceNotFound, resource, format, args...)
}

// FieldAccess creates an error for a reference to an undeclared field
func FieldAccess(resource, field string) *Error {
	e := newError(KindFieldAccess, resource, "field %q is not declared", field)
	e.Fields = map[string]string{field: "not declared"}
	return e
}

// Validation creates a validation error carrying a field to message map
func Validation(resource string, fields map[string]string) *Error {
	e := newError(KindValidation, resource, "record rejected")
	e.Fields = fields
	return e
}

// Concurrency creates an error for a stale record version
func Concurrency(resource string, id int64) *Error {
	return newError(KindConcurrency, resource, "record %d was modified by another transaction", id)
}

// Security creates an access denied error
func Security(resource, action string) *Error {
	return newError(KindSecurity, resource, "%s access denied", action)
}

// Argument creates an error for a malformed argument
func Argument(resource, format string, args ...interface{}) *Error {
	return newError(KindArgument, resource, format, args...)
}

// ArgumentOutOfRange creates an error for an argument naming an unknown entity
func ArgumentOutOfRange(resource, format string, args ...interface{}) *Error {
	return newError(KindArgumentOutOfRange, resource, format, args...)
}

// Data wraps a database failure
func Data(resource string, err error) *Error {
	e := newError(KindData, resource, "database error")
	e.Err = err
	return e
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// CodeOf returns the stable code for err, CodeInternal for unrecognized errors
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		if e.Code != "" {
			return e.Code
		}
		return e.Kind.Code()
	}
	return CodeInternal
}

// IsRecognized reports whether err belongs to the taxonomy
func IsRecognized(err error) bool {
	_, ok := KindOf(err)
	return ok
}
