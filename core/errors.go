package core

import (
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError is the message attached to one invalid input field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError rejects an input. Err is the domain cause, if any; Fields name the offending inputs.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err *ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return joinFieldErrors(err.fieldMap())
}

func (err *ValidationError) Unwrap() error {
	return err.Err
}

func (err *ValidationError) fieldMap() map[string]string {
	m := make(map[string]string, len(err.Fields))
	for _, f := range err.Fields {
		if _, ok := m[f.Field]; !ok {
			m[f.Field] = f.Error
		}
	}
	return m
}

// FieldErrors maps each invalid field of err to its message. validator errors are translated
// with translator, which may be nil to skip them. ok is false when err names no field.
func FieldErrors(err error, translator ut.Translator) (fields map[string]string, ok bool) {
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		if translator == nil || len(e) == 0 {
			return nil, false
		}
		return TranslateErrors(e, translator), true
	case *ValidationError:
		if len(e.Fields) == 0 {
			return nil, false
		}
		return e.fieldMap(), true
	}
	return nil, false
}

// joinFieldErrors renders fields as "field: msg" pairs sorted by field.
func joinFieldErrors(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for f, msg := range fields {
		parts = append(parts, f+": "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// DescribeError renders err for a terminal, listing invalid fields when there are any.
func DescribeError(err error, translator ut.Translator) string {
	if fields, ok := FieldErrors(err, translator); ok {
		return joinFieldErrors(fields)
	}
	return err.Error()
}

// shutdownError asks the running app to stop gracefully.
type shutdownError string

func NewShutdownError(msg string) error {
	return shutdownError(msg)
}

func (s shutdownError) Error() string {
	return string(s)
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(shutdownError)
	return ok
}
