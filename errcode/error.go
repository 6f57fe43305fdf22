// Package errcode provides layered error codes for the automation runtime.
// Error code format: MMBBBB (MM = subsystem code 2 digits, BBBB = detail code 4 digits)
package errcode

import "fmt"

// LayeredError is an error with a stable numeric code, a subsystem name,
// optional context data and an optional wrapped cause.
type LayeredError struct {
	subsystem string
	code      int
	msg       string
	data      map[string]interface{}
	cause     error
}

// New creates a layered error code.
// subsystemCode: 10-99, detailCode: 0001-9999.
func New(subsystemCode, detailCode int, subsystem, msg string) *LayeredError {
	return &LayeredError{
		subsystem: subsystem,
		code:      subsystemCode*10000 + detailCode,
		msg:       msg,
		data:      make(map[string]interface{}),
	}
}

func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code returns the full numeric code (MMBBBB).
func (e *LayeredError) Code() int {
	return e.code
}

// Subsystem returns the owning subsystem name.
func (e *LayeredError) Subsystem() string {
	return e.subsystem
}

// Message returns the bare message without the cause chain.
func (e *LayeredError) Message() string {
	return e.msg
}

// Data returns attached context data.
func (e *LayeredError) Data() map[string]interface{} {
	return e.data
}

// Unwrap supports errors.Is/As chains.
func (e *LayeredError) Unwrap() error {
	return e.cause
}

// WithMsgf replaces the message (returns a new instance, the registered
// template is never mutated).
func (e *LayeredError) WithMsgf(format string, args ...interface{}) *LayeredError {
	clone := *e
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// WithData attaches a single context value (returns a new instance).
func (e *LayeredError) WithData(key string, value interface{}) *LayeredError {
	clone := *e
	clone.data = e.cloneData()
	clone.data[key] = value
	return &clone
}

// Wrap attaches a cause (returns a new instance).
func (e *LayeredError) Wrap(cause error) *LayeredError {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// Wrapf attaches a cause and replaces the message (returns a new instance).
func (e *LayeredError) Wrapf(cause error, format string, args ...interface{}) *LayeredError {
	clone := *e
	clone.cause = cause
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// Is matches by code so errors.Is works across WithMsgf/WithData clones.
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *LayeredError) cloneData() map[string]interface{} {
	data := make(map[string]interface{}, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return data
}
