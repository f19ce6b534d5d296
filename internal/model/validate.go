package model

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxPayloadLen = 4096
	maxScopeLen   = 128
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateScannedCode checks a ScannedCode for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the record is valid.
func ValidateScannedCode(c *ScannedCode) error {
	var ve ValidationError

	if c.Payload == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "payload", Message: "is required"})
	} else if len(c.Payload) > maxPayloadLen {
		ve.Errors = append(ve.Errors, FieldError{Field: "payload", Message: "must be 4096 bytes or fewer"})
	} else if !utf8.ValidString(c.Payload) {
		ve.Errors = append(ve.Errors, FieldError{Field: "payload", Message: "must be valid UTF-8"})
	}

	if err := ValidateScope(c.StoreScope); err != nil {
		ve.Errors = append(ve.Errors, FieldError{Field: "store_scope", Message: err.Error()})
	}

	if strings.ContainsFunc(string(c.Symbology), unicode.IsSpace) {
		ve.Errors = append(ve.Errors, FieldError{Field: "symbology", Message: "must not contain whitespace"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// scopeError is returned by ValidateScope.
type scopeError string

func (e scopeError) Error() string { return string(e) }

// ValidateScope checks that a store scope is usable as a filter value.
func ValidateScope(scope string) error {
	switch {
	case strings.TrimSpace(scope) == "":
		return scopeError("is required")
	case utf8.RuneCountInString(scope) > maxScopeLen:
		return scopeError("must be 128 characters or fewer")
	case strings.ContainsFunc(scope, unicode.IsControl):
		return scopeError("must not contain control characters")
	}
	return nil
}
