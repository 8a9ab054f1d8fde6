package catalog

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes reported in LoadError.
const (
	ErrCodeNotFound    = "E001" // Path not found or not a directory
	ErrCodeNoFiles     = "E002" // No CUE files found
	ErrCodeLoadFailed  = "E003" // CUE load failed
	ErrCodeBuildFailed = "E004" // CUE build failed
	ErrCodeInvalid     = "E005" // Rule or product failed validation
)

// LoadError is a catalog error with the CUE position that caused it.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func invalid(field string, pos token.Pos, format string, args ...any) *LoadError {
	return &LoadError{Code: ErrCodeInvalid, Field: field, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(code, field string, err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Field: field, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Field: field, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
