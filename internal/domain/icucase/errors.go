package icucase

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrDeidBlocked         = errors.New("submission contains possible identifiers")
	ErrInactiveCase        = errors.New("case is not active")
	ErrNotFound            = errors.New("case not found")
	ErrIdentifierExhausted = errors.New("could not allocate a unique patient id")
	ErrCareDayConflict     = errors.New("care day was taken by a concurrent submission")
	ErrInvalidTransition   = errors.New("disposition transition not allowed")
)

// ValidationError names the offending fields. It matches ErrValidation.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Reason, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DeidBlockedError carries the guard's reasons. It matches ErrDeidBlocked.
type DeidBlockedError struct {
	Reasons []string
}

func (e *DeidBlockedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDeidBlocked.Error(), strings.Join(e.Reasons, "; "))
}

func (e *DeidBlockedError) Is(target error) bool {
	return target == ErrDeidBlocked
}

type requiredField struct {
	name  string
	value *string
}

// trimRequired trims every field in place and reports the names of those
// left empty.
func trimRequired(fields ...requiredField) *ValidationError {
	var missing []string
	for _, f := range fields {
		*f.value = strings.TrimSpace(*f.value)
		if *f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing, Reason: "required"}
	}
	return nil
}
