package block

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("block not found")
	ErrTemplateNotFound        = errors.New("template not found")
	ErrInvalidParent           = errors.New("parent cannot contain children")
	ErrInvalidType             = errors.New("invalid block type")
	ErrEmptyName               = errors.New("name must not be empty")
	ErrCycleDetected           = errors.New("dependency cycle detected")
	ErrAlreadyInProgress       = errors.New("generation already in progress")
	ErrNotGenerating           = errors.New("no generation in flight")
	ErrNotAwaitingConfirmation = errors.New("block is not awaiting confirmation")
	ErrAlreadyConsumed         = errors.New("history entry already consumed")
	ErrExpired                 = errors.New("history entry expired")
)

// ValidationError rejects a mutation and names the field at fault.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotReadyError carries the precise gaps blocking a generation request so
// callers can guide the user instead of guessing.
type NotReadyError struct {
	Unmet          []Ref    `json:"unmet_dependencies,omitempty"`
	MissingAnswers []string `json:"missing_answers,omitempty"`
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("block is not ready: %d unmet dependencies, %d missing answers",
		len(e.Unmet), len(e.MissingAnswers))
}

// CycleError reports the blocks forming a dependency cycle.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle through %v", e.Cycle)
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }
