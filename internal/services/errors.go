package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrRegistrationClosed    = errors.New("registration is closed")
	ErrCapacityExceeded      = errors.New("event is full")
	ErrDuplicateRegistration = errors.New("already registered for this event")
	ErrConstraintViolation   = errors.New("constraint violation")
	ErrInvalidCredentials    = errors.New("invalid credentials")
)

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError собирает все ошибки входных данных сразу
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err возвращает nil, если ошибок не набралось
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid создаёт ValidationError с одной ошибкой
func Invalid(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}
