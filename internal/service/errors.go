package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyVoted       = errors.New("user has already liked this item")
	ErrNoExistingVote     = errors.New("user has not liked this item")
	ErrInvalidContentKind = errors.New("invalid content kind")
	ErrMissingFields      = errors.New("missing required fields")
	ErrTooLong            = errors.New("content is too long")
	ErrInvalid            = errors.New("invalid request")
	ErrUnknownOperation   = errors.New("unknown operation")
)

// MissingFieldsError lists every required field absent from a payload
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("Missing required fields: %s", strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error { return ErrMissingFields }

// TooLongError reports a body exceeding the configured maximum
type TooLongError struct {
	Max int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("Message is too long. Maximum length is %d characters.", e.Max)
}

func (e *TooLongError) Unwrap() error { return ErrTooLong }

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

func forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrForbidden)
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalid)
}
