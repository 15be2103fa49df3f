package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"
)

// Code classifies every failure the task lifecycle can surface.
type Code int

const (
	Unknown Code = iota
	Unauthenticated
	Forbidden
	NotFound
	InvalidArgument
	StoreFailure
)

var codeNames = map[Code]string{
	Unknown:         "unknown",
	Unauthenticated: "unauthenticated",
	Forbidden:       "forbidden",
	NotFound:        "not_found",
	InvalidArgument: "invalid_argument",
	StoreFailure:    "store_failure",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return codeNames[Unknown]
}

// ParseCode is the inverse of String. Unrecognised names map to Unknown.
func ParseCode(s string) Code {
	for c, name := range codeNames {
		if name == s {
			return c
		}
	}
	return Unknown
}

func (c Code) HTTPStatus() int {
	switch c {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromHTTPStatus maps a response status back to a code for clients without a decoded body.
func CodeFromHTTPStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized:
		return Unauthenticated
	case http.StatusForbidden:
		return Forbidden
	case http.StatusNotFound:
		return NotFound
	case http.StatusBadRequest:
		return InvalidArgument
	default:
		return StoreFailure
	}
}

// Retryable reports whether the failure may succeed if sent again unchanged.
// Forbidden and InvalidArgument are terminal.
func (c Code) Retryable() bool {
	return c == StoreFailure || c == Unknown
}

type Error struct {
	Code Code
	Msg  string // returned to the caller
	Err  error  // logged only
}

func New(code Code, msg string, underlying error) *Error {
	return &Error{Code: code, Msg: msg, Err: underlying}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code carried by err, or Unknown when err is not an *Error.
func CodeOf(err error) Code {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Code
	}
	return Unknown
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Msg
	}
	return "server error"
}

// WrapStoreReadError maps a gorm read error. A missing record reads as
// "<Target> not found", matching the update and delete paths.
func WrapStoreReadError(target string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return New(NotFound, fmt.Sprintf("%s not found", capitalize(target)), err)
	}
	return New(StoreFailure, "server error", fmt.Errorf("failed to read %s: %w", target, err))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func WrapStoreWriteError(target string, err error) error {
	return New(StoreFailure, "server error", fmt.Errorf("failed to write %s: %w", target, err))
}
