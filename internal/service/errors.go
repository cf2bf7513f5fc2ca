package service

import (
	"errors"
	"fmt"
)

// Backend failures shared by every Service implementation.
var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrTimeout            = errors.New("request timed out")
)

// StatusError is a non-2xx response that has no dedicated sentinel.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend status %d", e.Code)
}

// IsAuthError reports whether err means the session is no longer accepted.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
