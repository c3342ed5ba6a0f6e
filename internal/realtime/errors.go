package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrorCode classifies a connection failure. The transport layer reports
// a structured code; nothing in the client matches on error-message
// text, so backend wording changes cannot flip the retry decision.
type ErrorCode int

const (
	// CodeTransient marks a failure worth retrying: network drop,
	// timeout, unreachable backend.
	CodeTransient ErrorCode = iota

	// CodeAuthFailure marks an invalid or expired credential. Retrying
	// with the same token would loop without success, so automatic
	// reconnection stops until the caller supplies a fresh one.
	CodeAuthFailure
)

func (c ErrorCode) String() string {
	switch c {
	case CodeAuthFailure:
		return "auth_failure"
	default:
		return "transient"
	}
}

// Error is a classified connection error.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("realtime: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify returns the error's code, defaulting to transient for
// anything unclassified.
func Classify(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeTransient
}

// tokenExpired reports whether the token is a JWT whose expiry claim has
// passed. The signature is deliberately not verified; that is the
// backend's job. A token that is not a JWT cannot be classified locally
// and is left for the backend to judge.
func tokenExpired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now())
}
