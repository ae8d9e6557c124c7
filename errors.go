package main

import (
	"errors"
	"fmt"
)

var (
	ErrAgentTimeout   = errors.New("agent did not answer in time")
	ErrAgentBusy      = errors.New("agent still busy with an earlier tick")
	ErrAgentPanic     = errors.New("agent panicked")
	ErrInvalidIntents = errors.New("invalid intents")
	ErrNoPlayers      = errors.New("cannot start a game without players")
	ErrNotStarted     = errors.New("game has not started")
	ErrAlreadyStarted = errors.New("game already started")
)

// Code is a machine readable error class, sent verbatim on the wire
type Code string

const (
	CodeInvalidArgument   Code = "invalid_argument"
	CodeResourceExhausted Code = "resource_exhausted"
	CodeAlreadyExists     Code = "already_exists"
	CodeNotFound          Code = "not_found"
	CodeUnauthenticated   Code = "unauthenticated"
	CodeUnavailable       Code = "unavailable"
	CodeInternal          Code = "internal"
)

// StatusError is a session or protocol error surfaced to a client
type StatusError struct {
	Code Code   `json:"code"`
	Msg  string `json:"msg"`
	Err  error  `json:"-"`
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is matches any StatusError with the same code, so callers can test
// errors.Is(err, &StatusError{Code: CodeNotFound})
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Code == e.Code
}

// Unwrap exposes the sentinel behind the status, if any
func (e *StatusError) Unwrap() error { return e.Err }

func statusWrap(code Code, err error) *StatusError {
	return &StatusError{Code: code, Msg: err.Error(), Err: err}
}

func statusErrorf(code Code, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// StatusCode extracts the wire code of err, CodeInternal for foreign errors
func StatusCode(err error) Code {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// toStatus converts any error into something safe to send to a client
func toStatus(err error) *StatusError {
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}
	return &StatusError{Code: CodeInternal, Msg: "internal error"}
}

// ErrMatchOver is returned to remote clients once the server reports game over
var ErrMatchOver = errors.New("match is over")
