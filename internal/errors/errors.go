// Package errors provides the application error type shared across the
// discovery, transfer and socket subsystems.
package errors

import (
	"fmt"
	"time"
)

type ErrorType int

const (
	ErrProtocol ErrorType = iota
	ErrIO
	ErrNetwork
	ErrCrypto
	ErrHashMismatch
	ErrUserCancel
)

func (t ErrorType) String() string {
	switch t {
	case ErrProtocol:
		return "protocol"
	case ErrIO:
		return "io"
	case ErrNetwork:
		return "network"
	case ErrCrypto:
		return "crypto"
	case ErrHashMismatch:
		return "hash_mismatch"
	case ErrUserCancel:
		return "user_cancel"
	default:
		return "unknown"
	}
}

type ErrorLevel int

const (
	INFO ErrorLevel = iota
	WARNING
	ERROR
	FATAL
)

// Errorchan is a best-effort diagnostic feed. Nothing in the Transfer
// Engine or Discovery Service blocks on it or relies on it for control
// flow; a slow or absent consumer never affects a transfer's outcome.
var Errorchan = make(chan *AppError, 100)

type AppError struct {
	Type    ErrorType
	Level   ErrorLevel
	Message string
	Time    time.Time
	Source  string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(errtype ErrorType, level ErrorLevel, source, msg string, cause error) *AppError {
	err := &AppError{
		Type:    errtype,
		Level:   level,
		Message: msg,
		Time:    time.Now(),
		Source:  source,
		Err:     cause,
	}
	select {
	case Errorchan <- err:
	default:
		// diagnostic channel is full; dropping is acceptable, this is
		// best-effort only.
	}
	return err
}
