package services

import (
	"errors"
	"fmt"

	"referral-ledger/store"
)

// Error kinds. Every error returned by a ledger operation matches exactly one of them with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrConflict            = errors.New("conflict")
	ErrTransaction         = errors.New("transaction failed")
	ErrSettingsUnavailable = errors.New("settings unavailable")
)

// ErrRunInProgress is returned when a return pass is triggered while another is still running.
var ErrRunInProgress = errors.New("return run already in progress")

type LedgerError struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *LedgerError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *LedgerError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func validationError(op, format string, args ...any) error {
	return &LedgerError{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func notFoundError(op, what string) error {
	return &LedgerError{Kind: ErrNotFound, Op: op, Msg: what + " not found"}
}

func conflictError(op, format string, args ...any) error {
	return &LedgerError{Kind: ErrConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// classify maps store errors onto the ledger error kinds. Errors that are already classified pass
// through; anything unknown becomes ErrTransaction.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &LedgerError{Kind: ErrNotFound, Op: op, Msg: "record not found", Err: err}
	case errors.Is(err, store.ErrInsufficientFunds):
		return &LedgerError{Kind: ErrInsufficientFunds, Op: op, Err: err}
	case errors.Is(err, store.ErrDuplicate):
		return &LedgerError{Kind: ErrConflict, Op: op, Msg: "already recorded", Err: err}
	}
	return &LedgerError{Kind: ErrTransaction, Op: op, Err: err}
}

// Message returns the user facing part of err without the operation prefix.
func Message(err error) string {
	var le *LedgerError
	if errors.As(err, &le) {
		if le.Msg != "" {
			return le.Msg
		}
		return le.Kind.Error()
	}
	return err.Error()
}
