// Package syncerr holds the error taxonomy shared by the sync core. None of
// these errors is fatal: the worst outcome is stale or reverted local state.
package syncerr

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyText rejects todos whose text is blank after trimming.
	ErrEmptyText = errors.New("todo text must not be empty")
	// ErrDuplicateID rejects an add whose id is already in the local store.
	ErrDuplicateID = errors.New("todo id already exists")
	// ErrUnknownID rejects a mutation of an id the local store does not hold.
	ErrUnknownID = errors.New("todo id not found")
	// ErrEmptyName rejects a blank participant name.
	ErrEmptyName = errors.New("participant name must not be empty")
	// ErrDisconnected is wrapped by TransportError when a send is attempted offline.
	ErrDisconnected = errors.New("channel is disconnected")
)

// TransportError means the connection was lost or a send failed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError means the durable store rejected a mutation.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError rejects input before any network call.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError unless it already is one.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
