package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned by writes when the store has no remote
	// collaborator; reads degrade to empty state instead.
	ErrNotConfigured     = errors.New("store: remote collaborator not configured")
	ErrInvalidInput      = errors.New("store: invalid input")
	ErrNotFound          = errors.New("store: record not found")
	ErrInvalidTransition = errors.New("store: invalid status transition")
	ErrNoProject         = errors.New("store: no active project")
)

// RemoteError reports a failed call to a remote collaborator. Local state
// is never touched when one is returned.
type RemoteError struct {
	Kind string
	Op   string
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func remoteError(kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Kind: kind, Op: op, Err: err}
}
