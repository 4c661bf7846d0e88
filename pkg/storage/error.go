package storage

import (
	"errors"
	"fmt"
)

// Record kinds reported in storage errors.
const (
	KindConversation = "conversation"
	KindMessage      = "message"
	KindModelSource  = "model source"
	KindFolder       = "folder"
	KindSettings     = "settings"
)

// ErrProtectedFolder is returned when deleting the default folder.
var ErrProtectedFolder = errors.New("cannot delete default folder")

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ConflictError is returned when creating a record whose id is taken.
type ConflictError struct {
	Kind string
	ID   string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}
