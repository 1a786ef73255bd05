package localstore

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record matches a local or server id.
var ErrNotFound = errors.New("record not found")

// ErrModified is returned by MarkSynced when the record changed after the
// uploaded version was read.
var ErrModified = errors.New("record modified since upload")

// PersistError reports that the substrate rejected a write. The in-memory
// state already reflects the operation; only durability was lost.
type PersistError struct {
	Key string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Key, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
