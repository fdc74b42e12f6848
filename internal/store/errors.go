package store

import "errors"

// ErrStorage matches every *StorageError via errors.Is.
var ErrStorage = errors.New("storage error")

// ErrIDInUse reports a write that reuses an id owned by another collection.
var ErrIDInUse = errors.New("id belongs to another collection")

// StorageError reports that the underlying database rejected an operation.
// It unwraps to the driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// wrapErr wraps a non-nil driver error with the operation name.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
