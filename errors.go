package smbctx

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrAllocation indicates the engine could not allocate a resource.
	ErrAllocation = errors.New("resource allocation failed")

	// ErrInitialization indicates the engine failed to initialize a connection.
	ErrInitialization = errors.New("connection initialization failed")

	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidPath indicates the path is invalid.
	ErrInvalidPath = errors.New("invalid path")

	// ErrInvalidURL indicates an SMB URL could not be parsed.
	ErrInvalidURL = errors.New("invalid smb url")

	// ErrNotDirectory indicates the path is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrCredentialsReleased indicates a credential store was released twice.
	ErrCredentialsReleased = errors.New("credentials already released")
)

// ContextError records a failure of a context operation.
// Err is either a syscall.Errno or wraps one of the package sentinels.
type ContextError struct {
	Op  string
	Err error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("smbctx %s: %v", e.Op, e.Err)
}

func (e *ContextError) Unwrap() error {
	return e.Err
}

// errnoError wraps a sentinel together with the errno class it maps to, so
// both errors.Is(err, ErrAllocation) and errors.Is(err, syscall.ENOMEM) hold.
type errnoError struct {
	sentinel error
	errno    syscall.Errno
	cause    error
}

func (e *errnoError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%v: %v", e.sentinel, e.cause)
	}
	return e.sentinel.Error()
}

func (e *errnoError) Unwrap() []error {
	errs := []error{e.sentinel, e.errno}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func contextError(op string, err error) error {
	return &ContextError{Op: op, Err: err}
}

func allocationError(op string, cause error) error {
	return contextError(op, &errnoError{sentinel: ErrAllocation, errno: syscall.ENOMEM, cause: cause})
}

func initializationError(op string, cause error) error {
	return contextError(op, &errnoError{sentinel: ErrInitialization, errno: syscall.EIO, cause: cause})
}

// PathError records an error and the operation and path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// wrapPathError wraps an error with operation and path information.
func wrapPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	// If it's already a PathError for the same path, don't double-wrap
	var pe *PathError
	if errors.As(err, &pe) && pe.Path == path {
		return err
	}

	return &PathError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}
