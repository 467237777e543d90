package publish

import "fmt"

// CompilationError represents a failed document build. Log carries the raw
// compiler output.
type CompilationError struct {
	Message string
	Log     string
	Cause   error
}

func (e *CompilationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("compilation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("compilation error: %s", e.Message)
}

func (e *CompilationError) Unwrap() error {
	return e.Cause
}

// StorageError represents a failure writing artifact files.
type StorageError struct {
	Path  string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("artifact storage error for %s: %v", e.Path, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}
