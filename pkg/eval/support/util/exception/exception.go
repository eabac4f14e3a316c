// Package exception provides the error types shared by the pvtruth packages.
// Errors carry the module in which they occurred and wrap the underlying cause,
// so callers can classify them with errors.Is and errors.As.
package exception

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// errorRegistry maps error names to sentinel error instances for IsErrorOfType.
var errorRegistry = make(map[string]error)

// registryMutex protects access to errorRegistry.
var registryMutex sync.RWMutex

const (
	// UnknownResolutionException names ErrUnknownResolution in the registry.
	UnknownResolutionException = "UnknownResolutionException"
	// InvalidConfigurationException names ErrInvalidConfiguration in the registry.
	InvalidConfigurationException = "InvalidConfigurationException"
	// NoDataException names ErrNoData in the registry.
	NoDataException = "NoDataException"
	// ObjectNotFoundException names ErrObjectNotFound in the registry.
	ObjectNotFoundException = "ObjectNotFoundException"
)

var (
	// ErrUnknownResolution is returned when a resolution folder name is not in the folder table.
	ErrUnknownResolution = errors.New("unknown resolution folder")
	// ErrInvalidConfiguration is returned for any other invalid setting.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrNoData is returned when a cached folder contains no usable parquet files.
	ErrNoData = errors.New("no data")
	// ErrObjectNotFound is returned by storage adapters when a remote object does not exist.
	ErrObjectNotFound = errors.New("object not found")
)

func init() {
	RegisterErrorType(UnknownResolutionException, ErrUnknownResolution)
	RegisterErrorType(InvalidConfigurationException, ErrInvalidConfiguration)
	RegisterErrorType(NoDataException, ErrNoData)
	RegisterErrorType(ObjectNotFoundException, ErrObjectNotFound)

	RegisterErrorType("fs.ErrNotExist", fs.ErrNotExist)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
}

// RegisterErrorType registers a named sentinel error.
// It panics if name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}
	errorRegistry[name] = prototype
}

// EvalError is the error type returned by pvtruth components.
type EvalError struct {
	// Module is where the error occurred (e.g. "config", "cache", "reader", "aligner").
	Module string
	// Message is a concise description of the failure.
	Message string
	// OriginalErr is the wrapped cause.
	OriginalErr error
	// StackTrace is captured at construction for debugging.
	StackTrace string
}

// NewEvalError creates a new EvalError wrapping originalErr.
func NewEvalError(module, message string, originalErr error) *EvalError {
	return &EvalError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

// NewEvalErrorf creates a new EvalError from a format string.
// If the last argument is an error it becomes OriginalErr and is not used for formatting.
//
//	NewEvalErrorf("cache", "failed to download %s", name, err)
func NewEvalErrorf(module, format string, a ...interface{}) *EvalError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return &EvalError{
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *EvalError) Unwrap() error {
	return e.OriginalErr
}

// IsConfigurationError reports whether err stems from invalid configuration,
// including an unknown resolution folder.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownResolution) || errors.Is(err, ErrInvalidConfiguration)
}

// IsNoData reports whether err signals that no usable data files were found.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}

// IsNotFound reports whether err signals a missing remote or local object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || errors.Is(err, fs.ErrNotExist)
}

// IsErrorOfType checks err against a registered name, a message substring,
// or a Go type name, walking the wrap chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if strings.Contains(cur.Error(), errorTypeName) {
			return true
		}
		if t := reflect.TypeOf(cur); t != nil {
			if t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().String() == errorTypeName) {
				return true
			}
		}
	}
	return false
}

// ExtractErrorMessage returns the Message of an EvalError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Message
	}
	return err.Error()
}
