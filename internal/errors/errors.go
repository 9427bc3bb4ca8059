// Package errors defines the typed errors shared by the indexing and
// query subsystems. Every error carries an envelope code so machine
// clients can dispatch on it.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Code is the machine-readable error code used in the JSON envelope.
type Code string

const (
	// CodeInvalidQuery - empty or malformed query/filters.
	CodeInvalidQuery Code = "invalid_query"
	// CodeNotFound - requested root/file/symbol does not exist.
	CodeNotFound Code = "not_found"
	// CodeIO - filesystem read/write failure.
	CodeIO Code = "io_error"
	// CodeParse - top-level parser initialization failure (not per-file).
	CodeParse Code = "parse_error"
	// CodeIndexStale - cache version mismatch and rebuild failed/declined.
	CodeIndexStale Code = "index_stale"
	// CodeCancelled - cooperative cancellation.
	CodeCancelled Code = "cancelled"
	// CodeInternal - invariant violation.
	CodeInternal Code = "internal"
)

// Coded is implemented by errors that know their envelope code.
type Coded interface {
	error
	ErrorCode() Code
}

// CodeOf extracts the envelope code from any error, defaulting to
// internal for errors that don't carry one.
func CodeOf(err error) Code {
	var coded Coded
	if stderrors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeInternal
}

// OpError is a generic operation error with a code and message.
type OpError struct {
	Code       Code
	Message    string
	Underlying error
}

func (e *OpError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *OpError) Unwrap() error   { return e.Underlying }
func (e *OpError) ErrorCode() Code { return e.Code }

// New creates an OpError with a code and formatted message.
func New(code Code, format string, args ...interface{}) *OpError {
	return &OpError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an OpError around an underlying error.
func Wrap(code Code, err error, format string, args ...interface{}) *OpError {
	return &OpError{Code: code, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// InvalidQuery is a convenience constructor for query validation errors.
func InvalidQuery(format string, args ...interface{}) *OpError {
	return New(CodeInvalidQuery, format, args...)
}

// NotFound is a convenience constructor for missing roots/files/symbols.
func NotFound(format string, args ...interface{}) *OpError {
	return New(CodeNotFound, format, args...)
}

// Cancelled is returned when a long operation observes cancellation.
func Cancelled(op string) *OpError {
	return New(CodeCancelled, "%s cancelled", op)
}

// IndexingError represents an error during the indexing process.
type IndexingError struct {
	FilePath    string
	Operation   string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewIndexingError creates a new indexing error with context.
func NewIndexingError(op string, err error) *IndexingError {
	return &IndexingError{
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithFile adds file information to the error.
func (e *IndexingError) WithFile(path string) *IndexingError {
	e.FilePath = path
	return e
}

// WithRecoverable marks the error as recoverable.
func (e *IndexingError) WithRecoverable(recoverable bool) *IndexingError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface.
func (e *IndexingError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("indexing %s failed for %s: %v", e.Operation, e.FilePath, e.Underlying)
	}
	return fmt.Sprintf("indexing %s failed: %v", e.Operation, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *IndexingError) Unwrap() error { return e.Underlying }

// ErrorCode implements Coded.
func (e *IndexingError) ErrorCode() Code { return CodeIO }

// ParseError represents a top-level parser failure (grammar could not
// be loaded, not a per-file syntax error).
type ParseError struct {
	Language   string
	Underlying error
	Timestamp  time.Time
}

// NewParseError creates a new parse error.
func NewParseError(language string, err error) *ParseError {
	return &ParseError{Language: language, Underlying: err, Timestamp: time.Now()}
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parser init failed for %s: %v", e.Language, e.Underlying)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Underlying }

// ErrorCode implements Coded.
func (e *ParseError) ErrorCode() Code { return CodeParse }

// FileError represents a file-related error.
type FileError struct {
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error.
func NewFileError(op, path string, err error) *FileError {
	return &FileError{Path: path, Operation: op, Underlying: err, Timestamp: time.Now()}
}

// Error implements the error interface.
func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error { return e.Underlying }

// ErrorCode implements Coded.
func (e *FileError) ErrorCode() Code { return CodeIO }

// StaleError signals a cache version mismatch that could not be healed
// by a rebuild.
type StaleError struct {
	Want string
	Got  string
}

// Error implements the error interface.
func (e *StaleError) Error() string {
	return fmt.Sprintf("index cache version %q does not match binary %q", e.Got, e.Want)
}

// ErrorCode implements Coded.
func (e *StaleError) ErrorCode() Code { return CodeIndexStale }
