// Package errors provides structured error types for the benchmark harness.
// Every error carries a category and a code; the category decides how far an
// error propagates (whole program, one matrix cell, or nowhere at all).
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the scope they abort.
type ErrorCategory string

const (
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryConnection ErrorCategory = "CONNECTION"
	ErrCategoryProvision  ErrorCategory = "PROVISION"
	ErrCategoryLoad       ErrorCategory = "LOAD"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryResults    ErrorCategory = "RESULTS"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Config codes
	CodeEmptyCorpus       = "EMPTY_CORPUS"
	CodeMissingDirectory  = "MISSING_DIRECTORY"
	CodeNoQueriesSelected = "NO_QUERIES_SELECTED"
	CodeConflictingFlags  = "CONFLICTING_FLAGS"
	CodeInvalidTimeout    = "INVALID_TIMEOUT"
	CodeMissingSchemaFile = "MISSING_SCHEMA_FILE"
	CodeInvalidValue      = "INVALID_VALUE"
	CodeNoResults         = "NO_RESULTS"

	// Connection codes
	CodeConnectFailed = "CONNECT_FAILED"
	CodeSessionSetup  = "SESSION_SETUP"

	// Provision codes
	CodeDDLFailed = "DDL_FAILED"

	// Load codes
	CodeGenerateFailed = "GENERATE_FAILED"
	CodeDumpMissing    = "DUMP_MISSING"
	CodeCopyFailed     = "COPY_FAILED"

	// Query codes
	CodeStatementTimeout = "STATEMENT_TIMEOUT"
	CodeStatementFailed  = "STATEMENT_FAILED"

	// Results codes
	CodeWriteFailed    = "WRITE_FAILED"
	CodeMalformedFile  = "MALFORMED_FILE"
	CodeResultsMissing = "RESULTS_MISSING"

	// Catalog codes
	CodeCatalogWrite = "CATALOG_WRITE"
	CodeRunNotFound  = "RUN_NOT_FOUND"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// BenchError is the structured error type used throughout the harness.
type BenchError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *BenchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *BenchError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *BenchError) Is(target error) bool {
	var t *BenchError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new BenchError.
func New(category ErrorCategory, code, message string) *BenchError {
	return &BenchError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new BenchError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *BenchError {
	return &BenchError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *BenchError) WithDetails(details map[string]interface{}) *BenchError {
	cp := *e
	cp.Details = details
	return &cp
}

// Scope is how much of a benchmark an error aborts.
type Scope int

const (
	// ScopeNone errors are converted into data points and never propagate.
	ScopeNone Scope = iota
	// ScopeCell errors abort one matrix cell; the matrix continues.
	ScopeCell
	// ScopeProgram errors terminate the process with a non-zero status.
	ScopeProgram
)

// ScopeOf returns the abort scope of an error chain. Errors that are not
// BenchErrors abort the cell they occur in.
func ScopeOf(err error) Scope {
	if err == nil {
		return ScopeNone
	}
	switch GetCategory(err) {
	case ErrCategoryQuery:
		return ScopeNone
	case ErrCategoryConfig:
		return ScopeProgram
	default:
		return ScopeCell
	}
}

// IsFatal reports whether the error must terminate the program.
func IsFatal(err error) bool {
	return ScopeOf(err) == ScopeProgram
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCategory(err error) ErrorCategory {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCode(err error) string {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewConfigError(code, message string) *BenchError {
	return New(ErrCategoryConfig, code, message)
}

func NewConnectionError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryConnection, code, message, cause)
}

func NewProvisionError(message string, cause error) *BenchError {
	return Wrap(ErrCategoryProvision, CodeDDLFailed, message, cause)
}

func NewLoadError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryLoad, code, message, cause)
}

func NewQueryError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryQuery, code, message, cause)
}

func NewResultsError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryResults, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewStorageError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *BenchError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
