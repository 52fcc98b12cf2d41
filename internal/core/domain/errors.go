package domain

import (
	"errors"
	"fmt"
	"net"
	"regexp"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the user lacks permission for this action
	ErrForbidden = errors.New("forbidden")

	// ErrUnsupportedFileType indicates no extractor handles the file type
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrFileTooLarge indicates an upload exceeded the configured size limit
	ErrFileTooLarge = errors.New("file too large")

	// ErrNoDocumentsIndexed indicates every chunk of a file failed to embed
	ErrNoDocumentsIndexed = errors.New("no documents indexed")

	// ErrEmbeddingUnavailable indicates the embedding endpoint returned nothing usable
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrLockNotAcquired indicates another instance holds a distributed lock
	ErrLockNotAcquired = errors.New("lock not acquired")

	// ErrServiceUnavailable indicates an AI backend could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInvalidProvider indicates an unknown or unsupported AI provider
	ErrInvalidProvider = errors.New("invalid provider")
)

// ParseError reports a document that could not be extracted. Fatal for the file.
type ParseError struct {
	Filename string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmbeddingError reports an unreachable embedding endpoint or a malformed response.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexError reports an upsert, search or delete failure against the search engine.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// TransientIOError marks a network or timeout failure that is worth retrying.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// TransientErrorPatterns are matched against error text when no typed
// classification is available.
var TransientErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)timeout`),
	regexp.MustCompile(`(?i)connection`),
}

// IsTransient reports whether err should be retried by the ingestion task.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientIOError
	if errors.As(err, &transient) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, p := range TransientErrorPatterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}
