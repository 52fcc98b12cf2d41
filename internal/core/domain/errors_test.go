package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrAlreadyExists", ErrAlreadyExists, "already exists"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrUnauthorized", ErrUnauthorized, "unauthorized"},
		{"ErrForbidden", ErrForbidden, "forbidden"},
		{"ErrUnsupportedFileType", ErrUnsupportedFileType, "unsupported file type"},
		{"ErrFileTooLarge", ErrFileTooLarge, "file too large"},
		{"ErrNoDocumentsIndexed", ErrNoDocumentsIndexed, "no documents indexed"},
		{"ErrLockNotAcquired", ErrLockNotAcquired, "lock not acquired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	allErrors := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidInput,
		ErrUnauthorized,
		ErrForbidden,
		ErrUnsupportedFileType,
		ErrFileTooLarge,
		ErrNoDocumentsIndexed,
		ErrEmbeddingUnavailable,
		ErrLockNotAcquired,
		ErrServiceUnavailable,
		ErrInvalidProvider,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	var parseErr *ParseError
	err := fmt.Errorf("ingest: %w", &ParseError{Filename: "stock.xlsx", Err: cause})
	if !errors.As(err, &parseErr) {
		t.Fatal("expected ParseError in chain")
	}
	if parseErr.Filename != "stock.xlsx" {
		t.Errorf("expected filename stock.xlsx, got %q", parseErr.Filename)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}

	if !errors.Is(&IndexError{Op: "upsert", Err: cause}, cause) {
		t.Error("IndexError should unwrap")
	}
	if !errors.Is(&EmbeddingError{Err: cause}, cause) {
		t.Error("EmbeddingError should unwrap")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed", &TransientIOError{Op: "download", Err: errors.New("reset")}, true},
		{"wrapped typed", fmt.Errorf("task: %w", &TransientIOError{Op: "get", Err: errors.New("x")}), true},
		{"net timeout", fmt.Errorf("call: %w", timeoutErr{}), true},
		{"timeout keyword", errors.New("read: Timeout exceeded"), true},
		{"connection keyword", errors.New("dial tcp: connection refused"), true},
		{"parse error", &ParseError{Filename: "a.pdf", Err: errors.New("corrupt xref")}, false},
		{"plain", errors.New("invalid header"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
