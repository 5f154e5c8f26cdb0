// Package apperr defines the error kinds shared by the resolution engine,
// the move transaction, and the outer surfaces.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrPath and ErrInvalidLine match any *Error of the corresponding kind
	// under errors.Is.
	ErrPath        = errors.New("path error")
	ErrInvalidLine = errors.New("invalid line number")
)

// Kind classifies an *Error.
type Kind int

const (
	KindIO Kind = iota
	KindPath
	KindInvalidLine
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IO error"
	case KindPath:
		return "Path error"
	case KindInvalidLine:
		return "Invalid line number"
	default:
		return "error"
	}
}

// Error is a classified failure on a single path.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality against the ErrPath and ErrInvalidLine sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrPath:
		return e.Kind == KindPath
	case ErrInvalidLine:
		return e.Kind == KindInvalidLine
	}
	return false
}

// IO wraps an operating-system failure on path.
func IO(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Path reports that a required path component could not be derived.
func Path(op, path string, format string, args ...any) error {
	return &Error{Kind: KindPath, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// InvalidLine reports a recorded line number past the end of the file.
func InvalidLine(path string, line, count int) error {
	return &Error{
		Kind: KindInvalidLine,
		Op:   "rewrite",
		Path: path,
		Err:  fmt.Errorf("line %d out of range (file has %d lines)", line, count),
	}
}
