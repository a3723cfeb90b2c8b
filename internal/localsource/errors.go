package localsource

import (
	"errors"
	"fmt"
)

var (
	ErrSource       = errors.New("local source error")
	ErrInvalidInput = errors.New("invalid input")
)

// SourceError reports a local document that could not be read or is
// malformed. Path is a file path for directory sources and a row key for SQL
// sources.
type SourceError struct {
	Source string
	Path   string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s source: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s source: %s: %v", e.Source, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func (e *SourceError) Is(target error) bool {
	return target == ErrSource
}
