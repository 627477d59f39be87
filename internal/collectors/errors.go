package collectors

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedPlatform = errors.New("collectors: not supported on this platform")
	ErrSourceTimeout       = errors.New("collectors: source timed out")
)

// CollectionError records a source that could not be read. It is never
// fatal to a scan.
type CollectionError struct {
	Source string
	Err    error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: %v", e.Source, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}
