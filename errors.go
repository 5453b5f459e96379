package catalogcache

import (
	"errors"
	"fmt"
)

// ErrInvalidSource is returned when a tag label carries a source
// discriminator that is neither CLASSIFICATION nor GLOSSARY.
var ErrInvalidSource = errors.New("invalid source type")

// EntityNotFoundError is returned when a cached entity lookup fails.
// The cache boundary deliberately folds backing-store failures and
// genuinely missing records into this one error kind; the wrapped
// cause is retained for logs and errors.Is/As inspection.
type EntityNotFoundError struct {
	Kind EntityKind
	Name string
	Err  error
}

// Error implements the error interface using the catalog's canonical
// not-found message format.
func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s instance for %s not found", e.Kind, e.Name)
}

// Unwrap returns the underlying load failure, if any.
func (e *EntityNotFoundError) Unwrap() error { return e.Err }

// InvalidSourceError reports the unrecognised source value alongside
// the ErrInvalidSource sentinel.
func InvalidSourceError(source TagSource) error {
	return fmt.Errorf("%w %s", ErrInvalidSource, source)
}
