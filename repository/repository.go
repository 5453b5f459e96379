// Package repository defines the contract between the label cache and the
// persistent stores backing each entity kind.
package repository

import "context"

// Fields selects which entity fields a repository lookup should populate.
// The label cache always requests the minimal set: no eager relations.
type Fields struct {
	// Include lists the relation fields to populate, by name.
	Include []string
}

// EmptyFields requests the default field set with no eager relations.
var EmptyFields = Fields{}

// EntityGetter loads a single entity record by its fully qualified name.
// Implementations must be safe for concurrent use.
type EntityGetter[T any] interface {
	GetByName(ctx context.Context, name string, fields Fields) (T, error)
}

// GetterFunc adapts a plain function to the EntityGetter interface.
type GetterFunc[T any] func(ctx context.Context, name string, fields Fields) (T, error)

// GetByName implements EntityGetter.
func (f GetterFunc[T]) GetByName(ctx context.Context, name string, fields Fields) (T, error) {
	return f(ctx, name, fields)
}
