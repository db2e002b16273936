package dao

import (
	"context"
)

// Service abstracts storage of keyed entities. Implementations must be safe
// for concurrent use.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
