package core

import (
	"context"
	"fmt"
)

type Resolution int

const (
	ResolutionFound Resolution = iota + 1
	ResolutionCreated
)

func (r Resolution) String() string {
	switch r {
	case ResolutionFound:
		return "found"
	case ResolutionCreated:
		return "created"
	default:
		return "unresolved"
	}
}

// FindCreator is the slice of a store the resolver needs.
type FindCreator[T any, F any] interface {
	Find(ctx context.Context, filter F) ([]T, error)
	Create(ctx context.Context, in T) (T, error)
}

// ResolveKey names the lookup key reported when a resolution is ambiguous.
type ResolveKey struct {
	Kind  RecordKind
	Name  string
	Value string
}

// Resolve finds the single record matching filter, creating it from payload
// when none exists. Several matches are never narrowed down: the caller gets
// an *AmbiguousRecordError and decides whether to fail or report.
// The find and create steps are not atomic.
func Resolve[T any, F any](
	ctx context.Context,
	store FindCreator[T, F],
	filter F,
	payload T,
	key ResolveKey,
) (T, Resolution, error) {
	var zero T
	if store == nil {
		return zero, 0, fmt.Errorf("core: %s store is required", key.Kind)
	}
	matches, err := store.Find(ctx, filter)
	if err != nil {
		return zero, 0, err
	}
	switch len(matches) {
	case 0:
		created, createErr := store.Create(ctx, payload)
		if createErr != nil {
			return zero, 0, createErr
		}
		return created, ResolutionCreated, nil
	case 1:
		return matches[0], ResolutionFound, nil
	default:
		return zero, 0, &AmbiguousRecordError{
			Kind:    key.Kind,
			KeyName: key.Name,
			Key:     key.Value,
			Count:   len(matches),
		}
	}
}
