package store

import (
	"context"
)

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// Store is the full repository: runtime preferences plus lifecycle.
type Store interface {
	StateStore

	// ListState returns every persisted key/value pair.
	ListState(ctx context.Context) (map[string]string, error)

	// Close closes the store connection.
	Close() error
}
