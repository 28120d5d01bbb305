package repo

import "context"

// DedupeRepo remembers recently seen gateway events
type DedupeRepo interface {
	// Seen records key and reports whether it was already recorded
	// within the window
	Seen(ctx context.Context, key string) (bool, error)

	// Forget drops key so its next delivery is processed
	Forget(ctx context.Context, key string) error

	Close() error
}
