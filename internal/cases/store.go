package cases

import "context"

// Store is the persistence interface for analysis cases.
type Store interface {
	Get(ctx context.Context, id string) (*Case, bool, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*Case, bool, error)
	Put(ctx context.Context, c *Case) error
}
