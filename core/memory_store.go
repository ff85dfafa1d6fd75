package core

import "context"

// PersistenceStore is the external blob storage collaborator used by the
// context store to persist long-lived memory. Load returns (nil, nil) when the
// key does not exist. Implementations must be safe for concurrent use.
type PersistenceStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
}
