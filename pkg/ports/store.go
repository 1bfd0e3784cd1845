package ports

import "context"

// SnapshotStore persists state snapshots so a session can be restored later.
type SnapshotStore interface {
	// Save persists the snapshot for a given session ID.
	Save(ctx context.Context, sessionID string, snapshot map[string]any) error

	// Load retrieves the snapshot for a given session ID.
	// Returns domain.ErrSnapshotNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (map[string]any, error)

	// Delete removes the snapshot for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the session IDs that have a snapshot.
	List(ctx context.Context) ([]string, error)
}
