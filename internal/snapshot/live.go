package snapshot

import (
	"context"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

// LiveName is the reserved snapshot name served from the cluster inventory.
const LiveName = "live"

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, name string) (mesh.Snapshot, error)

// Get calls f.
func (f StoreFunc) Get(ctx context.Context, name string) (mesh.Snapshot, error) {
	return f(ctx, name)
}

// LiveStore serves LiveName from a live source and every other name from
// the backing store. A nil live source leaves LiveName to the backing store.
type LiveStore struct {
	backing Store
	live    Store
}

// NewLiveStore routes live snapshot reads to live.
func NewLiveStore(backing, live Store) *LiveStore {
	return &LiveStore{backing: backing, live: live}
}

// Get implements Store.
func (s *LiveStore) Get(ctx context.Context, name string) (mesh.Snapshot, error) {
	if name == LiveName && s.live != nil {
		return s.live.Get(ctx, name)
	}
	return s.backing.Get(ctx, name)
}
