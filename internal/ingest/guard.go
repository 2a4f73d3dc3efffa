package ingest

import (
	"errors"
	"sync"
)

// ErrBusy is returned when a sync or backfill run is already in progress.
var ErrBusy = errors.New("another sync or backfill run is in progress")

// Guard serializes runs against one store. The incremental stop heuristic and
// the dry-run/apply symmetry both assume a single writer, so a second
// concurrent run fails fast instead of interleaving.
type Guard struct{ mu sync.Mutex }

func (g *Guard) Acquire() error {
	if !g.mu.TryLock() {
		return ErrBusy
	}
	return nil
}

func (g *Guard) Release() { g.mu.Unlock() }
