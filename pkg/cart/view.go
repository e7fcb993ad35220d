package cart

import "sync"

// localView is the engine-owned, optimistically updated cart state. All
// writes go through the Service; readers receive value copies. The epoch
// advances when the view is closed so that a remote resolution arriving
// afterwards is discarded instead of applied.
type localView struct {
	mu       sync.Mutex
	snapshot Snapshot
	epoch    uint64
	closed   bool
}

func newLocalView() *localView {
	return &localView{}
}

// current returns the snapshot together with the epoch it belongs to.
func (view *localView) current() (Snapshot, uint64) {
	view.mu.Lock()
	defer view.mu.Unlock()
	return view.snapshot, view.epoch
}

// snapshotNow returns the snapshot for readers.
func (view *localView) snapshotNow() Snapshot {
	view.mu.Lock()
	defer view.mu.Unlock()
	return view.snapshot
}

// replaceAt swaps the snapshot wholesale when the epoch still matches.
func (view *localView) replaceAt(epoch uint64, snapshot Snapshot) bool {
	view.mu.Lock()
	defer view.mu.Unlock()
	if view.closed || view.epoch != epoch {
		return false
	}
	view.snapshot = snapshot
	return true
}

// upsertAt inserts or replaces a single line when the epoch still matches.
func (view *localView) upsertAt(epoch uint64, item CartItem) bool {
	view.mu.Lock()
	defer view.mu.Unlock()
	if view.closed || view.epoch != epoch {
		return false
	}
	view.snapshot = view.snapshot.withItem(item)
	return true
}

// removeAt drops a single line when the epoch still matches.
func (view *localView) removeAt(epoch uint64, id ItemID) bool {
	view.mu.Lock()
	defer view.mu.Unlock()
	if view.closed || view.epoch != epoch {
		return false
	}
	view.snapshot = view.snapshot.withoutItem(id)
	return true
}

// restoreAt reverts one line to its pre-mutation state: the prior line if it
// existed, otherwise its absence. Other lines are left untouched so that
// independent in-flight mutations keep their optimistic values.
func (view *localView) restoreAt(epoch uint64, id ItemID, prior *CartItem) bool {
	if prior == nil {
		return view.removeAt(epoch, id)
	}
	return view.upsertAt(epoch, *prior)
}

// close freezes the view. Pending resolutions observe the epoch change and
// discard their result.
func (view *localView) close() {
	view.mu.Lock()
	defer view.mu.Unlock()
	if view.closed {
		return
	}
	view.closed = true
	view.epoch++
}
