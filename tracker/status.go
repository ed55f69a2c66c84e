package tracker

import "sync"

// Status is a point-in-time snapshot of a worker's announce progress.
type Status struct {
	Progress      float64
	DownloadSpeed uint64
	Peers         uint32
	Seeds         uint32
	IsFinished    bool
}

// statusWatch is a single-writer, many-reader, last-value-only
// broadcaster. Go has no built-in equivalent of a tokio watch channel, so
// this pairs a mutex-guarded snapshot with a "changed" channel that is
// closed and replaced on every update — any number of readers can select
// on the channel they last observed without missing a wakeup.
type statusWatch struct {
	mu      sync.Mutex
	current Status
	changed chan struct{}
}

func newStatusWatch(initial Status) *statusWatch {
	return &statusWatch{current: initial, changed: make(chan struct{})}
}

func (w *statusWatch) set(s Status) {
	w.mu.Lock()
	w.current = s
	old := w.changed
	w.changed = make(chan struct{})
	w.mu.Unlock()
	close(old)
}

// snapshot returns the current status and the channel that closes the
// next time set is called.
func (w *statusWatch) snapshot() (Status, <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, w.changed
}
