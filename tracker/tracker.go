// Package tracker manages one torrent's tracker announce lifecycle: a
// background worker performs periodic HTTP announces, reports status
// through a watch-style snapshot, and accepts pause/resume/abort commands
// through a Tracker handle.
package tracker

import "context"

// Tracker is the caller-facing handle to a running worker. It is safe for
// concurrent use: any number of goroutines may read Status or send
// commands.
type Tracker struct {
	watch    *statusWatch
	commands chan<- Command
}

// Status returns the worker's most recently published snapshot.
func (t *Tracker) Status() Status {
	s, _ := t.watch.snapshot()
	return s
}

// StatusAsync blocks until the worker publishes a new status, or ctx is
// done, whichever comes first.
func (t *Tracker) StatusAsync(ctx context.Context) (Status, error) {
	s, changed := t.watch.snapshot()
	select {
	case <-changed:
		next, _ := t.watch.snapshot()
		return next, nil
	case <-ctx.Done():
		return s, ctx.Err()
	}
}

// Send delivers cmd to the worker, blocking until it is accepted or ctx is
// done.
func (t *Tracker) Send(ctx context.Context, cmd Command) error {
	select {
	case t.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
