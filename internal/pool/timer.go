// Package pool holds the sync.Pool backed helpers shared by the link and
// hardware packages.
package pool

import (
	"sync"
	"time"
)

var timers sync.Pool

// GetTimer returns a stopped-and-reset timer that fires after d.
// Release it with PutTimer once it is no longer read.
func GetTimer(d time.Duration) *time.Timer {
	v := timers.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer)
	if t.Reset(d) {
		// a pooled timer should be stopped; drop a stale tick just in case
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timers.Put(t)
}
