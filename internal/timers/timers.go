// Package timers runs per-key background jobs where starting a key cancels
// whatever was running under it before. The bot uses one runner per concern
// (live subscriptions, delivery countdowns), keyed by chat ID, which enforces
// the one-active-per-chat invariant structurally.
package timers

import (
	"sync"
	"time"
)

type Runner struct {
	mu     sync.Mutex
	active map[int64]chan struct{}
}

func NewRunner() *Runner {
	return &Runner{active: make(map[int64]chan struct{})}
}

// start replaces any running job for key and returns its stop channel.
func (r *Runner) start(key int64) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.active[key]; ok {
		close(prev)
	}
	stop := make(chan struct{})
	r.active[key] = stop
	return stop
}

// Stop cancels the job for key, if any.
func (r *Runner) Stop(key int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	stop, ok := r.active[key]
	if !ok {
		return false
	}
	close(stop)
	delete(r.active, key)
	return true
}

// finish removes key from the map if stop is still its current job.
func (r *Runner) finish(key int64, stop chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[key] == stop {
		delete(r.active, key)
	}
}

// Every calls tick immediately and then on every interval until the key is
// stopped or replaced.
func (r *Runner) Every(key int64, interval time.Duration, tick func()) {
	stop := r.start(key)
	go func() {
		tick()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				tick()
			}
		}
	}()
}

// Countdown decrements once per interval from seconds. onTick fires with the
// remaining count while it is positive; onExpire fires exactly once when it
// reaches zero, unless the countdown was cancelled or replaced first.
func (r *Runner) Countdown(key int64, seconds int, interval time.Duration, onTick func(remaining int), onExpire func()) {
	stop := r.start(key)
	go func() {
		remaining := seconds
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				remaining--
				if remaining > 0 {
					onTick(remaining)
					continue
				}
				r.finish(key, stop)
				onExpire()
				return
			}
		}
	}()
}
