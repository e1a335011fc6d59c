// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a Clock whose time only moves when the test calls Advance.
// Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake returns a Fake clock starting at a fixed, arbitrary epoch.
// The starting instant is deterministic so test output is stable.
func NewFake() *Fake {
	return &Fake{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that receives once Advance moves the clock
// past d. If d <= 0, the channel receives immediately.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, &fakeWaiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

// Sleep blocks until Advance moves the clock past d.
func (f *Fake) Sleep(d time.Duration) {
	<-f.After(d)
}

// Advance moves the fake time forward by d and fires every waiter
// whose deadline has been reached, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)

	sort.SliceStable(f.waiters, func(i, j int) bool {
		return f.waiters[i].deadline.Before(f.waiters[j].deadline)
	})

	remaining := f.waiters[:0]
	for _, waiter := range f.waiters {
		if waiter.deadline.After(f.now) {
			remaining = append(remaining, waiter)
			continue
		}
		waiter.ch <- f.now
	}
	f.waiters = remaining
}
