// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// CancelFlag is a one-way cancellation signal observed by a streaming run
// at per-torrent boundaries.
type CancelFlag struct {
	set atomic.Bool
}

func (f *CancelFlag) Cancel() {
	f.set.Store(true)
}

func (f *CancelFlag) Cancelled() bool {
	return f.set.Load()
}

// Registry tracks active streaming runs by search id so a concurrent
// control call can cancel them. The lock covers only map access, never a
// network call.
type Registry struct {
	mu     sync.Mutex
	active map[string]*CancelFlag
}

func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]*CancelFlag),
	}
}

// Register allocates a search id and its cancellation flag. The caller owns
// the entry and must Remove it when the run finishes.
func (r *Registry) Register() (string, *CancelFlag) {
	id := uuid.NewString()
	flag := &CancelFlag{}

	r.mu.Lock()
	r.active[id] = flag
	r.mu.Unlock()

	return id, flag
}

// Cancel sets the flag for the given search id. Returns false when no run
// with that id is active.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	flag, ok := r.active[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	flag.Cancel()
	return true
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// Active returns the number of registered runs.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
