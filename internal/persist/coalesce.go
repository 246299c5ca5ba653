/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package persist

import (
	"sync"
	"time"

	"takeoff/internal/domain"
)

// EditBuffer coalesces rapid successive edits to the same entity. Edits
// staged within the quiescence window are merged: only the first prior state
// and the latest target state survive. On window expiry the flush callback
// fires once with the net change; intermediate drag positions are never
// individually flushed, so only the net change ever becomes undoable.
type EditBuffer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*pendingEdit
	flush   func(id string, prev, next domain.Patch)
}

type pendingEdit struct {
	prev  domain.Patch
	next  domain.Patch
	timer *time.Timer
}

// NewEditBuffer creates a buffer with the given quiescence window. flush runs
// on the timer goroutine; callers hand the net change to the command layer.
func NewEditBuffer(window time.Duration, flush func(id string, prev, next domain.Patch)) *EditBuffer {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &EditBuffer{
		window:  window,
		pending: make(map[string]*pendingEdit),
		flush:   flush,
	}
}

// Stage records an edit for id. The first Stage in a burst captures prev; later
// Stages replace next and restart the window.
func (b *EditBuffer) Stage(id string, prev, next domain.Patch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pe, ok := b.pending[id]; ok {
		pe.next = next
		pe.timer.Reset(b.window)
		return
	}
	pe := &pendingEdit{prev: prev, next: next}
	pe.timer = time.AfterFunc(b.window, func() { b.expire(id) })
	b.pending[id] = pe
}

func (b *EditBuffer) expire(id string) {
	b.mu.Lock()
	pe, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if ok && b.flush != nil {
		b.flush(id, pe.prev, pe.next)
	}
}

// FlushNow forces the pending edit for id out immediately, e.g. before an
// explicit save or an undo.
func (b *EditBuffer) FlushNow(id string) {
	b.mu.Lock()
	pe, ok := b.pending[id]
	if ok {
		pe.timer.Stop()
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if ok && b.flush != nil {
		b.flush(id, pe.prev, pe.next)
	}
}

// FlushAll drains every pending edit.
func (b *EditBuffer) FlushAll() {
	b.mu.Lock()
	drained := make(map[string]*pendingEdit, len(b.pending))
	for id, pe := range b.pending {
		pe.timer.Stop()
		drained[id] = pe
	}
	b.pending = make(map[string]*pendingEdit)
	b.mu.Unlock()
	if b.flush == nil {
		return
	}
	for id, pe := range drained {
		b.flush(id, pe.prev, pe.next)
	}
}

// Cancel drops the pending edit for id without flushing.
func (b *EditBuffer) Cancel(id string) {
	b.mu.Lock()
	if pe, ok := b.pending[id]; ok {
		pe.timer.Stop()
		delete(b.pending, id)
	}
	b.mu.Unlock()
}

// Len reports how many entities have edits in flight.
func (b *EditBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
