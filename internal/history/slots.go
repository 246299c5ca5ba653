/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package history

import (
	"errors"
	"fmt"
	"sync"
)

// Remote ids are unstable across undo/redo of create/delete: re-creating a
// deleted entity yields a new identity. Commands therefore never hold a
// frozen id; they hold a Slot, a logical identity resolved at execution
// time. The table is rebound on every create/delete settle, keeping later
// history entries correct after earlier ones change the underlying id.

// Slot is a logical entity reference, stable across id churn.
type Slot int64

// ErrStaleReference means a slot currently maps to no live entity. Commands
// fail closed on it rather than guessing; the caller resynchronizes.
var ErrStaleReference = errors.New("stale entity reference")

// SlotTable maps logical slots to the id currently associated with them.
// The reverse index guarantees one slot per live entity, so every command
// referencing the same entity shares the slot and a rebind on create/delete
// settle reaches all of them. Safe for concurrent use.
type SlotTable struct {
	mu    sync.Mutex
	next  Slot
	ids   map[Slot]string
	slots map[string]Slot
}

func NewSlotTable() *SlotTable {
	return &SlotTable{ids: make(map[Slot]string), slots: make(map[string]Slot)}
}

// NewSlot allocates an unbound slot.
func (t *SlotTable) NewSlot() Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	return t.next
}

// SlotFor returns the slot already bound to id, allocating and binding a new
// one only for ids the table has never seen.
func (t *SlotTable) SlotFor(id string) Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.slots[id]; ok {
		return s
	}
	t.next++
	t.ids[t.next] = id
	t.slots[id] = t.next
	return t.next
}

// Bind associates slot with the id the remote store just assigned.
func (t *SlotTable) Bind(s Slot, id string) {
	t.mu.Lock()
	if old, ok := t.ids[s]; ok && old != id {
		delete(t.slots, old)
	}
	t.ids[s] = id
	t.slots[id] = s
	t.mu.Unlock()
}

// Unbind removes the association, making later resolves fail closed.
func (t *SlotTable) Unbind(s Slot) {
	t.mu.Lock()
	if id, ok := t.ids[s]; ok {
		delete(t.slots, id)
	}
	delete(t.ids, s)
	t.mu.Unlock()
}

// Resolve returns the id currently bound to s.
func (t *SlotTable) Resolve(s Slot) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.ids[s]
	if !ok || id == "" {
		return "", fmt.Errorf("slot %d: %w", s, ErrStaleReference)
	}
	return id, nil
}
