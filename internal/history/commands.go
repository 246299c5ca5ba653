/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package history

import (
	"context"
	"fmt"

	"takeoff/internal/domain"
)

// EntityStore is the persistence surface commands mutate. Satisfied by
// *persist.Synchronizer.
type EntityStore interface {
	Create(ctx context.Context, m domain.Measurement) (string, error)
	Update(ctx context.Context, id string, p domain.Patch) error
	Delete(ctx context.Context, id string) error
	GetCached(id string) (domain.Measurement, bool)
}

// CreateCommand persists a new measurement.
//
// apply   persist the geometry, capture the assigned id into the slot
// revert  delete by the currently bound id
// reapply persist the captured geometry again (new id, slot rebound)
type CreateCommand struct {
	store EntityStore
	slots *SlotTable
	slot  Slot
	m     domain.Measurement // captured forward state, never carries an id
}

func NewCreate(store EntityStore, slots *SlotTable, m domain.Measurement) *CreateCommand {
	m = m.Clone()
	m.ID = ""
	return &CreateCommand{store: store, slots: slots, slot: slots.NewSlot(), m: m}
}

// Slot exposes the logical identity so later commands can reference the
// entity across id churn.
func (c *CreateCommand) Slot() Slot { return c.slot }

func (c *CreateCommand) Describe() string { return fmt.Sprintf("create %s", c.m.Kind) }

func (c *CreateCommand) Affected() []string {
	if id, err := c.slots.Resolve(c.slot); err == nil {
		return []string{id}
	}
	return nil
}

func (c *CreateCommand) Apply(ctx context.Context) error {
	id, err := c.store.Create(ctx, c.m)
	if err != nil {
		return err
	}
	c.slots.Bind(c.slot, id)
	return nil
}

func (c *CreateCommand) Revert(ctx context.Context) error {
	id, err := c.slots.Resolve(c.slot)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.slots.Unbind(c.slot)
	return nil
}

func (c *CreateCommand) Reapply(ctx context.Context) error { return c.Apply(ctx) }

// DeleteCommand removes an existing measurement.
//
// apply   capture the full prior entity state, then delete by id
// revert  re-create from the captured state (new id, slot rebound)
// reapply delete again, using the id produced by the most recent revert
type DeleteCommand struct {
	store    EntityStore
	slots    *SlotTable
	slot     Slot
	captured domain.Measurement
}

func NewDelete(store EntityStore, slots *SlotTable, slot Slot) *DeleteCommand {
	return &DeleteCommand{store: store, slots: slots, slot: slot}
}

// NewDeleteByID wraps an entity that has no slot yet (e.g. loaded from a bulk
// fetch) by binding a fresh one.
func NewDeleteByID(store EntityStore, slots *SlotTable, id string) *DeleteCommand {
	return &DeleteCommand{store: store, slots: slots, slot: slots.SlotFor(id)}
}

func (c *DeleteCommand) Describe() string {
	if c.captured.Kind != "" {
		return fmt.Sprintf("delete %s", c.captured.Kind)
	}
	return "delete measurement"
}

func (c *DeleteCommand) Affected() []string {
	if id, err := c.slots.Resolve(c.slot); err == nil {
		return []string{id}
	}
	return nil
}

func (c *DeleteCommand) Apply(ctx context.Context) error {
	id, err := c.slots.Resolve(c.slot)
	if err != nil {
		return err
	}
	m, ok := c.store.GetCached(id)
	if !ok {
		return fmt.Errorf("delete %s: %w", id, ErrStaleReference)
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.captured = m.Clone()
	c.slots.Unbind(c.slot)
	return nil
}

func (c *DeleteCommand) Revert(ctx context.Context) error {
	m := c.captured.Clone()
	m.ID = ""
	id, err := c.store.Create(ctx, m)
	if err != nil {
		return err
	}
	c.slots.Bind(c.slot, id)
	return nil
}

func (c *DeleteCommand) Reapply(ctx context.Context) error {
	id, err := c.slots.Resolve(c.slot)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.slots.Unbind(c.slot)
	return nil
}

// EditCommand updates geometry or reassigns the owning condition. Ids are
// stable across apply/revert/reapply, unlike create/delete.
type EditCommand struct {
	store EntityStore
	slots *SlotTable
	slot  Slot
	next  domain.Patch
	prev  domain.Patch
	// prevKnown is set when the inverse was captured up front (coalesced
	// drags know their start state); otherwise Apply captures it.
	prevKnown bool
}

// NewEdit captures the inverse patch from the cache at apply time.
func NewEdit(store EntityStore, slots *SlotTable, slot Slot, next domain.Patch) *EditCommand {
	return &EditCommand{store: store, slots: slots, slot: slot, next: next}
}

// NewEditWithPrev is used by the coalescing path, where the buffer already
// holds the state from before the burst of edits.
func NewEditWithPrev(store EntityStore, slots *SlotTable, slot Slot, prev, next domain.Patch) *EditCommand {
	return &EditCommand{store: store, slots: slots, slot: slot, prev: prev, next: next, prevKnown: true}
}

func (c *EditCommand) Describe() string {
	if c.next.ConditionID != "" && c.next.Points == nil {
		return "reassign condition"
	}
	return "edit geometry"
}

func (c *EditCommand) Affected() []string {
	if id, err := c.slots.Resolve(c.slot); err == nil {
		return []string{id}
	}
	return nil
}

func (c *EditCommand) Apply(ctx context.Context) error {
	id, err := c.slots.Resolve(c.slot)
	if err != nil {
		return err
	}
	if !c.prevKnown {
		cur, ok := c.store.GetCached(id)
		if !ok {
			return fmt.Errorf("edit %s: %w", id, ErrStaleReference)
		}
		c.prev = inverseOf(cur, c.next)
		c.prevKnown = true
	}
	return c.store.Update(ctx, id, c.next)
}

func (c *EditCommand) Revert(ctx context.Context) error {
	id, err := c.slots.Resolve(c.slot)
	if err != nil {
		return err
	}
	return c.store.Update(ctx, id, c.prev)
}

func (c *EditCommand) Reapply(ctx context.Context) error {
	id, err := c.slots.Resolve(c.slot)
	if err != nil {
		return err
	}
	return c.store.Update(ctx, id, c.next)
}

// inverseOf builds the patch that undoes next, reading the fields next will
// overwrite from the current entity state.
func inverseOf(cur domain.Measurement, next domain.Patch) domain.Patch {
	var prev domain.Patch
	if next.Points != nil {
		prev.Points = append([]domain.Point(nil), cur.Points...)
	}
	if next.ConditionID != "" {
		prev.ConditionID = cur.ConditionID
	}
	return prev
}
