/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"context"
	"log/slog"

	"takeoff/internal/domain"
	"takeoff/internal/history"
	"takeoff/internal/vector"
)

// Pointer intake: low-level pointer events become store actions or commands
// here, never direct mutations of persisted or rendered state.

// Tap handles a click at screen coordinates. With a tool active it extends
// the draft; otherwise it selects the topmost measurement under the cursor,
// or clears the selection when nothing is hit.
func (a *Adapter) Tap(p vector.Pt) {
	page := a.toPage(p)
	if a.store.Tool() != "" {
		if err := a.store.AddDraftPoint(page); err != nil {
			a.notify(err)
		}
		return
	}
	if id := a.hitTest(page); id != "" {
		a.store.Select(id)
		return
	}
	a.store.ClearSelection()
}

// FinishDraft commits the in-progress drawing as a create command. Validation
// failures keep the draft for correction; a failed network effect restores
// the draft so the input survives for retry.
func (a *Adapter) FinishDraft(ctx context.Context) error {
	d, err := a.store.FinishDraft()
	if err != nil {
		a.notify(err)
		return err
	}
	m := domain.Measurement{
		ConditionID: a.store.ActiveCondition(),
		Kind:        d.Tool.Kind(),
		Points:      d.Points,
	}
	cmd := history.NewCreate(a.sync, a.slots, m)
	if err := a.hist.Dispatch(ctx, cmd); err != nil {
		a.store.RestoreDraft(d)
		a.notify(err)
		return err
	}
	a.log.Debug("draft committed", slog.String("kind", string(m.Kind)), slog.Int("points", len(m.Points)))
	return nil
}

// DeleteSelected dispatches a delete command per selected measurement.
// Failures are surfaced per entity; the selection only drops ids whose
// delete was confirmed (optimistic cache removal is the synchronizer's job).
func (a *Adapter) DeleteSelected(ctx context.Context) {
	for id := range a.store.Selected() {
		cmd := history.NewDeleteByID(a.sync, a.slots, id)
		if err := a.hist.Dispatch(ctx, cmd); err != nil {
			a.notify(err)
			continue
		}
		a.store.Deselect(id)
	}
}

// DragStart begins moving the measurement under the cursor. Returns false
// when the drag should pan the viewport instead (nothing draggable was hit).
func (a *Adapter) DragStart(p vector.Pt) bool {
	if a.store.Tool() != "" {
		return false
	}
	page := a.toPage(p)
	id := a.hitTest(page)
	if id == "" {
		return false
	}
	m, ok := a.sync.GetCached(id)
	if !ok {
		return false
	}
	a.store.Select(id)
	a.store.SetEditing(true)
	slot := a.slots.SlotFor(id)
	a.mu.Lock()
	a.dragID = id
	a.dragStart = append([]domain.Point(nil), m.Points...)
	a.dragCur = append([]domain.Point(nil), m.Points...)
	a.editSlots[id] = slot
	a.mu.Unlock()
	return true
}

// DragTo moves the dragged measurement by the page-space delta from the drag
// origin and stages the edit into the coalescing buffer. The buffer merges
// the burst; only the net change ever reaches history.
func (a *Adapter) DragTo(dx, dy float32) {
	vp := a.store.Viewport()
	pdx := float64(dx) / float64(vp.Zoom)
	pdy := float64(dy) / float64(vp.Zoom)

	a.mu.Lock()
	if a.dragID == "" {
		a.mu.Unlock()
		return
	}
	id := a.dragID
	cur := make([]domain.Point, len(a.dragStart))
	for i, q := range a.dragStart {
		cur[i] = domain.Point{X: q.X + pdx, Y: q.Y + pdy}
	}
	a.dragCur = cur
	prev := append([]domain.Point(nil), a.dragStart...)
	a.mu.Unlock()

	a.edits.Stage(id, domain.Patch{Points: prev}, domain.Patch{Points: cur})
}

// DragEnd finishes the move; the staged edit flushes once the quiescence
// window expires.
func (a *Adapter) DragEnd() {
	a.mu.Lock()
	a.dragID = ""
	a.dragStart = nil
	a.dragCur = nil
	a.mu.Unlock()
	a.store.SetEditing(false)
}

// Pan shifts the viewport by a screen-space delta.
func (a *Adapter) Pan(dx, dy float32) {
	vp := a.store.Viewport()
	vp.PanX += dx
	vp.PanY += dy
	a.store.SetViewport(vp)
}

// ZoomAt zooms by factor keeping the given screen point fixed.
func (a *Adapter) ZoomAt(p vector.Pt, factor float32) {
	vp := a.store.Viewport()
	oldZoom := vp.Zoom
	vp.Zoom *= factor
	if vp.Zoom < 0.1 {
		vp.Zoom = 0.1
	}
	if vp.Zoom > 8 {
		vp.Zoom = 8
	}
	scale := vp.Zoom / oldZoom
	vp.PanX = p.X - (p.X-vp.PanX)*scale
	vp.PanY = p.Y - (p.Y-vp.PanY)*scale
	a.store.SetViewport(vp)
}
