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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"takeoff/internal/domain"
	"takeoff/internal/history"
	"takeoff/internal/persist"
	"takeoff/internal/state"
	"takeoff/internal/vector"
)

type fakeBackend struct {
	mu    sync.Mutex
	seq   int
	items map[string]domain.Measurement
	fail  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{items: make(map[string]domain.Measurement)}
}

func (f *fakeBackend) CreateMeasurement(_ context.Context, m domain.Measurement) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("down")
	}
	f.seq++
	id := fmt.Sprintf("m%d", f.seq)
	m.ID = id
	f.items[id] = m.Clone()
	return id, nil
}

func (f *fakeBackend) UpdateMeasurement(_ context.Context, id string, p domain.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("down")
	}
	m, ok := f.items[id]
	if !ok {
		return fmt.Errorf("no %s", id)
	}
	f.items[id] = m.WithPatch(p)
	return nil
}

func (f *fakeBackend) DeleteMeasurement(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("down")
	}
	delete(f.items, id)
	return nil
}

func (f *fakeBackend) ListMeasurements(_ context.Context, _ string) ([]domain.Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Measurement, 0, len(f.items))
	for _, m := range f.items {
		out = append(out, m.Clone())
	}
	return out, nil
}

type rig struct {
	store  *state.Store
	sync   *persist.Synchronizer
	hist   *history.Coordinator
	slots  *history.SlotTable
	ad     *Adapter
	be     *fakeBackend
	errs   *[]error
	errsMu *sync.Mutex
}

func newRig(t *testing.T, coalesce time.Duration) *rig {
	t.Helper()
	be := newFakeBackend()
	st := state.NewStore()
	sy := persist.NewSynchronizer(be, "p1")
	hist := history.NewCoordinator(50)
	slots := history.NewSlotTable()
	var mu sync.Mutex
	errs := &[]error{}
	ad := NewAdapter(st, sy, hist, slots, coalesce, func(err error) {
		mu.Lock()
		*errs = append(*errs, err)
		mu.Unlock()
	})
	return &rig{store: st, sync: sy, hist: hist, slots: slots, ad: ad, be: be, errs: errs, errsMu: &mu}
}

func (r *rig) prime() {
	ms := []domain.Measurement{
		{ID: "a1", ConditionID: "c1", Kind: domain.KindPolygon, Points: []domain.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}},
		{ID: "l1", ConditionID: "c1", Kind: domain.KindLine, Points: []domain.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}},
		{ID: "p1", ConditionID: "c2", Kind: domain.KindPoint, Points: []domain.Point{{X: 5, Y: 5}}},
	}
	// the remote store holds the same entities the cache was primed with
	r.be.mu.Lock()
	for _, m := range ms {
		r.be.items[m.ID] = m.Clone()
	}
	r.be.mu.Unlock()
	r.sync.Prime(ms, []domain.Condition{{ID: "c1", Color: "#112233"}, {ID: "c2", Color: "#445566"}})
}

func TestZOrderPolicy(t *testing.T) {
	r := newRig(t, time.Hour)
	r.prime()
	r.store.Select("a1") // selected area must outrank everything persisted

	shapes := r.ad.Shapes()
	if len(shapes) != 3 {
		t.Fatalf("expected 3 shapes, got %d", len(shapes))
	}
	// order: line (linear), point, selected polygon
	if shapes[0].ID != "l1" || shapes[1].ID != "p1" || shapes[2].ID != "a1" {
		t.Fatalf("bad z-order: %s %s %s", shapes[0].ID, shapes[1].ID, shapes[2].ID)
	}
	if !shapes[2].Selected {
		t.Fatalf("selected flag lost")
	}
	if shapes[0].Color != "#112233" {
		t.Fatalf("condition color not projected: %q", shapes[0].Color)
	}
}

func TestDraftRendersTopmost(t *testing.T) {
	r := newRig(t, time.Hour)
	r.prime()
	r.store.SetActiveCondition("c1")
	if err := r.store.SetTool(state.ToolLine); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	r.ad.Tap(vector.Pt{X: 1, Y: 1})
	r.ad.Tap(vector.Pt{X: 2, Y: 2})

	shapes := r.ad.Shapes()
	top := shapes[len(shapes)-1]
	if !top.Draft || top.Kind != domain.KindLine || len(top.Points) != 2 {
		t.Fatalf("draft not topmost: %+v", top)
	}
}

// The projection must track authoritative state changes without the renderer
// feeding anything back.
func TestOneWayProjection(t *testing.T) {
	r := newRig(t, time.Hour)
	r.prime()

	before := r.ad.Shapes()
	_ = before // renderer state; deliberately unused as a source

	if err := r.sync.Update(context.Background(), "l1", domain.Patch{Points: []domain.Point{{X: 0, Y: 0}, {X: 20, Y: 20}}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	after := r.ad.Shapes()
	var got Shape
	for _, s := range after {
		if s.ID == "l1" {
			got = s
		}
	}
	if got.Points[1].X != 20 {
		t.Fatalf("projection did not follow authoritative state: %+v", got.Points)
	}
}

func TestViewportTransformApplied(t *testing.T) {
	r := newRig(t, time.Hour)
	r.prime()
	r.store.SetViewport(state.Viewport{Zoom: 2, PanX: 100, PanY: 50})
	for _, s := range r.ad.Shapes() {
		if s.ID == "p1" {
			if s.Points[0].X != 110 || s.Points[0].Y != 60 {
				t.Fatalf("viewport not applied: %+v", s.Points[0])
			}
			return
		}
	}
	t.Fatalf("point shape missing")
}

func TestTapSelectsTopmostHit(t *testing.T) {
	r := newRig(t, time.Hour)
	r.prime()
	// (5,5) hits the polygon interior and the point; the point wins
	r.ad.Tap(vector.Pt{X: 5, Y: 5})
	if !r.store.IsSelected("p1") {
		t.Fatalf("expected point selected, got %v", r.store.Selected())
	}
	// empty space clears
	r.ad.Tap(vector.Pt{X: 500, Y: 500})
	if len(r.store.Selected()) != 0 {
		t.Fatalf("selection should clear on miss")
	}
}

func TestFinishDraftCreatesAndFailureRestores(t *testing.T) {
	r := newRig(t, time.Hour)
	ctx := context.Background()
	r.store.SetActiveCondition("c1")
	_ = r.store.SetTool(state.ToolRectangle)
	r.ad.Tap(vector.Pt{X: 0, Y: 0})
	r.ad.Tap(vector.Pt{X: 4, Y: 3})

	if err := r.ad.FinishDraft(ctx); err != nil {
		t.Fatalf("finish: %v", err)
	}
	all := r.sync.CachedAll()
	if len(all) != 1 || all[0].Kind != domain.KindRectangle {
		t.Fatalf("create not persisted: %+v", all)
	}
	if all[0].Quantify(1).Area != 12 {
		t.Fatalf("expected area 12, got %v", all[0].Quantify(1).Area)
	}

	// now a failing backend: the draft must come back
	r.be.fail = true
	r.ad.Tap(vector.Pt{X: 1, Y: 1})
	r.ad.Tap(vector.Pt{X: 2, Y: 2})
	if err := r.ad.FinishDraft(ctx); err == nil {
		t.Fatalf("expected failure")
	}
	d := r.store.Draft()
	if !d.Active || len(d.Points) != 2 {
		t.Fatalf("draft lost after failed commit: %+v", d)
	}
	r.errsMu.Lock()
	n := len(*r.errs)
	r.errsMu.Unlock()
	if n == 0 {
		t.Fatalf("failure was silent")
	}
}

func TestDragCoalescesToSingleUndoableEdit(t *testing.T) {
	r := newRig(t, 30*time.Millisecond)
	r.prime()
	if !r.ad.DragStart(vector.Pt{X: 5, Y: 5}) {
		t.Fatalf("drag did not grab a measurement")
	}
	r.ad.DragTo(1, 0)
	r.ad.DragTo(2, 0)
	r.ad.DragTo(3, 0)
	r.ad.DragEnd()

	time.Sleep(100 * time.Millisecond)
	if u, _ := r.hist.Lens(); u != 1 {
		t.Fatalf("expected exactly one history entry from the drag, got %d", u)
	}
	m, _ := r.sync.GetCached("p1")
	if m.Points[0].X != 8 {
		t.Fatalf("net move not applied: %+v", m.Points)
	}
	// undo restores the pre-drag position in one step
	if ok, err := r.hist.Undo(context.Background()); !ok || err != nil {
		t.Fatalf("undo: %v %v", ok, err)
	}
	m, _ = r.sync.GetCached("p1")
	if m.Points[0].X != 5 {
		t.Fatalf("undo of coalesced drag wrong: %+v", m.Points)
	}
}

func TestDeleteSelectedFailureKeepsEntityAndHistory(t *testing.T) {
	r := newRig(t, time.Hour)
	r.prime()
	r.store.Select("l1")
	r.be.fail = true
	r.ad.DeleteSelected(context.Background())

	if _, ok := r.sync.GetCached("l1"); !ok {
		t.Fatalf("entity must stay visible after failed delete")
	}
	if u, _ := r.hist.Lens(); u != 0 {
		t.Fatalf("failed delete must not be pushed: %d", u)
	}
	r.errsMu.Lock()
	n := len(*r.errs)
	r.errsMu.Unlock()
	if n == 0 {
		t.Fatalf("user got no retry notice")
	}
}

func TestPanAndZoomAt(t *testing.T) {
	r := newRig(t, time.Hour)
	r.ad.Pan(10, -5)
	vp := r.store.Viewport()
	if vp.PanX != 10 || vp.PanY != -5 {
		t.Fatalf("pan not applied: %+v", vp)
	}
	r.ad.ZoomAt(vector.Pt{X: 0, Y: 0}, 2)
	if r.store.Viewport().Zoom != 2 {
		t.Fatalf("zoom not applied: %+v", r.store.Viewport())
	}
}

// Draw, delete, then undo both. The delete must reference the same logical
// slot the create bound, so the recreate during the delete's undo keeps the
// create's undo resolvable.
func TestUndoChainAfterDeleteOfDrawnShape(t *testing.T) {
	r := newRig(t, time.Hour)
	ctx := context.Background()
	r.prime()
	r.store.SetActiveCondition("c1")
	_ = r.store.SetTool(state.ToolRectangle)
	r.ad.Tap(vector.Pt{X: 0, Y: 0})
	r.ad.Tap(vector.Pt{X: 4, Y: 3})
	if err := r.ad.FinishDraft(ctx); err != nil {
		t.Fatalf("finish: %v", err)
	}
	var drawn string
	for _, m := range r.sync.CachedAll() {
		if m.Kind == domain.KindRectangle && m.ID != "a1" {
			drawn = m.ID
		}
	}
	if drawn == "" {
		t.Fatalf("drawn shape missing from cache")
	}

	_ = r.store.SetTool(state.ToolNone)
	r.store.Select(drawn)
	r.ad.DeleteSelected(ctx)
	if len(r.sync.CachedAll()) != 3 {
		t.Fatalf("delete not applied: %d", len(r.sync.CachedAll()))
	}

	if ok, err := r.hist.Undo(ctx); !ok || err != nil {
		t.Fatalf("undo delete: %v %v", ok, err)
	}
	if len(r.sync.CachedAll()) != 4 {
		t.Fatalf("undo delete did not restore: %d", len(r.sync.CachedAll()))
	}
	if ok, err := r.hist.Undo(ctx); !ok || err != nil {
		t.Fatalf("undo create: %v %v", ok, err)
	}
	if got := len(r.sync.CachedAll()); got != 3 {
		t.Fatalf("undo create left an orphan: %d entities", got)
	}
	r.errsMu.Lock()
	n := len(*r.errs)
	r.errsMu.Unlock()
	if n != 0 {
		t.Fatalf("undo chain raised errors: %v", *r.errs)
	}
}

// An entity deleted while its drag edit is still coalescing: the flush must
// fail closed on the drag-start binding instead of latching onto a fresh one.
func TestFlushAfterDeleteFailsClosed(t *testing.T) {
	r := newRig(t, 30*time.Millisecond)
	ctx := context.Background()
	r.prime()

	if !r.ad.DragStart(vector.Pt{X: 5, Y: 5}) {
		t.Fatalf("drag did not grab a measurement")
	}
	r.ad.DragTo(2, 0)
	r.ad.DragEnd()

	// the grab selected p1; delete it before the quiescence window expires
	r.ad.DeleteSelected(ctx)
	if _, ok := r.sync.GetCached("p1"); ok {
		t.Fatalf("delete not applied")
	}

	time.Sleep(100 * time.Millisecond)
	if u, _ := r.hist.Lens(); u != 1 {
		t.Fatalf("only the delete may reach history, got %d entries", u)
	}
	r.errsMu.Lock()
	defer r.errsMu.Unlock()
	if len(*r.errs) == 0 {
		t.Fatalf("stale flush was silent")
	}
	if !errors.Is((*r.errs)[len(*r.errs)-1], history.ErrStaleReference) {
		t.Fatalf("expected stale reference failure, got %v", (*r.errs)[len(*r.errs)-1])
	}
}
