/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package scene is the one-way bridge between the authoritative editor state
// and whatever rendering surface displays it. Shapes() derives every rendered
// position anew from the state store and the persisted-entity cache; nothing
// is ever read back from the renderer's own object graph. The reverse channel
// turns low-level pointer events into store actions or commands before any
// persistent effect occurs.
package scene

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"takeoff/internal/domain"
	"takeoff/internal/history"
	applog "takeoff/internal/log"
	"takeoff/internal/persist"
	"takeoff/internal/state"
	"takeoff/internal/vector"
)

// Shape is one renderable item, in screen coordinates.
type Shape struct {
	ID       string // empty for the draft
	Kind     domain.GeometryKind
	Points   []vector.Pt
	Color    string
	Selected bool
	Draft    bool
}

// z-order ranks; higher renders on top.
const (
	rankArea = iota
	rankLinear
	rankPoint
	rankSelected
	rankDraft
)

func rankOf(s Shape) int {
	switch {
	case s.Draft:
		return rankDraft
	case s.Selected:
		return rankSelected
	case s.Kind == domain.KindPoint:
		return rankPoint
	case s.Kind.IsLinear():
		return rankLinear
	default:
		return rankArea
	}
}

const draftColor = "#3388ff"

// hitTolerancePx is the pick radius around linear geometry, in screen pixels.
const hitTolerancePx = 6

// Adapter projects editor state into shapes and feeds pointer input back in.
type Adapter struct {
	store *state.Store
	sync  *persist.Synchronizer
	hist  *history.Coordinator
	slots *history.SlotTable
	edits *persist.EditBuffer

	// notify surfaces non-fatal failures to the user; never blocking.
	notify func(error)

	mu        sync.Mutex
	dragID    string
	dragStart []domain.Point
	dragCur   []domain.Point
	// editSlots pins the slot of each staged edit at drag start, so a flush
	// after the entity's binding changed fails closed instead of binding to a
	// freshly allocated slot.
	editSlots map[string]history.Slot

	log *slog.Logger
}

func NewAdapter(store *state.Store, sy *persist.Synchronizer, hist *history.Coordinator, slots *history.SlotTable, coalesce time.Duration, notify func(error)) *Adapter {
	if notify == nil {
		notify = func(error) {}
	}
	a := &Adapter{
		store:     store,
		sync:      sy,
		hist:      hist,
		slots:     slots,
		notify:    notify,
		editSlots: make(map[string]history.Slot),
		log:       applog.WithComponent("scene"),
	}
	// Coalesced drags become a single command carrying only the net change;
	// intermediate positions are never individually undoable. The command
	// holds the slot captured when the drag grabbed the entity.
	a.edits = persist.NewEditBuffer(coalesce, func(id string, prev, next domain.Patch) {
		a.mu.Lock()
		slot, ok := a.editSlots[id]
		delete(a.editSlots, id)
		a.mu.Unlock()
		if !ok {
			slot = slots.SlotFor(id)
		}
		cmd := history.NewEditWithPrev(sy, slots, slot, prev, next)
		if err := hist.Dispatch(context.Background(), cmd); err != nil {
			a.log.Warn("coalesced edit failed", slog.String("id", id), slog.Any("err", err))
			a.notify(err)
		}
	})
	return a
}

// Edits exposes the coalescing buffer, e.g. so a save path can drain it.
func (a *Adapter) Edits() *persist.EditBuffer { return a.edits }

// viewTransform maps page coordinates to screen coordinates.
func viewTransform(vp state.Viewport) vector.Affine2D {
	return vector.Translate(vp.PanX, vp.PanY).Mul(vector.Scale(vp.Zoom, vp.Zoom))
}

func (a *Adapter) toScreen(xf vector.Affine2D, p domain.Point) vector.Pt {
	return xf.Apply(vector.Pt{X: float32(p.X), Y: float32(p.Y)})
}

func (a *Adapter) toPage(p vector.Pt) domain.Point {
	inv := viewTransform(a.store.Viewport()).Invert()
	q := inv.Apply(p)
	return domain.Point{X: float64(q.X), Y: float64(q.Y)}
}

// Shapes derives the ordered render list: area geometry below linear geometry
// below point geometry below the selected entities, with the in-progress
// draft topmost.
func (a *Adapter) Shapes() []Shape {
	xf := viewTransform(a.store.Viewport())
	selected := a.store.Selected()

	a.mu.Lock()
	dragID, dragCur := a.dragID, a.dragCur
	a.mu.Unlock()

	var out []Shape
	for _, m := range a.sync.CachedAll() {
		pts := m.Points
		if m.ID == dragID && dragCur != nil {
			pts = dragCur
		}
		sp := make([]vector.Pt, len(pts))
		for i, p := range pts {
			sp[i] = a.toScreen(xf, p)
		}
		color := ""
		if c, ok := a.sync.Condition(m.ConditionID); ok {
			color = c.Color
		}
		_, sel := selected[m.ID]
		out = append(out, Shape{ID: m.ID, Kind: m.Kind, Points: sp, Color: color, Selected: sel})
	}

	if d := a.store.Draft(); d.Active && len(d.Points) > 0 {
		sp := make([]vector.Pt, len(d.Points))
		for i, p := range d.Points {
			sp[i] = a.toScreen(xf, p)
		}
		out = append(out, Shape{Kind: d.Tool.Kind(), Points: sp, Color: draftColor, Draft: true})
	}

	sort.SliceStable(out, func(i, j int) bool { return rankOf(out[i]) < rankOf(out[j]) })
	return out
}

// hitTest returns the topmost measurement id at the page point, or "".
func (a *Adapter) hitTest(p domain.Point) string {
	vp := a.store.Viewport()
	tol := float64(hitTolerancePx) / float64(vp.Zoom)
	ms := a.sync.CachedAll()
	selected := a.store.Selected()

	best := ""
	bestRank := -1
	for _, m := range ms {
		if !hits(m, p, tol) {
			continue
		}
		r := rankPoint
		switch {
		case m.Kind.IsArea():
			r = rankArea
		case m.Kind.IsLinear():
			r = rankLinear
		}
		if _, ok := selected[m.ID]; ok {
			r = rankSelected
		}
		if r >= bestRank {
			best, bestRank = m.ID, r
		}
	}
	return best
}

func hits(m domain.Measurement, p domain.Point, tol float64) bool {
	fp := vector.Pt{X: float32(p.X), Y: float32(p.Y)}
	fpts := make([]vector.Pt, len(m.Points))
	for i, q := range m.Points {
		fpts[i] = vector.Pt{X: float32(q.X), Y: float32(q.Y)}
	}
	ft := float32(tol)
	switch m.Kind {
	case domain.KindPoint:
		return len(fpts) > 0 && vector.DistToSegment(fp, fpts[0], fpts[0]) <= ft
	case domain.KindLine, domain.KindPolyline:
		for i := 1; i < len(fpts); i++ {
			if vector.DistToSegment(fp, fpts[i-1], fpts[i]) <= ft {
				return true
			}
		}
		return false
	case domain.KindPolygon:
		if vector.InPolygon(fp, fpts) {
			return true
		}
		for i := range fpts {
			j := (i + 1) % len(fpts)
			if vector.DistToSegment(fp, fpts[i], fpts[j]) <= ft {
				return true
			}
		}
		return false
	case domain.KindRectangle:
		if len(fpts) < 2 {
			return false
		}
		r := vector.BoundsOf(fpts[:2])
		return r.Contains(fp)
	case domain.KindCircle:
		if len(fpts) < 2 {
			return false
		}
		rr := vector.DistToSegment(fpts[1], fpts[0], fpts[0])
		return vector.DistToSegment(fp, fpts[0], fpts[0]) <= rr+ft
	}
	return false
}
