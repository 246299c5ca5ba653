/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package state holds all UI-only editor state: active tool, active condition,
// the in-progress draft, the selection and the viewport. It is the single
// authoritative holder of these fields; every other component reads through
// selectors and mutates through named actions, so the transition invariants
// are enforced in exactly one place. Nothing here is persisted remotely.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"takeoff/internal/domain"
	applog "takeoff/internal/log"
)

// Tool is the active drawing tool. The zero value means no tool.
type Tool string

const (
	ToolNone      Tool = ""
	ToolCount     Tool = "count"
	ToolLine      Tool = "line"
	ToolPolyline  Tool = "polyline"
	ToolPolygon   Tool = "polygon"
	ToolRectangle Tool = "rectangle"
	ToolCircle    Tool = "circle"
)

// Kind maps a tool to the geometry kind it produces.
func (t Tool) Kind() domain.GeometryKind {
	switch t {
	case ToolCount:
		return domain.KindPoint
	case ToolLine:
		return domain.KindLine
	case ToolPolyline:
		return domain.KindPolyline
	case ToolPolygon:
		return domain.KindPolygon
	case ToolRectangle:
		return domain.KindRectangle
	case ToolCircle:
		return domain.KindCircle
	}
	return ""
}

// Draft is the transient in-progress drawing: points not yet committed, the
// tool producing them, and whether drawing is active. A Draft never has an id
// and is never handed to the persistence layer.
type Draft struct {
	Tool   Tool
	Points []domain.Point
	Active bool
}

// Viewport is the canvas zoom/pan transform.
type Viewport struct {
	Zoom       float32
	PanX, PanY float32
}

// ErrNoActiveCondition rejects activating a drawing tool while no condition is
// selected to own the resulting measurements.
var ErrNoActiveCondition = errors.New("no active condition")

// ErrNoActiveTool rejects draft operations while no tool is active.
var ErrNoActiveTool = errors.New("no active tool")

// Store is the UI state store. Safe for concurrent use; all transitions are
// atomic with respect to its invariants.
type Store struct {
	mu          sync.Mutex
	tool        Tool
	conditionID string
	draft       Draft
	selection   map[string]struct{}
	viewport    Viewport
	editing     bool

	subs []func()
	log  *slog.Logger
}

func NewStore() *Store {
	return &Store{
		selection: make(map[string]struct{}),
		viewport:  Viewport{Zoom: 1},
		log:       applog.WithComponent("state"),
	}
}

// Subscribe registers fn to run after every successful transition. Intended
// for the render path; fn must not call back into the store's actions.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	subs := append([]func(){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// --- actions ---

// SetTool activates a drawing tool. A non-count tool requires an active
// condition; violating calls leave the tool untouched and return
// ErrNoActiveCondition. Activating any tool clears the selection: drawing and
// selecting are mutually exclusive modes.
func (s *Store) SetTool(t Tool) error {
	s.mu.Lock()
	if t != ToolNone && t != ToolCount && s.conditionID == "" {
		s.mu.Unlock()
		return fmt.Errorf("tool %q: %w", t, ErrNoActiveCondition)
	}
	s.tool = t
	if t != ToolNone {
		s.selection = make(map[string]struct{})
	}
	if t == ToolNone {
		s.draft = Draft{}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetActiveCondition switches the condition that owns newly drawn geometry.
func (s *Store) SetActiveCondition(id string) {
	s.mu.Lock()
	s.conditionID = id
	s.mu.Unlock()
	s.notify()
}

// ConditionRemoved reacts to the external condition collaborator deleting the
// active condition: tool, draft and selection clear as one transition.
func (s *Store) ConditionRemoved(id string) {
	s.mu.Lock()
	if s.conditionID != id {
		s.mu.Unlock()
		return
	}
	s.conditionID = ""
	s.tool = ToolNone
	s.draft = Draft{}
	s.selection = make(map[string]struct{})
	s.mu.Unlock()
	s.log.Debug("active condition removed, editor state cleared", slog.String("condition", id))
	s.notify()
}

// AddDraftPoint appends a point to the in-progress draft, starting it if
// necessary. Requires an active tool.
func (s *Store) AddDraftPoint(p domain.Point) error {
	s.mu.Lock()
	if s.tool == ToolNone {
		s.mu.Unlock()
		return ErrNoActiveTool
	}
	if !s.draft.Active {
		s.draft = Draft{Tool: s.tool, Active: true}
	}
	s.draft.Points = append(s.draft.Points, p)
	s.mu.Unlock()
	s.notify()
	return nil
}

// CancelDraft discards the in-progress draft and deactivates the tool in the
// same transition. No network effect: nothing was ever sent.
func (s *Store) CancelDraft() {
	s.mu.Lock()
	s.draft = Draft{}
	s.tool = ToolNone
	s.mu.Unlock()
	s.notify()
}

// FinishDraft validates and consumes the draft, returning the geometry to be
// committed. On validation failure the draft is preserved so the user can
// correct it. The tool stays active so drawing can continue.
func (s *Store) FinishDraft() (Draft, error) {
	s.mu.Lock()
	if !s.draft.Active {
		s.mu.Unlock()
		return Draft{}, ErrNoActiveTool
	}
	probe := domain.Measurement{Kind: s.draft.Tool.Kind(), Points: s.draft.Points}
	if err := probe.Validate(); err != nil {
		s.mu.Unlock()
		return Draft{}, err
	}
	d := s.draft
	d.Points = append([]domain.Point(nil), s.draft.Points...)
	s.draft = Draft{}
	s.mu.Unlock()
	s.notify()
	return d, nil
}

// RestoreDraft re-installs a consumed draft after its commit failed, so the
// user's input is never silently lost. The draft's tool becomes active again.
func (s *Store) RestoreDraft(d Draft) {
	s.mu.Lock()
	s.tool = d.Tool
	s.draft = Draft{Tool: d.Tool, Points: append([]domain.Point(nil), d.Points...), Active: true}
	s.mu.Unlock()
	s.notify()
}

// Select replaces the selection. Ignored while a tool is active (the tool
// invariant keeps the two modes exclusive).
func (s *Store) Select(ids ...string) {
	s.mu.Lock()
	if s.tool != ToolNone {
		s.mu.Unlock()
		return
	}
	s.selection = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.selection[id] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
}

// ToggleSelect flips one id in or out of the selection.
func (s *Store) ToggleSelect(id string) {
	s.mu.Lock()
	if s.tool != ToolNone {
		s.mu.Unlock()
		return
	}
	if _, ok := s.selection[id]; ok {
		delete(s.selection, id)
	} else {
		s.selection[id] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
}

// ClearSelection empties the selection set.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selection = make(map[string]struct{})
	s.mu.Unlock()
	s.notify()
}

// Deselect removes ids from the selection, e.g. after a delete settles.
func (s *Store) Deselect(ids ...string) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.selection, id)
	}
	s.mu.Unlock()
	s.notify()
}

// SetViewport updates zoom/pan; zoom is clamped to a sane range.
func (s *Store) SetViewport(v Viewport) {
	if v.Zoom < 0.1 {
		v.Zoom = 0.1
	}
	if v.Zoom > 8 {
		v.Zoom = 8
	}
	s.mu.Lock()
	s.viewport = v
	s.mu.Unlock()
	s.notify()
}

// SetEditing flags an in-place edit (e.g. vertex drag) in progress.
func (s *Store) SetEditing(on bool) {
	s.mu.Lock()
	s.editing = on
	s.mu.Unlock()
	s.notify()
}

// --- selectors ---

func (s *Store) Tool() Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool
}

func (s *Store) ActiveCondition() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conditionID
}

// Draft returns a copy; callers cannot mutate store state through it.
func (s *Store) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	d.Points = append([]domain.Point(nil), s.draft.Points...)
	return d
}

// Selected returns the selection as a copied set.
func (s *Store) Selected() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.selection))
	for id := range s.selection {
		out[id] = struct{}{}
	}
	return out
}

func (s *Store) IsSelected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selection[id]
	return ok
}

func (s *Store) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

func (s *Store) Editing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}
