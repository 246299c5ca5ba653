/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package focus routes keyboard input. Exactly one region owns logical focus
// at any instant; the router decides which shortcuts a keystroke may trigger
// before anything is dispatched. One router exists per editing session; it is
// passed to the input boundary explicitly, never held as a package global.
package focus

import (
	"log/slog"
	"sync"

	applog "takeoff/internal/log"
	"takeoff/internal/state"
)

// Region is a mutually exclusive UI zone.
type Region int

const (
	// RegionCanvas is the default/global region; ownership falls back here
	// when nothing else claims focus.
	RegionCanvas Region = iota
	RegionTree
	RegionPanel
	RegionSearch
	RegionDialog
)

func (r Region) String() string {
	switch r {
	case RegionCanvas:
		return "canvas"
	case RegionTree:
		return "tree"
	case RegionPanel:
		return "panel"
	case RegionSearch:
		return "search"
	case RegionDialog:
		return "dialog"
	}
	return "unknown"
}

// Event is a normalized keystroke.
type Event struct {
	Key      string
	Modifier bool // any command/control modifier held
	Cancel   bool // the universal cancel input (Escape-equivalent)
}

// Router holds the active region and gates shortcut dispatch.
type Router struct {
	mu     sync.Mutex
	region Region
	store  *state.Store

	// OnCloseDialog closes the open dialog when the cancel cascade reaches
	// it; set by the UI shell.
	OnCloseDialog func()

	log *slog.Logger
}

func NewRouter(store *state.Store) *Router {
	return &Router{store: store, log: applog.WithComponent("focus")}
}

// SetRegion transfers focus ownership, e.g. on pointer entry or an explicit
// focus call.
func (r *Router) SetRegion(reg Region) {
	r.mu.Lock()
	prev := r.region
	r.region = reg
	r.mu.Unlock()
	if prev != reg {
		r.log.Debug("focus moved", slog.String("from", prev.String()), slog.String("to", reg.String()))
	}
}

// Release returns focus to the default region.
func (r *Router) Release() { r.SetRegion(RegionCanvas) }

func (r *Router) Region() Region {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.region
}

// CanHandle reports whether the event may trigger a shortcut in the active
// region. Rules:
//   - the universal cancel fires everywhere;
//   - modifier combinations fire in every region except dialogs (text inputs
//     keep their own undo-text semantics, which we delegate to the widget);
//   - single keys fire only on the canvas/default region, never in text
//     inputs or dialogs.
func (r *Router) CanHandle(ev Event) bool {
	if ev.Cancel {
		return true
	}
	reg := r.Region()
	if ev.Modifier {
		return reg != RegionDialog
	}
	return reg == RegionCanvas
}

// Cancel runs the universal cancel cascade, closing the innermost cancelable
// context only: an open dialog first, then the active draft, then the
// selection.
func (r *Router) Cancel() {
	if r.Region() == RegionDialog {
		if r.OnCloseDialog != nil {
			r.OnCloseDialog()
		}
		r.Release()
		return
	}
	if r.store.Draft().Active {
		r.store.CancelDraft()
		return
	}
	r.store.ClearSelection()
}
