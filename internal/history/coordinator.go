/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package history wraps every user-initiated mutation as a reversible,
// asynchronous command and maintains the bounded undo/redo stack. It is the
// only component allowed to drive mutations against the persistence layer.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	applog "takeoff/internal/log"
)

// Command is the undo/redo unit. Every operation carries a network effect and
// may fail; the stack never records a state the remote store did not confirm.
//
// Reapply may differ from Apply: re-creating a deleted entity yields a new
// identity, so redo must replay the captured forward state, not recompute it.
type Command interface {
	Describe() string
	Affected() []string
	Apply(ctx context.Context) error
	Revert(ctx context.Context) error
	Reapply(ctx context.Context) error
}

// DesyncError reports that an undo/redo's remote effect failed. The offending
// entry has been dropped from history; the true remote state is unknown and
// must be re-fetched through the synchronizer's refresh path.
type DesyncError struct {
	Op      string // "undo" or "redo"
	Command string
	Err     error
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("%s %q failed, entry dropped: %v", e.Op, e.Command, e.Err)
}

func (e *DesyncError) Unwrap() error { return e.Err }

// DefaultDepth bounds the history when no explicit depth is configured.
const DefaultDepth = 100

// Coordinator serializes dispatch/undo/redo so no two commands ever execute
// concurrently against the stack: a call arriving while a prior one is still
// pending queues on the mutex and runs only after the earlier effect settled.
type Coordinator struct {
	mu    sync.Mutex
	depth int
	undo  []Command // oldest first
	redo  []Command // next redo last
	log   *slog.Logger
}

func NewCoordinator(depth int) *Coordinator {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Coordinator{depth: depth, log: applog.WithComponent("history")}
}

// Dispatch applies cmd. On success it is pushed and all redoable entries are
// discarded (linear history). On failure the stack is untouched and the error
// returns to the caller unretried; retry policy belongs to the persistence
// layer.
func (c *Coordinator) Dispatch(ctx context.Context, cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := cmd.Apply(ctx); err != nil {
		c.log.Warn("dispatch failed", slog.String("cmd", cmd.Describe()), slog.Any("err", err))
		return err
	}
	c.undo = append(c.undo, cmd)
	c.redo = nil
	if len(c.undo) > c.depth {
		// Eviction only forgets local replay information; it never triggers
		// a remote effect.
		over := len(c.undo) - c.depth
		c.undo = append([]Command(nil), c.undo[over:]...)
	}
	c.log.Debug("dispatched", slog.String("cmd", cmd.Describe()), slog.Int("undoable", len(c.undo)))
	return nil
}

// Undo reverts the top undoable command. No-op (false, nil) when nothing is
// undoable. If the revert's remote effect fails, the entry is removed from
// the stack entirely rather than left ambiguous, and a DesyncError is
// returned; local state is not rolled back further.
func (c *Coordinator) Undo(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.undo)
	if n == 0 {
		return false, nil
	}
	cmd := c.undo[n-1]
	c.undo = c.undo[:n-1]
	if err := cmd.Revert(ctx); err != nil {
		c.log.Error("undo failed, dropping entry", slog.String("cmd", cmd.Describe()), slog.Any("err", err))
		return false, &DesyncError{Op: "undo", Command: cmd.Describe(), Err: err}
	}
	c.redo = append(c.redo, cmd)
	return true, nil
}

// Redo reapplies the most recently undone command; symmetric failure policy
// to Undo.
func (c *Coordinator) Redo(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.redo)
	if n == 0 {
		return false, nil
	}
	cmd := c.redo[n-1]
	c.redo = c.redo[:n-1]
	if err := cmd.Reapply(ctx); err != nil {
		c.log.Error("redo failed, dropping entry", slog.String("cmd", cmd.Describe()), slog.Any("err", err))
		return false, &DesyncError{Op: "redo", Command: cmd.Describe(), Err: err}
	}
	c.undo = append(c.undo, cmd)
	return true, nil
}

func (c *Coordinator) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.undo) > 0
}

func (c *Coordinator) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.redo) > 0
}

// Lens returns the current undoable/redoable counts, for diagnostics.
func (c *Coordinator) Lens() (undoable, redoable int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.undo), len(c.redo)
}
