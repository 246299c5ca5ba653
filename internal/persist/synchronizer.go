/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package persist owns the mapping between local entity state and the remote
// store: it decides when a mutation is sent, coalesces high-frequency edits,
// reconciles success/failure, and maintains the read cache of persisted
// measurements. The cache is mutated here and nowhere else.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"takeoff/internal/domain"
	applog "takeoff/internal/log"
)

// Backend is the remote store surface the synchronizer consumes. Calls are
// fallible, asynchronous and at-most-once; retries are the caller's decision.
type Backend interface {
	CreateMeasurement(ctx context.Context, m domain.Measurement) (string, error)
	UpdateMeasurement(ctx context.Context, id string, p domain.Patch) error
	DeleteMeasurement(ctx context.Context, id string) error
	ListMeasurements(ctx context.Context, pageID string) ([]domain.Measurement, error)
}

// ErrNotFound is returned when an id has no cached entity.
var ErrNotFound = errors.New("measurement not found")

// NetworkError marks a remote effect that was not confirmed. The wrapped
// cause is preserved; callers surface it as a retryable notice.
type NetworkError struct {
	Op  string
	ID  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Synchronizer translates command-level intents into remote operations and
// keeps the local read cache consistent with what the remote store confirmed.
type Synchronizer struct {
	be     Backend
	pageID string

	mu         sync.Mutex
	cache      map[string]domain.Measurement
	conditions map[string]domain.Condition

	log *slog.Logger
}

func NewSynchronizer(be Backend, pageID string) *Synchronizer {
	return &Synchronizer{
		be:         be,
		pageID:     pageID,
		cache:      make(map[string]domain.Measurement),
		conditions: make(map[string]domain.Condition),
		log:        applog.WithComponent("persist"),
	}
}

// Create persists a new measurement and, on success, caches it under the
// assigned id. On failure the payload is untouched so the caller can retry.
func (s *Synchronizer) Create(ctx context.Context, m domain.Measurement) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	id, err := s.be.CreateMeasurement(ctx, m)
	if err != nil {
		s.log.Warn("create not confirmed", slog.Any("err", err))
		return "", &NetworkError{Op: "create", Err: err}
	}
	m.ID = id
	s.mu.Lock()
	s.cache[id] = m.Clone()
	s.mu.Unlock()
	return id, nil
}

// Update sends a partial update. The cache is only touched after the remote
// store confirms; on failure the previous value stays so no input is lost.
func (s *Synchronizer) Update(ctx context.Context, id string, p domain.Patch) error {
	s.mu.Lock()
	cur, ok := s.cache[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if err := s.be.UpdateMeasurement(ctx, id, p); err != nil {
		s.log.Warn("update not confirmed", slog.String("id", id), slog.Any("err", err))
		return &NetworkError{Op: "update", ID: id, Err: err}
	}
	s.mu.Lock()
	s.cache[id] = cur.WithPatch(p)
	s.mu.Unlock()
	return nil
}

// Delete removes the entity optimistically before server confirmation; on
// failure it is reinserted and the error surfaced.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	prev, ok := s.cache[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(s.cache, id)
	s.mu.Unlock()

	if err := s.be.DeleteMeasurement(ctx, id); err != nil {
		s.mu.Lock()
		s.cache[id] = prev
		s.mu.Unlock()
		s.log.Warn("delete not confirmed, entity restored", slog.String("id", id), slog.Any("err", err))
		return &NetworkError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// GetCached returns the cached entity for id.
func (s *Synchronizer) GetCached(id string) (domain.Measurement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.cache[id]
	if !ok {
		return domain.Measurement{}, false
	}
	return m.Clone(), true
}

// CachedAll returns every cached measurement, ordered by id for stable
// rendering.
func (s *Synchronizer) CachedAll() []domain.Measurement {
	s.mu.Lock()
	out := make([]domain.Measurement, 0, len(s.cache))
	for _, m := range s.cache {
		out = append(out, m.Clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Refresh re-fetches authoritative state from the backend and replaces the
// cached entries for the given ids (all, when none are given). Used after an
// undo/redo failure when the remote state's true value is unknown.
func (s *Synchronizer) Refresh(ctx context.Context, ids ...string) error {
	remote, err := s.be.ListMeasurements(ctx, s.pageID)
	if err != nil {
		return &NetworkError{Op: "refresh", Err: err}
	}
	byID := make(map[string]domain.Measurement, len(remote))
	for _, m := range remote {
		byID[m.ID] = m
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		s.cache = make(map[string]domain.Measurement, len(byID))
		for id, m := range byID {
			s.cache[id] = m.Clone()
		}
		return nil
	}
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			s.cache[id] = m.Clone()
		} else {
			delete(s.cache, id)
		}
	}
	return nil
}

// Prime seeds the cache from a bulk load without a network round trip.
func (s *Synchronizer) Prime(ms []domain.Measurement, cs []domain.Condition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ms {
		if m.ID == "" {
			continue
		}
		s.cache[m.ID] = m.Clone()
	}
	for _, c := range cs {
		s.conditions[c.ID] = c
	}
}

// Condition returns read-only reference data for a condition id.
func (s *Synchronizer) Condition(id string) (domain.Condition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conditions[id]
	return c, ok
}

// DropCondition removes a condition from the reference set, e.g. when the
// external CRUD layer signals its deletion.
func (s *Synchronizer) DropCondition(id string) {
	s.mu.Lock()
	delete(s.conditions, id)
	s.mu.Unlock()
}
