/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// Core data model for the takeoff editor: persisted measurements traced over a
// plan image, owned by a condition (the classification that gives them color
// and unit). Coordinates are stored in page units; real-world quantities are
// derived with the page's scale factor, never stored.

import (
	"errors"
	"fmt"
)

// GeometryKind enumerates the drawable measurement geometries.
type GeometryKind string

const (
	KindPoint     GeometryKind = "point"
	KindLine      GeometryKind = "line"
	KindPolyline  GeometryKind = "polyline"
	KindPolygon   GeometryKind = "polygon"
	KindRectangle GeometryKind = "rectangle"
	KindCircle    GeometryKind = "circle"
)

// Point is a 2D coordinate in page units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Measurement is a persisted geometric entity. ID is empty until the first
// successful commit to the backend; a Measurement without an ID has never
// been persisted.
type Measurement struct {
	ID          string       `json:"id,omitempty"`
	ConditionID string       `json:"conditionId"`
	Kind        GeometryKind `json:"kind"`
	Points      []Point      `json:"points"`
}

// Condition is owned by the external CRUD layer; the editor treats it as
// read-only reference data.
type Condition struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"` // hex, e.g. "#cc3366"
	Unit  string `json:"unit,omitempty"`
}

// Patch describes a partial update to a Measurement. Nil/empty fields are
// left unchanged by the receiver.
type Patch struct {
	Points      []Point `json:"points,omitempty"`
	ConditionID string  `json:"conditionId,omitempty"`
}

// Quantity holds the scalar values derived from a measurement's geometry.
type Quantity struct {
	Length float64 `json:"length"`
	Area   float64 `json:"area"`
	Count  int     `json:"count"`
}

// ErrTooFewPoints is returned by Validate when a geometry has fewer points
// than its kind requires.
var ErrTooFewPoints = errors.New("too few points for geometry kind")

// ErrUnknownKind is returned for a geometry kind outside the enumerated set.
var ErrUnknownKind = errors.New("unknown geometry kind")

// MinPoints returns the minimum number of coordinates a kind requires.
func MinPoints(k GeometryKind) (int, error) {
	switch k {
	case KindPoint:
		return 1, nil
	case KindLine, KindRectangle, KindCircle, KindPolyline:
		return 2, nil
	case KindPolygon:
		return 3, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
}

// Validate checks the measurement's geometry against its kind.
func (m Measurement) Validate() error {
	n, err := MinPoints(m.Kind)
	if err != nil {
		return err
	}
	if len(m.Points) < n {
		return fmt.Errorf("%w: %s needs %d, got %d", ErrTooFewPoints, m.Kind, n, len(m.Points))
	}
	return nil
}

// Clone returns a deep copy; command capture relies on this so later edits
// cannot alias captured state.
func (m Measurement) Clone() Measurement {
	c := m
	c.Points = append([]Point(nil), m.Points...)
	return c
}

// WithPatch returns a copy of m with the patch applied.
func (m Measurement) WithPatch(p Patch) Measurement {
	c := m.Clone()
	if p.Points != nil {
		c.Points = append([]Point(nil), p.Points...)
	}
	if p.ConditionID != "" {
		c.ConditionID = p.ConditionID
	}
	return c
}

// IsArea reports whether the kind encloses area.
func (k GeometryKind) IsArea() bool {
	return k == KindPolygon || k == KindRectangle || k == KindCircle
}

// IsLinear reports whether the kind is an open linear geometry.
func (k GeometryKind) IsLinear() bool {
	return k == KindLine || k == KindPolyline
}
