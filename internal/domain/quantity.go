/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "math"

// Quantify derives the measurement's scalar quantities. scale converts one
// page unit into one real-world unit (lengths scale linearly, areas by the
// square). Calibration itself happens elsewhere; this only consumes the ratio.
func (m Measurement) Quantify(scale float64) Quantity {
	if scale <= 0 {
		scale = 1
	}
	switch m.Kind {
	case KindPoint:
		return Quantity{Count: 1}
	case KindLine, KindPolyline:
		return Quantity{Length: pathLength(m.Points) * scale}
	case KindPolygon:
		return Quantity{
			Length: ringLength(m.Points) * scale,
			Area:   shoelace(m.Points) * scale * scale,
		}
	case KindRectangle:
		if len(m.Points) < 2 {
			return Quantity{}
		}
		w := math.Abs(m.Points[1].X - m.Points[0].X)
		h := math.Abs(m.Points[1].Y - m.Points[0].Y)
		return Quantity{Length: 2 * (w + h) * scale, Area: w * h * scale * scale}
	case KindCircle:
		if len(m.Points) < 2 {
			return Quantity{}
		}
		r := dist(m.Points[0], m.Points[1])
		return Quantity{Length: 2 * math.Pi * r * scale, Area: math.Pi * r * r * scale * scale}
	}
	return Quantity{}
}

// Total sums the quantities of every measurement belonging to a condition.
// Aggregates are always derived, never stored.
func Total(ms []Measurement, conditionID string, scale float64) Quantity {
	var t Quantity
	for _, m := range ms {
		if m.ConditionID != conditionID {
			continue
		}
		q := m.Quantify(scale)
		t.Length += q.Length
		t.Area += q.Area
		t.Count += q.Count
	}
	return t
}

func dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func pathLength(pts []Point) float64 {
	var l float64
	for i := 1; i < len(pts); i++ {
		l += dist(pts[i-1], pts[i])
	}
	return l
}

// ringLength closes the path back to the first point.
func ringLength(pts []Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	return pathLength(pts) + dist(pts[len(pts)-1], pts[0])
}

// shoelace computes the absolute polygon area.
func shoelace(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(s) / 2
}
