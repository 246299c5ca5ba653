/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"takeoff/internal/domain"
)

func TestCreateMeasurementSendsAuthAndReturnsID(t *testing.T) {
	var gotAuth, gotMethod, gotPath string
	var gotBody struct {
		domain.Measurement
		PageID string `json:"pageId"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeJSON(w, http.StatusCreated, idEnvelope{ID: "srv-42"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "sekret", time.Second)
	c.PageID = "p1"
	m := domain.Measurement{
		ConditionID: "c1",
		Kind:        domain.KindLine,
		Points:      []domain.Point{{X: 0, Y: 0}, {X: 3, Y: 4}},
	}
	id, err := c.CreateMeasurement(context.Background(), m)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "srv-42" {
		t.Fatalf("wrong id: %q", id)
	}
	if gotAuth != "Bearer sekret" {
		t.Fatalf("auth header: %q", gotAuth)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/measurements" {
		t.Fatalf("wrong route: %s %s", gotMethod, gotPath)
	}
	if gotBody.Kind != domain.KindLine || len(gotBody.Points) != 2 {
		t.Fatalf("body mangled: %+v", gotBody)
	}
	if gotBody.PageID != "p1" {
		t.Fatalf("page scope missing: %q", gotBody.PageID)
	}
}

func TestCreateMeasurementRejectsEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, idEnvelope{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.CreateMeasurement(context.Background(), domain.Measurement{Kind: domain.KindPoint, Points: []domain.Point{{X: 1, Y: 1}}}); err == nil {
		t.Fatalf("expected error on missing id")
	}
}

func TestUpdateAndDeleteRoutes(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if err := c.UpdateMeasurement(context.Background(), "m1", domain.Patch{ConditionID: "c2"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.DeleteMeasurement(context.Background(), "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].method != http.MethodPatch || calls[0].path != "/api/measurements/m1" {
		t.Fatalf("update route: %+v", calls[0])
	}
	if calls[1].method != http.MethodDelete || calls[1].path != "/api/measurements/m1" {
		t.Fatalf("delete route: %+v", calls[1])
	}
}

func TestNonSuccessStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if err := c.DeleteMeasurement(context.Background(), "m1"); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestListMeasurementsPagesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "plan 7" {
			t.Errorf("page query: %q", got)
		}
		writeJSON(w, http.StatusOK, []domain.Measurement{
			{ID: "m1", ConditionID: "c1", Kind: domain.KindPoint, Points: []domain.Point{{X: 1, Y: 2}}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	list, err := c.ListMeasurements(context.Background(), "plan 7")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "m1" {
		t.Fatalf("bad list: %+v", list)
	}
}

func TestListConditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conditions" {
			t.Errorf("path: %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, []domain.Condition{{ID: "c1", Name: "Slab", Color: "#ff0000", Unit: "m2"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	list, err := c.ListConditions(context.Background(), "p1")
	if err != nil {
		t.Fatalf("list conditions: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Slab" {
		t.Fatalf("bad conditions: %+v", list)
	}
}

func TestContextCancellationPropagates(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, "", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.DeleteMeasurement(ctx, "m1"); err == nil {
		t.Fatalf("expected context error")
	}
}
