/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backend talks to the measurement store over HTTP. The client is the
// only network surface the editor core consumes; calls are fallible,
// at-most-once, and carry no implicit retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"takeoff/internal/domain"
)

// Client is a minimal HTTP JSON client for the measurement API.
type Client struct {
	BaseURL string
	Token   string // bearer token
	// PageID scopes created measurements; the server stores and lists per
	// page. Set once when the editor opens a page.
	PageID string
	client *http.Client
}

// NewClient creates a backend client. baseURL may include a trailing slash;
// it will be normalized.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server %s %s: %s", method, u.Path, resp.Status)
	}
	if dest == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	return dec.Decode(dest)
}

type idEnvelope struct {
	ID string `json:"id"`
}

// CreateMeasurement persists a new measurement and returns its assigned id.
func (c *Client) CreateMeasurement(ctx context.Context, m domain.Measurement) (string, error) {
	payload := struct {
		domain.Measurement
		PageID string `json:"pageId,omitempty"`
	}{Measurement: m, PageID: c.PageID}
	var env idEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/api/measurements", payload, &env); err != nil {
		return "", err
	}
	if env.ID == "" {
		return "", fmt.Errorf("create measurement: server returned no id")
	}
	return env.ID, nil
}

// UpdateMeasurement applies a partial update to an existing measurement.
func (c *Client) UpdateMeasurement(ctx context.Context, id string, p domain.Patch) error {
	return c.doJSON(ctx, http.MethodPatch, "/api/measurements/"+url.PathEscape(id), p, nil)
}

// DeleteMeasurement removes a measurement by id.
func (c *Client) DeleteMeasurement(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/measurements/"+url.PathEscape(id), nil, nil)
}

// ListMeasurements bulk-loads the measurements of a page.
func (c *Client) ListMeasurements(ctx context.Context, pageID string) ([]domain.Measurement, error) {
	var list []domain.Measurement
	path := "/api/measurements?page=" + url.QueryEscape(pageID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListConditions bulk-loads the conditions of a page.
func (c *Client) ListConditions(ctx context.Context, pageID string) ([]domain.Condition, error) {
	var list []domain.Condition
	path := "/api/conditions?page=" + url.QueryEscape(pageID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}
