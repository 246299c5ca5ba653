/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	if parseLevel("debug") != slog.LevelDebug {
		t.Fatalf("debug")
	}
	if parseLevel("WARN") != slog.LevelWarn {
		t.Fatalf("warn")
	}
	if parseLevel("") != slog.LevelInfo {
		t.Fatalf("default should be info")
	}
}

func TestPrettyHandlerWritesAttrs(t *testing.T) {
	var sb strings.Builder
	h := &prettyTextHandler{level: slog.LevelInfo, w: &sb}
	l := slog.New(h).With(slog.String("component", "test"))
	l.Info("hello", slog.Int("n", 3))
	out := sb.String()
	if !strings.Contains(out, "INF hello") {
		t.Fatalf("missing level/message: %q", out)
	}
	if !strings.Contains(out, "component=test") || !strings.Contains(out, "n=3") {
		t.Fatalf("missing attrs: %q", out)
	}
}

func TestPrettyHandlerGroups(t *testing.T) {
	var sb strings.Builder
	h := (&prettyTextHandler{level: slog.LevelInfo, w: &sb}).WithGroup("sync")
	_ = h.Handle(context.Background(), recordWith("flush", slog.String("id", "m1")))
	if !strings.Contains(sb.String(), "sync.id=m1") {
		t.Fatalf("group prefix missing: %q", sb.String())
	}
}

func recordWith(msg string, attrs ...slog.Attr) slog.Record {
	r := slog.Record{Message: msg, Level: slog.LevelInfo}
	r.AddAttrs(attrs...)
	return r
}

func TestWithComponent(t *testing.T) {
	Init(Options{Level: "error"})
	if l := WithComponent("history"); l == nil {
		t.Fatalf("nil logger")
	}
}
