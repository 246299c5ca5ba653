/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"takeoff/internal/backend"
	"takeoff/internal/config"
	"takeoff/internal/crash"
	"takeoff/internal/domain"
	applog "takeoff/internal/log"
	"takeoff/internal/storage"
	"takeoff/internal/ui"
	"takeoff/internal/version"
)

func usage() {
	fmt.Println("Takeoff — geometric measurement editor")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  takeoff version|-v|--version     Show version")
	fmt.Println("  takeoff serve                    Run the measurement store server")
	fmt.Println("  takeoff ui [<pageID>]            Launch desktop UI (build with -tags fyne for full UI)")
	fmt.Println("  takeoff quantities <pageID> [scale]   Print per-condition quantities for a page")
	fmt.Println("  takeoff snapshot <pageID>        Show the latest local snapshot for a page")
}

func main() {
	// initialize structured logging using environment defaults
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	defer crash.Recover(os.TempDir(), nil, nil)

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("Takeoff — geometric measurement editor")
		fmt.Println(version.String())
	case "serve":
		if err := backend.Start(); err != nil {
			l.Error("server failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	case "ui":
		pageID := ""
		if len(args) >= 3 {
			pageID = args[2]
		}
		if err := ui.Run(pageID); err != nil {
			l.Error("ui failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	case "quantities":
		if len(args) < 3 {
			fmt.Println("quantities requires <pageID>")
			usage()
			os.Exit(2)
		}
		scale := 1.0
		if len(args) >= 4 {
			v, err := strconv.ParseFloat(args[3], 64)
			if err != nil || v <= 0 {
				fmt.Println("scale must be a positive number")
				os.Exit(2)
			}
			scale = v
		}
		if err := printQuantities(args[2], scale); err != nil {
			l.Error("quantities failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	case "snapshot":
		if len(args) < 3 {
			fmt.Println("snapshot requires <pageID>")
			usage()
			os.Exit(2)
		}
		if err := printSnapshot(args[2]); err != nil {
			l.Error("snapshot failed", slog.Any("err", err))
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func printQuantities(pageID string, scale float64) error {
	cfg, token, err := config.Load()
	if err != nil {
		return err
	}
	cli := backend.NewClient(cfg.Backend.BaseURL, token, cfg.Backend.BackendTimeout())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.BackendTimeout())
	defer cancel()

	conditions, err := cli.ListConditions(ctx, pageID)
	if err != nil {
		return err
	}
	measurements, err := cli.ListMeasurements(ctx, pageID)
	if err != nil {
		return err
	}
	fmt.Printf("Page %s (%d measurements, scale %g)\n", pageID, len(measurements), scale)
	for _, c := range conditions {
		q := domain.Total(measurements, c.ID, scale)
		fmt.Printf("  %-24s count=%d length=%.3f area=%.3f %s\n", c.Name, q.Count, q.Length, q.Area, c.Unit)
	}
	return nil
}

func printSnapshot(pageID string) error {
	p, err := config.ConfigPath()
	if err != nil {
		return err
	}
	store, err := storage.Open(filepath.Dir(p))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	doc, ok, err := store.Latest(context.Background(), pageID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No local snapshot for page", pageID)
		return nil
	}
	fmt.Printf("Page %s: %d conditions, %d measurements, scale %g\n",
		doc.PageID, len(doc.Conditions), len(doc.Measurements), doc.Scale)
	return nil
}
