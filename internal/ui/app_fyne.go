//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"takeoff/internal/backend"
	"takeoff/internal/config"
	"takeoff/internal/crash"
	"takeoff/internal/domain"
	"takeoff/internal/focus"
	"takeoff/internal/history"
	applog "takeoff/internal/log"
	"takeoff/internal/persist"
	"takeoff/internal/scene"
	"takeoff/internal/state"
	"takeoff/internal/storage"
	"takeoff/internal/telemetry"
	"takeoff/internal/vector"
)

// Run starts the Fyne-based desktop shell for the given page.
func Run(pageID string) error {
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("page", pageID))
	telemetry.InitDefault()

	cfg, token, err := config.Load()
	if err != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", err))
	}
	if pageID == "" {
		pageID = "default"
	}

	cli := backend.NewClient(cfg.Backend.BaseURL, token, cfg.Backend.BackendTimeout())
	cli.PageID = pageID
	sync := persist.NewSynchronizer(cli, pageID)
	st := state.NewStore()
	hist := history.NewCoordinator(cfg.Editor.HistoryDepth)
	slots := history.NewSlotTable()
	router := focus.NewRouter(st)

	var snapDir string
	if p, err := config.ConfigPath(); err == nil {
		snapDir = filepath.Dir(p)
	} else {
		snapDir = os.TempDir()
	}
	snaps, err := storage.Open(snapDir)
	if err != nil {
		l.Warn("snapshot store unavailable", slog.Any("err", err))
	}
	currentDoc := func() (storage.PageDocument, bool) {
		ms := sync.CachedAll()
		if len(ms) == 0 {
			return storage.PageDocument{}, false
		}
		return storage.PageDocument{PageID: pageID, Scale: 1, Measurements: ms}, true
	}
	defer crash.Recover(snapDir, snaps, currentDoc)

	fyneApp := app.NewWithID("takeoff")
	w := fyneApp.NewWindow("Takeoff")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1200)
	winH := prefs.IntWithFallback("window.height", 800)
	if winW < 800 {
		winW = 800
	}
	if winH < 600 {
		winH = 600
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Ready")
	setStatus := func(s string) { status.SetText(s) }
	notify := func(err error) {
		setStatus(fmt.Sprintf("Failed, retry: %v", err))
		l.Warn("operation failed", slog.Any("err", err))
	}

	ad := scene.NewAdapter(st, sync, hist, slots, cfg.Editor.CoalesceWindow(), notify)
	mc := newMeasureCanvas(ad, router)
	st.Subscribe(mc.Refresh)

	// Initial page load; a failure leaves an empty page the user can refresh.
	conditions := []domain.Condition{}
	loadPage := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.BackendTimeout())
		defer cancel()
		cs, err := cli.ListConditions(ctx, pageID)
		if err != nil {
			notify(err)
			return
		}
		ms, err := cli.ListMeasurements(ctx, pageID)
		if err != nil {
			notify(err)
			return
		}
		sync.Prime(ms, cs)
		conditions = cs
		mc.Refresh()
		setStatus(fmt.Sprintf("Loaded %d measurements", len(ms)))
	}

	// Optional plan backdrop.
	if path := os.Getenv("TKO_PLAN_IMAGE"); path != "" {
		if img, err := LoadPlan(path); err != nil {
			l.Warn("plan image load failed", slog.Any("err", err))
		} else {
			mc.plan = canvas.NewImageFromImage(FitTo(img, 4096, 4096))
			mc.plan.FillMode = canvas.ImageFillContain
		}
	}

	condList := widget.NewList(
		func() int { return len(conditions) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			if int(i) < len(conditions) {
				o.(*widget.Label).SetText(conditions[i].Name)
			}
		},
	)
	condList.OnSelected = func(i widget.ListItemID) {
		if int(i) < len(conditions) {
			st.SetActiveCondition(conditions[i].ID)
			setStatus("Condition: " + conditions[i].Name)
		}
		router.SetRegion(focus.RegionCanvas)
	}

	pickTool := func(t state.Tool) func() {
		return func() {
			if err := st.SetTool(t); err != nil {
				notify(err)
				return
			}
			setStatus("Tool: " + string(t))
		}
	}
	tools := container.NewHBox(
		widget.NewButton("Count", pickTool(state.ToolCount)),
		widget.NewButton("Line", pickTool(state.ToolLine)),
		widget.NewButton("Polyline", pickTool(state.ToolPolyline)),
		widget.NewButton("Polygon", pickTool(state.ToolPolygon)),
		widget.NewButton("Rectangle", pickTool(state.ToolRectangle)),
		widget.NewButton("Circle", pickTool(state.ToolCircle)),
		widget.NewButton("Refresh", loadPage),
	)

	left := container.NewBorder(widget.NewLabel("Conditions"), nil, nil, nil, condList)
	w.SetContent(container.NewBorder(tools, status, left, nil, mc))

	// Keyboard routing: every keystroke passes the focus gate first.
	undoRedo := func(redo bool) {
		go func() {
			var ok bool
			var err error
			if redo {
				ok, err = hist.Redo(context.Background())
			} else {
				ok, err = hist.Undo(context.Background())
			}
			if err != nil {
				notify(err)
			} else if !ok {
				fyne.Do(func() { setStatus("Nothing to undo/redo") })
			}
			fyne.Do(mc.Refresh)
		}()
	}
	w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyZ, Modifier: fyne.KeyModifierShortcutDefault}, func(fyne.Shortcut) {
		if router.CanHandle(focus.Event{Key: "z", Modifier: true}) {
			undoRedo(false)
		}
	})
	w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyY, Modifier: fyne.KeyModifierShortcutDefault}, func(fyne.Shortcut) {
		if router.CanHandle(focus.Event{Key: "y", Modifier: true}) {
			undoRedo(true)
		}
	})
	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		fev := focus.Event{Key: string(ev.Name), Cancel: ev.Name == fyne.KeyEscape}
		if !router.CanHandle(fev) {
			return
		}
		if fev.Cancel {
			router.Cancel()
			mc.Refresh()
			return
		}
		switch ev.Name {
		case fyne.KeyC:
			pickTool(state.ToolCount)()
		case fyne.KeyL:
			pickTool(state.ToolLine)()
		case fyne.KeyP:
			pickTool(state.ToolPolyline)()
		case fyne.KeyG:
			pickTool(state.ToolPolygon)()
		case fyne.KeyR:
			pickTool(state.ToolRectangle)()
		case fyne.KeyO:
			pickTool(state.ToolCircle)()
		case fyne.KeyReturn, fyne.KeyEnter:
			go func() {
				if err := ad.FinishDraft(context.Background()); err == nil {
					telemetry.Event("draft_committed", map[string]any{"tool": string(st.Tool())})
				}
				fyne.Do(mc.Refresh)
			}()
		case fyne.KeyDelete, fyne.KeyBackspace:
			go func() {
				ad.DeleteSelected(context.Background())
				fyne.Do(mc.Refresh)
			}()
		}
	})

	// Periodic local snapshot so a crash or network loss keeps the page.
	stopSnaps := make(chan struct{})
	if snaps != nil {
		go func() {
			t := time.NewTicker(time.Minute)
			defer t.Stop()
			for {
				select {
				case <-stopSnaps:
					return
				case <-t.C:
					if doc, ok := currentDoc(); ok {
						ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
						if err := snaps.Save(ctx, doc); err != nil {
							l.Warn("autosave snapshot failed", slog.Any("err", err))
						} else {
							_ = snaps.Prune(ctx, pageID, storage.DefaultKeep)
						}
						cancel()
					}
				}
			}
		}()
	}

	w.SetOnClosed(func() {
		close(stopSnaps)
		ad.Edits().FlushAll()
		prefs.SetInt("window.width", int(w.Canvas().Size().Width))
		prefs.SetInt("window.height", int(w.Canvas().Size().Height))
		if snaps != nil {
			if doc, ok := currentDoc(); ok {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				_ = snaps.Save(ctx, doc)
				cancel()
			}
			_ = snaps.Close()
		}
	})

	loadPage()
	w.ShowAndRun()
	return nil
}

// measureCanvas renders the scene projection and feeds pointer input back.
type measureCanvas struct {
	widget.BaseWidget
	ad     *scene.Adapter
	router *focus.Router
	plan   *canvas.Image

	dragging   bool
	dragMoves  bool // true when the drag grabbed a measurement, false when panning
	dragOrigin fyne.Position
}

func newMeasureCanvas(ad *scene.Adapter, router *focus.Router) *measureCanvas {
	mc := &measureCanvas{ad: ad, router: router}
	mc.ExtendBaseWidget(mc)
	return mc
}

func (m *measureCanvas) Tapped(e *fyne.PointEvent) {
	m.router.SetRegion(focus.RegionCanvas)
	m.ad.Tap(toPt(e.Position))
	m.Refresh()
}

func (m *measureCanvas) TappedSecondary(*fyne.PointEvent) {
	go func() {
		_ = m.ad.FinishDraft(context.Background())
		fyne.Do(m.Refresh)
	}()
}

func (m *measureCanvas) Dragged(e *fyne.DragEvent) {
	if !m.dragging {
		m.dragging = true
		m.dragOrigin = e.Position
		m.dragMoves = m.ad.DragStart(toPt(e.Position))
	}
	if m.dragMoves {
		m.ad.DragTo(e.Position.X-m.dragOrigin.X, e.Position.Y-m.dragOrigin.Y)
	} else {
		m.ad.Pan(e.Dragged.DX, e.Dragged.DY)
	}
	m.Refresh()
}

func (m *measureCanvas) DragEnd() {
	m.dragging = false
	m.ad.DragEnd()
	m.Refresh()
}

func (m *measureCanvas) Scrolled(e *fyne.ScrollEvent) {
	factor := float32(1.1)
	if e.Scrolled.DY < 0 {
		factor = 1 / factor
	}
	m.ad.ZoomAt(toPt(e.Position), factor)
	m.Refresh()
}

func (m *measureCanvas) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 30, G: 30, B: 34, A: 255})
	return &measureRenderer{mc: m, bg: bg}
}

type measureRenderer struct {
	mc   *measureCanvas
	bg   *canvas.Rectangle
	objs []fyne.CanvasObject
}

func (r *measureRenderer) Destroy() {}

func (r *measureRenderer) MinSize() fyne.Size { return fyne.NewSize(640, 480) }

func (r *measureRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	if r.mc.plan != nil {
		r.mc.plan.Resize(size)
	}
}

func (r *measureRenderer) Objects() []fyne.CanvasObject { return r.objs }

func (r *measureRenderer) Refresh() {
	objs := []fyne.CanvasObject{r.bg}
	if r.mc.plan != nil {
		objs = append(objs, r.mc.plan)
	}
	for _, s := range r.mc.ad.Shapes() {
		objs = append(objs, shapeObjects(s)...)
	}
	r.objs = objs
	r.Layout(r.mc.Size())
	canvas.Refresh(r.mc)
}

// shapeObjects lowers one projected shape to primitive canvas objects.
func shapeObjects(s scene.Shape) []fyne.CanvasObject {
	col := parseHexColor(s.Color)
	if s.Selected {
		col = color.RGBA{R: 0, G: 170, B: 255, A: 255}
	}
	var out []fyne.CanvasObject
	line := func(a, b fyne.Position) {
		ln := canvas.NewLine(col)
		ln.StrokeWidth = 2
		ln.Position1, ln.Position2 = a, b
		out = append(out, ln)
	}
	pos := func(i int) fyne.Position { return fyne.NewPos(s.Points[i].X, s.Points[i].Y) }

	switch s.Kind {
	case domain.KindPoint:
		c := canvas.NewCircle(col)
		c.Resize(fyne.NewSize(10, 10))
		c.Move(fyne.NewPos(s.Points[0].X-5, s.Points[0].Y-5))
		out = append(out, c)
	case domain.KindLine, domain.KindPolyline:
		for i := 1; i < len(s.Points); i++ {
			line(pos(i-1), pos(i))
		}
	case domain.KindPolygon:
		n := len(s.Points)
		for i := 0; i < n; i++ {
			line(pos(i), pos((i+1)%n))
		}
	case domain.KindRectangle:
		if len(s.Points) >= 2 {
			rect := canvas.NewRectangle(color.Transparent)
			rect.StrokeColor = col
			rect.StrokeWidth = 2
			x0, y0 := s.Points[0].X, s.Points[0].Y
			x1, y1 := s.Points[1].X, s.Points[1].Y
			if x1 < x0 {
				x0, x1 = x1, x0
			}
			if y1 < y0 {
				y0, y1 = y1, y0
			}
			rect.Move(fyne.NewPos(x0, y0))
			rect.Resize(fyne.NewSize(x1-x0, y1-y0))
			out = append(out, rect)
		}
	case domain.KindCircle:
		if len(s.Points) >= 2 {
			dx := float64(s.Points[1].X - s.Points[0].X)
			dy := float64(s.Points[1].Y - s.Points[0].Y)
			rr := float32(math.Hypot(dx, dy))
			c := canvas.NewCircle(color.Transparent)
			c.StrokeColor = col
			c.StrokeWidth = 2
			c.Move(fyne.NewPos(s.Points[0].X-rr, s.Points[0].Y-rr))
			c.Resize(fyne.NewSize(2*rr, 2*rr))
			out = append(out, c)
		}
	}
	return out
}

func toPt(p fyne.Position) vector.Pt {
	return vector.Pt{X: p.X, Y: p.Y}
}

func parseHexColor(s string) color.Color {
	var r, g, b uint8
	if len(s) == 7 && s[0] == '#' {
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err == nil {
			return color.RGBA{R: r, G: g, B: b, A: 255}
		}
	}
	return color.RGBA{R: 200, G: 200, B: 200, A: 255}
}
