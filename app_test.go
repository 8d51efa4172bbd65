package main

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// drain runs cmd and every command that follows from it, feeding the
// messages back into the app. Spinner ticks are dropped so it terminates.
func drain(t *testing.T, a *App, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 100 {
			t.Fatal("commands did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case spinner.TickMsg, nil:
		default:
			_, c := a.Update(msg)
			queue = append(queue, c)
		}
	}
}

func press(t *testing.T, a *App, msgs ...tea.KeyMsg) {
	t.Helper()
	for _, msg := range msgs {
		_, cmd := a.Update(msg)
		drain(t, a, cmd)
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyRight = tea.KeyMsg{Type: tea.KeyRight}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keyTab   = tea.KeyMsg{Type: tea.KeyTab}
	keyCtrlU = tea.KeyMsg{Type: tea.KeyCtrlU}
	keyCtrlR = tea.KeyMsg{Type: tea.KeyCtrlR}
)

func newTestApp(t *testing.T, opts AppOptions, sources map[string]*fakeSource) *App {
	t.Helper()
	cfg := &Config{PageSize: 100}
	for name := range sources {
		cfg.Sources = append(cfg.Sources, &SourceConfig{Name: name, Type: SourceSQLite, Path: name + ".db"})
	}
	cfg.applyDefaults()

	opts.OpenSource = func(sc *SourceConfig, logger *slog.Logger) (TableSource, error) {
		src, ok := sources[sc.Name]
		if !ok {
			return nil, errors.New("cannot open " + sc.Name)
		}
		src.name = sc.Name
		return src, nil
	}
	a := NewApp(cfg, nil, opts)
	a.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return a
}

func TestAppStartsIdleWithTableList(t *testing.T) {
	src := newScenarioSource(t)
	a := newTestApp(t, AppOptions{}, map[string]*fakeSource{"main": src})
	drain(t, a, a.Init())

	if got := len(a.sidebar.Tables()); got != 3 {
		t.Fatalf("sidebar tables = %d, want 3", got)
	}
	view := a.View()
	for _, want := range []string{"basable | main", "Select a table from the sidebar", "43 (2)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestAppOpensTableFromSidebar(t *testing.T) {
	src := newScenarioSource(t)
	a := newTestApp(t, AppOptions{}, map[string]*fakeSource{"main": src})
	drain(t, a, a.Init())

	// source, 42, 43
	press(t, a, keyDown, keyDown, keyEnter)

	if a.focus != FocusGrid {
		t.Error("opening a table should focus the grid")
	}
	snap := a.snapshot()
	if snap.TableID != "43" || !snap.Renderable() {
		t.Fatalf("snapshot = %s %s", snap.TableID, snap.State.Phase)
	}
	view := a.View()
	for _, want := range []string{"basable | main / 43", "sku", "price", "A-1", "B-2"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestAppShowsLoadFailureAndRetries(t *testing.T) {
	src := newScenarioSource(t)
	src.rowErr["42"] = errors.New("connection reset")
	a := newTestApp(t, AppOptions{InitialTable: "42"}, map[string]*fakeSource{"main": src})
	drain(t, a, a.Init())

	view := a.View()
	if !strings.Contains(view, "Failed to load rows of 42: connection reset") {
		t.Fatalf("failure not shown:\n%s", view)
	}

	delete(src.rowErr, "42")
	press(t, a, keyCtrlR)
	if !a.snapshot().Renderable() {
		t.Fatalf("reload did not recover: %s", a.snapshot().State.Phase)
	}
	if view := a.View(); !strings.Contains(view, "a@x.com") {
		t.Errorf("rows missing after reload:\n%s", view)
	}
}

func TestAppEditsCell(t *testing.T) {
	src := newScenarioSource(t)
	a := newTestApp(t, AppOptions{InitialTable: "43"}, map[string]*fakeSource{"main": src})
	drain(t, a, a.Init())

	press(t, a, keyRight, keyEnter)
	if !a.editor.Active() {
		t.Fatal("enter should open the editor")
	}
	if view := a.View(); !strings.Contains(view, "Edit price (row 1, Float)") {
		t.Errorf("editor prompt missing:\n%s", view)
	}

	press(t, a, keyCtrlU, runes("12"), keyEnter)
	if a.editor.Active() {
		t.Fatal("commit should close the editor")
	}
	if a.status != "saved price" {
		t.Errorf("status = %q", a.status)
	}
	if len(src.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(src.updates))
	}
	update := src.updates[0]
	if update.Column != "price" || update.RowIndex != 0 || update.Value.Tag() != "Float" || update.Value.Text() != "12" {
		t.Errorf("update = %+v", update)
	}
	if text, _ := ResolveText("price", a.snapshot().Rows[0]); text != "12" {
		t.Errorf("price = %q after commit", text)
	}
}

func TestAppRollsBackRejectedEdit(t *testing.T) {
	src := newScenarioSource(t)
	src.updateErr = errors.New("read only")
	a := newTestApp(t, AppOptions{InitialTable: "43"}, map[string]*fakeSource{"main": src})
	drain(t, a, a.Init())

	press(t, a, keyEnter, keyCtrlU, runes("Z-9"), keyEnter)

	if text, _ := ResolveText("sku", a.snapshot().Rows[0]); text != "A-1" {
		t.Errorf("sku = %q, want rollback to A-1", text)
	}
	if a.err == nil || !strings.Contains(a.err.Error(), "read only") {
		t.Errorf("err = %v", a.err)
	}
}

func TestAppEditorKeepsInvalidInput(t *testing.T) {
	src := newScenarioSource(t)
	a := newTestApp(t, AppOptions{InitialTable: "43"}, map[string]*fakeSource{"main": src})
	drain(t, a, a.Init())

	// price is numeric
	press(t, a, keyRight, keyEnter, keyCtrlU, runes("abc"), keyEnter)
	if !a.editor.Active() {
		t.Fatal("editor should stay open on invalid input")
	}
	if a.err == nil {
		t.Error("expected a validation error")
	}
	if len(src.updates) != 0 {
		t.Errorf("invalid input was sent: %+v", src.updates)
	}

	press(t, a, keyEsc)
	if a.editor.Active() {
		t.Error("esc should close the editor")
	}
}

func TestAppSwitchingSourceDropsOldResults(t *testing.T) {
	one := newScenarioSource(t)
	two := newFakeSource()
	two.addTable(t, "other", []string{"x"}, `[{"x":{"Int":1}}]`)
	a := newTestApp(t, AppOptions{InitialSource: "one"}, map[string]*fakeSource{"one": one, "two": two})
	drain(t, a, a.Init())

	// start a load on "one" and hold its result
	pending := a.selectTable("42")
	drain(t, a, a.openSource("two"))

	if a.sidebar.Active() != "two" {
		t.Fatalf("active source = %q", a.sidebar.Active())
	}
	drain(t, a, pending)
	if a.snapshot().TableID != "" {
		t.Errorf("result from the previous source landed: %+v", a.snapshot())
	}

	// a late listing from the old source is ignored too
	a.Update(tablesListedMsg{source: "one", tables: []TableSummary{{Name: "stale"}}})
	for _, table := range a.sidebar.Tables() {
		if table.Name == "stale" {
			t.Error("stale table listing applied")
		}
	}
}

func TestAppFocusAndHelp(t *testing.T) {
	src := newScenarioSource(t)
	a := newTestApp(t, AppOptions{}, map[string]*fakeSource{"main": src})
	drain(t, a, a.Init())

	press(t, a, keyTab)
	if a.focus != FocusGrid {
		t.Error("tab should move focus to the grid")
	}
	press(t, a, keyEsc)
	if a.focus != FocusSidebar {
		t.Error("esc in the grid should return to the sidebar")
	}

	press(t, a, runes("?"))
	if !a.showHelp {
		t.Error("? should toggle full help")
	}
	if view := a.View(); !strings.Contains(view, "next page") {
		t.Errorf("full help missing:\n%s", view)
	}
}

func TestAppOpenFailure(t *testing.T) {
	a := newTestApp(t, AppOptions{InitialSource: "broken"}, map[string]*fakeSource{})
	a.cfg.Sources = append(a.cfg.Sources, &SourceConfig{Name: "broken", Type: SourceSQLite, Path: "x.db"})
	drain(t, a, a.Init())

	if a.err == nil || !strings.Contains(a.View(), "cannot open broken") {
		t.Errorf("open failure not shown: %v", a.err)
	}
}
