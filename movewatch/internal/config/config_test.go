package config

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/movewatch/dbopen"
	"github.com/hazyhaar/movewatch/movewatch/internal/extract"

	_ "modernc.org/sqlite"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`page: {id: game-1}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Page.ID != "game-1" {
		t.Errorf("page id = %q", cfg.Page.ID)
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("base url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.StreamURL != "ws://localhost:5000/stream" {
		t.Errorf("stream url = %q", cfg.Backend.StreamURL)
	}
	if cfg.Selectors != extract.DefaultSelectors() {
		t.Errorf("selectors = %+v", cfg.Selectors)
	}
	if cfg.Anchors.Board != "#board-layout-chessboard" || cfg.Anchors.Host != "#board-layout-main" {
		t.Errorf("anchors = %+v", cfg.Anchors)
	}
	if cfg.Debounce.Window != 50*time.Millisecond || cfg.Dispatch.Queue != 64 {
		t.Errorf("debounce = %v queue = %d", cfg.Debounce.Window, cfg.Dispatch.Queue)
	}
	if cfg.Browser.Stealth != "headless" || cfg.Browser.RecycleInterval != 4*time.Hour {
		t.Errorf("browser = %+v", cfg.Browser)
	}
	if !cfg.OverlayEnabled() {
		t.Error("overlay disabled by default")
	}
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
backend:
  base_url: http://engine:8000
  timeout: 3s
  overlay: false
selectors:
  move_rows: ".row"
debounce:
  window: 120ms
sinks:
  - type: stdout
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.BaseURL != "http://engine:8000" || cfg.Backend.Timeout != 3*time.Second {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.OverlayEnabled() {
		t.Error("overlay: false ignored")
	}
	if cfg.Selectors.MoveRows != ".row" || cfg.Selectors.MoveList != "wc-simple-move-list" {
		t.Errorf("selectors = %+v", cfg.Selectors)
	}
	if cfg.Debounce.Window != 120*time.Millisecond {
		t.Errorf("window = %v", cfg.Debounce.Window)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "stdout" {
		t.Errorf("sinks = %+v", cfg.Sinks)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movewatch.yaml")
	if err := os.WriteFile(path, []byte("page:\n  url: https://example.test/game\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Page.URL != "https://example.test/game" {
		t.Errorf("url = %q", cfg.Page.URL)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
	if _, err := Parse([]byte("page: [")); err == nil {
		t.Error("bad yaml: expected error")
	}
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func TestSelectorSet_SaveLoad(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	v1 := &SelectorSet{Version: "2024-01", Selectors: extract.DefaultSelectors(), Active: true}
	if err := SaveSelectorSet(ctx, db, v1); err != nil {
		t.Fatal(err)
	}
	v2sel := extract.DefaultSelectors()
	v2sel.MoveList = "wc-move-list"
	v2 := &SelectorSet{Version: "2024-06", Selectors: v2sel, Anchors: AnchorConfig{Host: "#main"}, Active: true}
	if err := SaveSelectorSet(ctx, db, v2); err != nil {
		t.Fatal(err)
	}

	active, err := LoadSelectorSet(ctx, db, "")
	if err != nil {
		t.Fatal(err)
	}
	if active.Version != "2024-06" || active.Selectors.MoveList != "wc-move-list" {
		t.Errorf("active = %+v", active)
	}
	old, err := LoadSelectorSet(ctx, db, "2024-01")
	if err != nil {
		t.Fatal(err)
	}
	if old.Active {
		t.Error("older set still active")
	}

	cfg := Default()
	cfg.Apply(active)
	if cfg.Selectors.MoveList != "wc-move-list" || cfg.Anchors.Host != "#main" || cfg.Anchors.Board != "#board-layout-chessboard" {
		t.Errorf("applied config = %+v %+v", cfg.Selectors, cfg.Anchors)
	}
}

func TestSelectorSet_Missing(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if _, err := LoadSelectorSet(ctx, db, ""); !errors.Is(err, ErrNoSelectorSet) {
		t.Errorf("err = %v, want ErrNoSelectorSet", err)
	}
	if _, err := LoadSelectorSet(ctx, db, "nope"); !errors.Is(err, ErrNoSelectorSet) {
		t.Errorf("err = %v, want ErrNoSelectorSet", err)
	}
}

func TestSelectorSet_Validation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	bad := extract.DefaultSelectors()
	bad.WhiteMove = ""
	if err := SaveSelectorSet(ctx, db, &SelectorSet{Version: "v1", Selectors: bad}); err == nil {
		t.Error("empty selector accepted")
	}
	if err := SaveSelectorSet(ctx, db, &SelectorSet{Version: "v 1;", Selectors: extract.DefaultSelectors()}); err == nil {
		t.Error("bad version accepted")
	}
}

func TestLoadSelectorSetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v2.yaml")
	data := `version: v2
active: true
selectors:
  move_list: wc-move-list-v2
  move_rows: .row
  white_move: .w
  black_move: .b
anchors:
  board: "#board"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := LoadSelectorSetFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if set.Version != "v2" || !set.Active || set.Selectors.MoveList != "wc-move-list-v2" || set.Anchors.Board != "#board" {
		t.Errorf("set = %+v", set)
	}

	db := testDB(t)
	if err := SaveSelectorSet(context.Background(), db, set); err != nil {
		t.Fatal(err)
	}
	got, err := LoadSelectorSet(context.Background(), db, "")
	if err != nil || got.Selectors.WhiteMove != ".w" {
		t.Fatalf("stored set = %+v, %v", got, err)
	}

	if _, err := LoadSelectorSetFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestReloader_FiresOnChange(t *testing.T) {
	var version atomic.Int64
	r := NewReloader(nil, 5*time.Millisecond, -1, nil)
	r.version = func(context.Context, *sql.DB) (int64, error) { return version.Load(), nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fired := make(chan struct{}, 4)
	var fail atomic.Bool
	fail.Store(true)
	go r.Run(ctx, func(context.Context) error {
		fired <- struct{}{}
		if fail.Swap(false) {
			return errors.New("bad selectors")
		}
		return nil
	})

	time.Sleep(20 * time.Millisecond)
	version.Store(1)

	// First attempt fails and is retried on a later poll.
	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("reload %d not fired", i+1)
		}
	}
	select {
	case <-fired:
		t.Error("reload fired again without a change")
	case <-time.After(50 * time.Millisecond):
	}
}
