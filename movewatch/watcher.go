// Package movewatch watches the move list of a live chess game page and
// reports every change of the move sequence to an analysis backend.
//
// A Watcher drives one Chrome tab. It keeps a subtree watcher bound to
// whatever move-list element the page currently renders, suppresses
// notifications that do not change the sequence, and dispatches the full
// sequence when it does. An engine panel is mounted next to the board and
// fed with the backend's analysis stream.
package movewatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/movewatch/dbopen"
	"github.com/hazyhaar/movewatch/idgen"
	"github.com/hazyhaar/movewatch/movewatch/internal/admin"
	"github.com/hazyhaar/movewatch/movewatch/internal/attach"
	"github.com/hazyhaar/movewatch/movewatch/internal/browser"
	"github.com/hazyhaar/movewatch/movewatch/internal/config"
	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
	"github.com/hazyhaar/movewatch/movewatch/internal/engine"
	"github.com/hazyhaar/movewatch/movewatch/internal/extract"
	"github.com/hazyhaar/movewatch/movewatch/internal/gate"
	"github.com/hazyhaar/movewatch/movewatch/internal/loop"
	"github.com/hazyhaar/movewatch/movewatch/internal/metrics"
	"github.com/hazyhaar/movewatch/movewatch/internal/observer"
	"github.com/hazyhaar/movewatch/movewatch/internal/overlay"
	"github.com/hazyhaar/movewatch/movewatch/internal/sink"
	"github.com/hazyhaar/movewatch/movewatch/internal/stream"
	"github.com/hazyhaar/movewatch/movewatch/internal/subtree"
	"github.com/hazyhaar/movewatch/movewatch/moves"

	_ "modernc.org/sqlite"
)

// Version is reported by the MCP server.
const Version = "0.3.0"

// ErrNoJournal is returned by History when no journal is configured.
var ErrNoJournal = admin.ErrNoHistory

// Page is what a Watcher needs from the game page: anchor queries, the
// mutation feed, and the surface the engine panel is drawn on.
type Page interface {
	dom.Document
	dom.Feed
	overlay.Surface
}

// Watcher is the top-level orchestrator.
type Watcher struct {
	cfg        *Config
	pageID     string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	loop       *loop.Loop
	gate       *gate.Gate
	router     *sink.Router
	dispatcher *sink.Dispatcher
	engine     *engine.Client
	stream     *stream.Client

	journalDB  *sql.DB
	journal    *sink.Journal
	selectorDB *sql.DB

	mu              sync.Mutex
	runCtx          context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	started         time.Time
	extractor       *extract.Extractor
	selectorVersion string
	attached        *binding

	mgr *browser.Manager
	tab *browser.Tab
	obs *observer.Observer
}

// binding is the set of components bound to one page.
type binding struct {
	page  Page
	sub   *subtree.Watcher
	ctl   *attach.Controller
	panel *overlay.Panel
}

// New creates a Watcher from configuration. The backend sink is always
// installed; sinks are added to it.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) (*Watcher, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ex, err := extract.New(cfg.Selectors)
	if err != nil {
		return nil, fmt.Errorf("movewatch: selectors: %w", err)
	}

	pageID := cfg.Page.ID
	if pageID == "" {
		pageID = idgen.Prefixed("page_", idgen.Default)()
	}
	m := metrics.New()

	router := sink.NewRouter(logger, sinks...)
	router.Add(sink.NewBackend(cfg.Backend.BaseURL,
		sink.WithBackendTimeout(cfg.Backend.Timeout),
		sink.WithBackendLogger(logger)))
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			router.Add(sink.NewStdout(os.Stdout))
		case "backend":
			router.Add(sink.NewBackend(sc.URL, sink.WithBackendTimeout(cfg.Backend.Timeout), sink.WithBackendLogger(logger)))
		default:
			return nil, fmt.Errorf("movewatch: unknown sink type %q", sc.Type)
		}
	}

	return &Watcher{
		cfg:     cfg,
		pageID:  pageID,
		logger:  logger,
		metrics: m,
		loop:    loop.New(256, logger),
		gate:    gate.New(),
		router:  router,
		dispatcher: sink.NewDispatcher(router,
			sink.WithPageID(pageID),
			sink.WithQueue(cfg.Dispatch.Queue),
			sink.WithMetrics(m),
			sink.WithDispatchLogger(logger)),
		engine: engine.NewClient(cfg.Backend.BaseURL,
			engine.WithTimeout(cfg.Backend.Timeout),
			engine.WithLogger(logger)),
		stream:    stream.New(cfg.Backend.StreamURL, stream.WithLogger(logger)),
		extractor: ex,
	}, nil
}

// Start launches the browser, opens the game page and attaches to it.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.startServices(ctx); err != nil {
		return err
	}
	mode, err := browser.ParseMode(w.cfg.Browser.Stealth)
	if err != nil {
		return err
	}
	w.mgr = browser.NewManager(browser.Config{
		RemoteURL:        w.cfg.Browser.Remote,
		MemoryLimit:      w.cfg.Browser.MemoryLimit,
		RecycleInterval:  w.cfg.Browser.RecycleInterval,
		ResourceBlocking: w.cfg.Browser.ResourceBlocking,
		Mode:             mode,
		XvfbDisplay:      w.cfg.Browser.XvfbDisplay,
		Logger:           w.logger,
	})
	w.mgr.SetHooks(browser.Hooks{
		Before: w.beforeRecycle,
		After:  func(ctx context.Context, _ *rod.Browser) { w.afterRecycle(ctx) },
	})
	if _, err := w.mgr.Start(w.runCtx); err != nil {
		return fmt.Errorf("movewatch: start browser: %w", err)
	}
	return w.openPage(w.runCtx)
}

// StartPage runs the watcher against a page the caller provides instead
// of a browser tab.
func (w *Watcher) StartPage(ctx context.Context, p Page) error {
	if err := w.startServices(ctx); err != nil {
		return err
	}
	return w.Attach(ctx, p)
}

func (w *Watcher) startServices(ctx context.Context) error {
	w.mu.Lock()
	if !w.started.IsZero() {
		w.mu.Unlock()
		return errors.New("movewatch: already started")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	w.runCtx, w.cancel = runCtx, cancel
	w.started = time.Now()
	w.mu.Unlock()

	if err := w.openStores(ctx); err != nil {
		cancel()
		w.closeStores()
		w.mu.Lock()
		w.started, w.cancel = time.Time{}, nil
		w.mu.Unlock()
		return err
	}
	w.goRun(func() { w.loop.Run(runCtx) })
	w.goRun(func() { w.dispatcher.Run(runCtx) })

	w.stream.OnMessage(w.onStream)
	if err := w.stream.Connect(runCtx); err != nil {
		// The client keeps reconnecting; the panel stays on its initial texts.
		w.logger.Warn("movewatch: engine stream unavailable", "url", w.cfg.Backend.StreamURL, "error", err)
	}

	if w.selectorDB != nil {
		r := config.NewReloader(w.selectorDB, time.Second, 0, w.logger)
		w.goRun(func() { r.Run(runCtx, w.reloadSelectors) })
	}
	if w.cfg.Admin.Addr != "" {
		h := w.AdminHandler()
		w.goRun(func() {
			if err := admin.Serve(runCtx, w.cfg.Admin.Addr, h, w.logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
				w.logger.Error("movewatch: admin server", "error", err)
			}
		})
	}
	w.logger.Info("movewatch: started", "page_id", w.pageID, "backend", w.cfg.Backend.BaseURL)
	return nil
}

func (w *Watcher) goRun(fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// openStores opens the journal and the selector database, and applies the
// selected selector set.
func (w *Watcher) openStores(ctx context.Context) error {
	if path := w.cfg.Journal.Path; path != "" {
		db, err := dbopen.Open(path, dbopen.WithMkdirAll())
		if err != nil {
			return fmt.Errorf("movewatch: open journal: %w", err)
		}
		j, err := sink.NewJournal(ctx, db)
		if err != nil {
			db.Close()
			return err
		}
		w.mu.Lock()
		w.journalDB, w.journal = db, j
		w.mu.Unlock()
	}

	if path := w.cfg.SelectorDB; path != "" {
		db, err := config.OpenSelectorDB(path)
		if err != nil {
			return fmt.Errorf("movewatch: open selector db: %w", err)
		}
		w.selectorDB = db
		set, err := config.LoadSelectorSet(ctx, db, w.cfg.SelectorVersion)
		switch {
		case errors.Is(err, config.ErrNoSelectorSet):
			w.logger.Info("movewatch: no selector set stored, using configured selectors")
		case err != nil:
			return err
		default:
			if err := w.applySelectorSet(set); err != nil {
				return err
			}
		}
	}
	if w.journal != nil {
		w.router.Add(w.journal)
	}
	return nil
}

func (w *Watcher) applySelectorSet(set *config.SelectorSet) error {
	ex, err := extract.New(set.Selectors)
	if err != nil {
		return fmt.Errorf("movewatch: selector set %s: %w", set.Version, err)
	}
	w.mu.Lock()
	w.cfg.Apply(set)
	w.extractor = ex
	w.selectorVersion = set.Version
	w.mu.Unlock()
	w.logger.Info("movewatch: selector set applied", "version", set.Version)
	return nil
}

// reloadSelectors re-reads the selector set and rebinds the attached page
// to it.
func (w *Watcher) reloadSelectors(ctx context.Context) error {
	set, err := config.LoadSelectorSet(ctx, w.selectorDB, w.cfg.SelectorVersion)
	if err != nil {
		return err
	}
	if err := w.applySelectorSet(set); err != nil {
		return err
	}

	w.mu.Lock()
	b, ex := w.attached, w.extractor
	board, host := w.cfg.Anchors.Board, w.cfg.Anchors.Host
	w.mu.Unlock()
	if b == nil {
		return nil
	}
	var rerr error
	err = w.loop.Call(ctx, func() {
		b.sub.SetExtractor(ex)
		if b.panel != nil {
			if rerr = b.panel.SetHost(host); rerr != nil {
				return
			}
		}
		rerr = b.ctl.Reconfigure(w.runCtx, ex.Selectors().MoveList, board)
	})
	if err != nil {
		return err
	}
	return rerr
}

// Attach binds the watcher to p and runs the initial check. A previously
// attached page is detached first. The change baseline is kept across
// pages, so reattaching to an unchanged game dispatches nothing.
func (w *Watcher) Attach(ctx context.Context, p Page) error {
	w.Detach(ctx)

	w.mu.Lock()
	ex, runCtx := w.extractor, w.runCtx
	board, host := w.cfg.Anchors.Board, w.cfg.Anchors.Host
	w.mu.Unlock()
	if runCtx == nil {
		return errors.New("movewatch: not started")
	}

	b := &binding{page: p}
	b.sub = subtree.New(subtree.Config{
		Feed:       p,
		Extractor:  ex,
		Dispatcher: w.dispatcher,
		Gate:       w.gate,
		Post:       w.loop.Enqueue,
		Metrics:    w.metrics,
		Logger:     w.logger,
	})
	actl := attach.Config{
		Document:      p,
		Feed:          p,
		Watcher:       b.sub,
		MoveList:      ex.Selectors().MoveList,
		OverlayAnchor: board,
		Post:          w.loop.Enqueue,
		Logger:        w.logger,
	}
	if w.cfg.OverlayEnabled() {
		panel, err := overlay.New(overlay.Config{
			Surface: p,
			Engine:  w.engine,
			Host:    host,
			Timeout: w.cfg.Backend.Timeout,
			Metrics: w.metrics,
			Logger:  w.logger,
		})
		if err != nil {
			return err
		}
		b.panel = panel
		actl.Overlay = panel
	}
	ctl, err := attach.New(actl)
	if err != nil {
		return err
	}
	b.ctl = ctl

	var startErr error
	if err := w.loop.Call(ctx, func() { startErr = ctl.Start(runCtx) }); err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}
	w.mu.Lock()
	w.attached = b
	w.mu.Unlock()
	return nil
}

// Detach stops observing the attached page, if any.
func (w *Watcher) Detach(ctx context.Context) {
	w.mu.Lock()
	b := w.attached
	w.attached = nil
	w.mu.Unlock()
	if b == nil {
		return
	}
	if err := w.loop.Call(ctx, b.ctl.Stop); err != nil {
		w.logger.Warn("movewatch: detach", "error", err)
	}
}

// Sync waits until every notification queued so far has been handled.
func (w *Watcher) Sync(ctx context.Context) error {
	return w.loop.Call(ctx, func() {})
}

func (w *Watcher) onStream(msg stream.Message) {
	w.mu.Lock()
	b := w.attached
	w.mu.Unlock()
	if b == nil || b.panel == nil {
		return
	}
	b.panel.HandleStream(msg)
}

func (w *Watcher) openPage(ctx context.Context) error {
	tab, err := w.mgr.OpenTab(ctx, w.cfg.Page.URL)
	if err != nil {
		return fmt.Errorf("movewatch: open tab: %w", err)
	}
	obs := observer.New(observer.Config{
		Page:           tab.Page,
		DebounceWindow: w.cfg.Debounce.Window,
		Logger:         w.logger,
	})
	if err := obs.Start(ctx); err != nil {
		tab.Close()
		return fmt.Errorf("movewatch: start observer: %w", err)
	}
	w.mu.Lock()
	w.tab, w.obs = tab, obs
	w.mu.Unlock()
	return w.Attach(ctx, obs)
}

func (w *Watcher) closePage() {
	w.mu.Lock()
	tab, obs := w.tab, w.obs
	w.tab, w.obs = nil, nil
	w.mu.Unlock()
	if obs != nil {
		obs.Stop()
	}
	if tab != nil {
		tab.Close()
	}
}

func (w *Watcher) beforeRecycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.Detach(ctx)
	w.closePage()
}

func (w *Watcher) afterRecycle(ctx context.Context) {
	if err := w.openPage(ctx); err != nil {
		w.logger.Error("movewatch: reopen page after recycle", "error", err)
	}
}

// Stop detaches, drains the dispatch queue and releases every resource.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	w.Detach(ctx)
	if err := w.stream.Close(ctx); err != nil {
		w.logger.Warn("movewatch: close stream", "error", err)
	}
	w.closePage()
	if w.mgr != nil {
		w.mgr.Close()
	}

	w.dispatcher.Close()
	select {
	case <-w.dispatcher.Done():
	case <-ctx.Done():
		w.logger.Warn("movewatch: dispatch queue not drained")
	}
	cancel()
	w.wg.Wait()

	w.router.Close()
	w.closeStores()
	w.logger.Info("movewatch: stopped")
}

func (w *Watcher) closeStores() {
	w.mu.Lock()
	jdb, sdb := w.journalDB, w.selectorDB
	w.journalDB, w.journal, w.selectorDB = nil, nil, nil
	w.mu.Unlock()
	if jdb != nil {
		jdb.Close()
	}
	if sdb != nil {
		sdb.Close()
	}
}

// AdminHandler returns the admin HTTP surface.
func (w *Watcher) AdminHandler() http.Handler {
	srv := mcp.NewServer(&mcp.Implementation{Name: "movewatch", Version: Version}, nil)
	w.RegisterMCP(srv)
	return admin.Handler(admin.Config{
		Source:  adminSource{w},
		Metrics: w.metrics.Handler(),
		MCP:     srv,
		Logger:  w.logger,
	})
}

type adminSource struct{ w *Watcher }

func (a adminSource) Snapshot(ctx context.Context) (any, error) { return a.w.State(ctx) }

func (a adminSource) History(ctx context.Context, limit int) ([]moves.Update, error) {
	return a.w.History(ctx, limit)
}
