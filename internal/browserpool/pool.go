// File: internal/browserpool/pool.go
package browserpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lumen-cli/internal/config"
)

var (
	// ErrPoolExhausted signals that every browser is at its tab limit and no
	// new browser may launch. Callers may retry after releasing pages.
	ErrPoolExhausted = errors.New("browser pool exhausted: all browsers at maximum tab capacity")
	// ErrPoolClosed signals an Acquire after Close.
	ErrPoolClosed = errors.New("browser pool is closed")
	// ErrPoolNotStarted signals an Acquire before a successful Start.
	ErrPoolNotStarted = errors.New("browser pool not started")
)

// Page is the slice of the Playwright page surface the auditor uses. A
// *playwright.Page satisfies it; tests substitute fakes.
type Page interface {
	Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error)
	SetViewportSize(width, height int) error
	SetExtraHTTPHeaders(headers map[string]string) error
	Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error)
	Close(options ...playwright.PageCloseOptions) error
}

// Browser owns a set of pages inside one browser process.
type Browser interface {
	NewPage() (Page, error)
	Close() error
}

// Launcher abstracts the browser driver lifecycle so the pool can be tested
// without launching real processes.
type Launcher interface {
	Start(ctx context.Context) error
	Launch() (Browser, error)
	Stop() error
}

// browserEntry tracks one launched browser and its live pages. Entries keep
// insertion order so Acquire fills existing browsers before launching new
// ones.
type browserEntry struct {
	id      string
	browser Browser
	pages   map[Page]struct{}
}

// Pool hands out exclusive pages from a bounded set of browser processes.
// Capacity is MaxBrowsers x MaxTabsPerBrowser; excess demand is rejected with
// ErrPoolExhausted rather than queued.
type Pool struct {
	cfg      config.PoolConfig
	launcher Launcher
	logger   *zap.Logger

	startOnce sync.Once
	startErr  error

	mu      sync.Mutex
	entries []*browserEntry
	started bool
	closed  bool
}

// New creates a pool. No browser work happens until Start.
func New(cfg config.PoolConfig, launcher Launcher, logger *zap.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		launcher: launcher,
		logger:   logger.Named("browser_pool"),
	}
}

// Start brings up the browser driver. It is safe to call concurrently; only
// the first call does work and every caller observes its outcome.
func (p *Pool) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		if err := p.launcher.Start(ctx); err != nil {
			p.startErr = fmt.Errorf("failed to start browser driver: %w", err)
			return
		}
		p.mu.Lock()
		p.started = true
		p.mu.Unlock()
		p.logger.Info("Browser pool started.",
			zap.Int("max_browsers", p.cfg.MaxBrowsers),
			zap.Int("max_tabs_per_browser", p.cfg.MaxTabsPerBrowser))
	})
	return p.startErr
}

// Acquire returns an exclusive page. It fills existing browsers in launch
// order first, launches a new browser when all are full and the browser cap
// allows it, and fails with ErrPoolExhausted otherwise.
func (p *Pool) Acquire(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if !p.started {
		return nil, ErrPoolNotStarted
	}

	// First fit: reuse the oldest browser with spare tab capacity.
	for _, entry := range p.entries {
		if len(entry.pages) >= p.cfg.MaxTabsPerBrowser {
			continue
		}
		page, err := entry.browser.NewPage()
		if err != nil {
			return nil, fmt.Errorf("failed to open page in browser %s: %w", entry.id, err)
		}
		entry.pages[page] = struct{}{}
		p.logger.Debug("Acquired page from existing browser.",
			zap.String("browser_id", entry.id),
			zap.Int("open_pages", len(entry.pages)))
		return page, nil
	}

	if len(p.entries) >= p.cfg.MaxBrowsers {
		return nil, ErrPoolExhausted
	}

	browser, err := p.launcher.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	page, err := browser.NewPage()
	if err != nil {
		if closeErr := browser.Close(); closeErr != nil {
			p.logger.Warn("Failed to close browser after page error.", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to open page in new browser: %w", err)
	}

	entry := &browserEntry{
		id:      uuid.NewString(),
		browser: browser,
		pages:   map[Page]struct{}{page: {}},
	}
	p.entries = append(p.entries, entry)
	p.logger.Debug("Launched new browser.",
		zap.String("browser_id", entry.id),
		zap.Int("open_browsers", len(p.entries)))
	return page, nil
}

// Release closes the page and returns its slot to the pool. When the owning
// browser has no pages left it is closed too, freeing a browser slot. Close
// errors are logged, never propagated; releasing a page the pool does not
// know is a logged no-op.
func (p *Pool) Release(page Page) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, entry := range p.entries {
		if _, ok := entry.pages[page]; !ok {
			continue
		}
		if err := page.Close(); err != nil {
			p.logger.Warn("Failed to close released page.",
				zap.String("browser_id", entry.id), zap.Error(err))
		}
		delete(entry.pages, page)

		if len(entry.pages) == 0 {
			if err := entry.browser.Close(); err != nil {
				p.logger.Warn("Failed to close idle browser.",
					zap.String("browser_id", entry.id), zap.Error(err))
			}
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			p.logger.Debug("Reclaimed idle browser.", zap.String("browser_id", entry.id))
		}
		return
	}

	p.logger.Warn("Release of unknown page ignored.")
}

// Stats reports the current number of launched browsers and open pages.
func (p *Pool) Stats() (browsers, pages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range p.entries {
		pages += len(entry.pages)
	}
	return len(p.entries), pages
}

// Close tears down every page, browser, and the driver. Idempotent; resource
// close errors are logged and swallowed, only a driver stop failure is
// returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, entry := range p.entries {
		for page := range entry.pages {
			if err := page.Close(); err != nil {
				p.logger.Warn("Failed to close page during shutdown.",
					zap.String("browser_id", entry.id), zap.Error(err))
			}
		}
		if err := entry.browser.Close(); err != nil {
			p.logger.Warn("Failed to close browser during shutdown.",
				zap.String("browser_id", entry.id), zap.Error(err))
		}
	}
	p.entries = nil

	if !p.started {
		return nil
	}
	if err := p.launcher.Stop(); err != nil {
		return fmt.Errorf("failed to stop browser driver: %w", err)
	}
	p.logger.Info("Browser pool closed.")
	return nil
}
