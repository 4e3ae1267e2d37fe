// File: internal/browserpool/playwright.go
package browserpool

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lumen-cli/internal/config"
)

const installTimeout = 5 * time.Minute

// stabilityArgs are always passed to Chromium. Containers without these flags
// hit sandbox and shared memory failures.
var stabilityArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
}

// playwrightLauncher is the production Launcher backed by the Playwright
// driver.
type playwrightLauncher struct {
	cfg    config.PoolConfig
	logger *zap.Logger
	pw     *playwright.Playwright
}

// NewPlaywrightLauncher returns a Launcher that drives real Chromium
// processes through Playwright.
func NewPlaywrightLauncher(cfg config.PoolConfig, logger *zap.Logger) Launcher {
	return &playwrightLauncher{
		cfg:    cfg,
		logger: logger.Named("playwright"),
	}
}

// Start installs the Chromium runtime if missing and boots the driver.
func (l *playwrightLauncher) Start(ctx context.Context) error {
	if err := l.ensureInstallation(ctx); err != nil {
		return err
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright driver: %w", err)
	}
	l.pw = pw
	return nil
}

// ensureInstallation downloads the Chromium build Playwright needs. Install
// blocks, so it runs in a goroutine under a hard timeout.
func (l *playwrightLauncher) ensureInstallation(ctx context.Context) error {
	l.logger.Debug("Verifying Playwright browser installation.")
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- playwright.Install(&playwright.RunOptions{
			Browsers: []string{"chromium"},
		})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to install playwright browsers: %w", err)
		}
		return nil
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for playwright installation: %w", installCtx.Err())
	}
}

func (l *playwrightLauncher) Launch() (Browser, error) {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.cfg.Headless),
		Args:     append(append([]string{}, stabilityArgs...), l.cfg.LaunchArgs...),
	}
	if l.cfg.LaunchTimeout > 0 {
		opts.Timeout = playwright.Float(float64(l.cfg.LaunchTimeout.Milliseconds()))
	}

	browser, err := l.pw.Chromium.Launch(opts)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("Chromium launched.", zap.String("version", browser.Version()))
	return &playwrightBrowser{browser: browser}, nil
}

func (l *playwrightLauncher) Stop() error {
	if l.pw == nil {
		return nil
	}
	return l.pw.Stop()
}

// playwrightBrowser adapts playwright.Browser to the pool's Browser
// interface.
type playwrightBrowser struct {
	browser playwright.Browser
}

func (b *playwrightBrowser) NewPage() (Page, error) {
	page, err := b.browser.NewPage()
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (b *playwrightBrowser) Close() error {
	return b.browser.Close()
}
