// File: internal/analyzer/capture.go
package analyzer

import (
	"context"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lumen-cli/api/schemas"
	"github.com/xkilldash9x/lumen-cli/internal/browserpool"
	"github.com/xkilldash9x/lumen-cli/internal/config"
)

// PagePool is the pool surface the capturer needs. *browserpool.Pool
// satisfies it.
type PagePool interface {
	Acquire(ctx context.Context) (browserpool.Page, error)
	Release(page browserpool.Page)
}

// CaptureErrorKind classifies why a capture failed, which decides the
// explanation shown to the user.
type CaptureErrorKind int

const (
	CaptureErrorNone CaptureErrorKind = iota
	// CaptureErrorTimeout means navigation exceeded its deadline: the site
	// is slow, down, or unreachable from here.
	CaptureErrorTimeout
	// CaptureErrorAccess covers everything else: DNS failures, TLS errors,
	// bot blocks, bad URLs.
	CaptureErrorAccess
)

// maxErrorRunes bounds the raw driver error included in user-facing output.
const maxErrorRunes = 100

// CaptureOutcome is the result of one page capture attempt.
type CaptureOutcome struct {
	Success  bool
	LoadTime time.Duration
	// PNG holds the full-page screenshot bytes on success.
	PNG []byte
	// ImagePath is where the screenshot was written on success.
	ImagePath string
	ErrKind   CaptureErrorKind
	Message   string
}

// Capturer takes full-page screenshots through pooled browser pages, one
// exclusive page per capture.
type Capturer struct {
	pool   PagePool
	cfg    config.CaptureConfig
	logger *zap.Logger
}

// NewCapturer creates a screenshot capturer on top of the given pool.
func NewCapturer(pool PagePool, cfg config.CaptureConfig, logger *zap.Logger) *Capturer {
	return &Capturer{
		pool:   pool,
		cfg:    cfg,
		logger: logger.Named("capturer"),
	}
}

// Capture navigates to the URL under the configured viewport for the profile,
// waits for the network to go idle, and writes a full-page screenshot to
// path. The page is always returned to the pool.
func (c *Capturer) Capture(ctx context.Context, url string, profile schemas.DeviceProfile, path string) CaptureOutcome {
	page, err := c.pool.Acquire(ctx)
	if err != nil {
		return c.failure(url, profile, 0, err)
	}
	defer c.pool.Release(page)

	viewport := c.cfg.DesktopViewport
	if profile == schemas.ProfileMobile {
		viewport = c.cfg.MobileViewport
	}
	if err := page.SetViewportSize(viewport.Width, viewport.Height); err != nil {
		return c.failure(url, profile, 0, err)
	}
	if profile == schemas.ProfileMobile {
		headers := map[string]string{"User-Agent": c.cfg.MobileUserAgent}
		if err := page.SetExtraHTTPHeaders(headers); err != nil {
			return c.failure(url, profile, 0, err)
		}
	}

	start := time.Now()
	_, err = page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(c.cfg.NavigationTimeout.Milliseconds())),
	})
	loadTime := time.Since(start)
	if err != nil {
		return c.failure(url, profile, loadTime, err)
	}

	png, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Path:     playwright.String(path),
	})
	if err != nil {
		return c.failure(url, profile, loadTime, err)
	}

	c.logger.Debug("Capture complete.",
		zap.String("url", url),
		zap.String("profile", string(profile)),
		zap.Duration("load_time", loadTime))

	return CaptureOutcome{
		Success:   true,
		LoadTime:  loadTime,
		PNG:       png,
		ImagePath: path,
	}
}

func (c *Capturer) failure(url string, profile schemas.DeviceProfile, loadTime time.Duration, err error) CaptureOutcome {
	kind, message := classifyCaptureError(err)
	c.logger.Warn("Capture failed.",
		zap.String("url", url),
		zap.String("profile", string(profile)),
		zap.Error(err))
	return CaptureOutcome{
		LoadTime: loadTime,
		ErrKind:  kind,
		Message:  message,
	}
}

// classifyCaptureError maps a driver error onto the two user-facing failure
// classes. Anything mentioning a timeout counts as one; other messages are
// truncated for display.
func classifyCaptureError(err error) (CaptureErrorKind, string) {
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "timeout") {
		return CaptureErrorTimeout, msg
	}
	return CaptureErrorAccess, truncateRunes(msg, maxErrorRunes)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
