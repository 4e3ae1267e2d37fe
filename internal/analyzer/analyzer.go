// File: internal/analyzer/analyzer.go
package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lumen-cli/api/schemas"
	"github.com/xkilldash9x/lumen-cli/internal/config"
	"github.com/xkilldash9x/lumen-cli/internal/grading"
)

const maxSafeURLLen = 50

// Pipeline runs the full analysis for one URL: performance audit, desktop and
// mobile captures, vision grading, and screenshot persistence.
type Pipeline struct {
	cfg      *config.Config
	audit    schemas.AuditClient
	grader   schemas.Grader
	capturer *Capturer
	logger   *zap.Logger

	// now is swappable so tests control persisted filenames.
	now func() time.Time
}

// New wires a pipeline from its components.
func New(cfg *config.Config, pool PagePool, audit schemas.AuditClient, grader schemas.Grader, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		audit:    audit,
		grader:   grader,
		capturer: NewCapturer(pool, cfg.Capture, logger),
		logger:   logger.Named("analyzer"),
		now:      time.Now,
	}
}

// Analyze audits the URL end to end. Lighthouse and grading failures degrade;
// the only hard failure is an inaccessible site, and even that comes back as
// a result whose issues explain the problem, not as an error. An error is
// returned only when the pipeline itself cannot run (context cancelled before
// any capture).
func (p *Pipeline) Analyze(ctx context.Context, url string) (schemas.AnalysisResult, error) {
	if p.cfg.Analysis.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Analysis.Timeout)
		defer cancel()
	}

	p.logger.Info("Starting analysis.", zap.String("url", url))
	result := schemas.AnalysisResult{URL: url, Issues: []string{}}

	// Step 1: performance audit. Never fatal.
	result.Lighthouse = p.audit.Audit(ctx, url)

	dir := p.cfg.Capture.ScreenshotDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return result, fmt.Errorf("failed to create screenshot directory %s: %w", dir, err)
	}

	// Temp names carry a per-run token so concurrent analyses never collide.
	token := uuid.NewString()
	desktopTmp := filepath.Join(dir, fmt.Sprintf("temp_desktop_%s.png", token))
	mobileTmp := filepath.Join(dir, fmt.Sprintf("temp_mobile_%s.png", token))
	defer func() {
		if !p.cfg.Analysis.SaveScreenshots {
			p.cleanup(desktopTmp, mobileTmp)
		}
	}()

	// Step 2: desktop capture. Fatal on failure; mobile is never attempted.
	desktop := p.capturer.Capture(ctx, url, schemas.ProfileDesktop, desktopTmp)
	result.LoadTimeSeconds = desktop.LoadTime.Seconds()
	if !desktop.Success {
		result.Issues = grading.ParseIssues(p.accessExplanation(desktop))
		return result, nil
	}

	// Step 3: mobile capture. Failure falls back to the desktop image.
	mobile := p.capturer.Capture(ctx, url, schemas.ProfileMobile, mobileTmp)
	mobilePNG := mobile.PNG
	if !mobile.Success {
		p.logger.Warn("Mobile capture failed, reusing desktop screenshot.",
			zap.String("url", url), zap.String("reason", mobile.Message))
		mobilePNG = desktop.PNG
		if err := copyFile(desktopTmp, mobileTmp); err != nil {
			p.logger.Warn("Failed to copy desktop screenshot for mobile.", zap.Error(err))
		}
	}

	// Step 4: vision grading. Failure degrades to rule-based issues.
	verdict, err := p.grader.Grade(ctx, schemas.GradeRequest{
		URL:             url,
		DesktopPNG:      desktop.PNG,
		MobilePNG:       mobilePNG,
		LoadTimeSeconds: result.LoadTimeSeconds,
		Lighthouse:      result.Lighthouse,
	})
	if err != nil {
		p.logger.Error("Vision grading failed, using fallback rules.",
			zap.String("url", url), zap.Error(err))
		result.Issues = grading.FallbackIssues(result.LoadTimeSeconds, result.Lighthouse, p.cfg.Grading.Thresholds)
	} else {
		result.Issues = grading.ParseIssues(verdict)
	}

	// Step 5: persistence.
	if p.cfg.Analysis.SaveScreenshots {
		result.Screenshots = p.persist(desktopTmp, mobileTmp, url)
	}

	p.logger.Info("Analysis complete.",
		zap.String("url", url),
		zap.Float64("load_time_s", result.LoadTimeSeconds),
		zap.Int("issues", len(result.Issues)))
	return result, nil
}

// accessExplanation renders the user-facing text for a failed desktop
// capture.
func (p *Pipeline) accessExplanation(outcome CaptureOutcome) string {
	if outcome.ErrKind == CaptureErrorTimeout {
		return fmt.Sprintf(
			"🚫 WEBSITE ACCESS ISSUE\n\n"+
				"The website is not responding or taking too long to load (>%.0f seconds).\n\n"+
				"Possible reasons:\n"+
				"• Website may be down or not working\n"+
				"• Website may be blocked in your country/region\n"+
				"• Website may have very slow servers\n"+
				"• Network connectivity issues\n\n"+
				"Please try:\n"+
				"• Check if the website works in your browser\n"+
				"• Try again later\n"+
				"• Use a VPN if the website might be geo-blocked",
			p.cfg.Capture.NavigationTimeout.Seconds())
	}
	return fmt.Sprintf(
		"🚫 WEBSITE ACCESS ERROR\n\n"+
			"Unable to access the website for analysis.\n\n"+
			"Possible reasons:\n"+
			"• Website does not exist or URL is incorrect\n"+
			"• Website requires special authentication\n"+
			"• Website blocks automated tools\n"+
			"• SSL/HTTPS certificate issues\n\n"+
			"Technical error: %s...\n\n"+
			"Please verify the URL is correct and the website is accessible.",
		outcome.Message)
}

// persist renames the temp screenshots to their permanent, URL-derived names.
// On any failure it logs, removes the temp files, and reports no paths.
func (p *Pipeline) persist(desktopTmp, mobileTmp, url string) schemas.ScreenshotPaths {
	safe := sanitizeURL(url)
	timestamp := p.now().Format("20060102_1504")
	dir := filepath.Dir(desktopTmp)

	desktopFinal := filepath.Join(dir, fmt.Sprintf("desktop_%s_%s.png", safe, timestamp))
	mobileFinal := filepath.Join(dir, fmt.Sprintf("mobile_%s_%s.png", safe, timestamp))

	if err := os.Rename(desktopTmp, desktopFinal); err != nil {
		p.logger.Warn("Failed to save desktop screenshot.", zap.Error(err))
		p.cleanup(desktopTmp, mobileTmp)
		return schemas.ScreenshotPaths{}
	}
	if err := os.Rename(mobileTmp, mobileFinal); err != nil {
		p.logger.Warn("Failed to save mobile screenshot.", zap.Error(err))
		p.cleanup(desktopFinal, mobileTmp)
		return schemas.ScreenshotPaths{Desktop: ""}
	}

	p.logger.Info("Screenshots saved.",
		zap.String("desktop", desktopFinal),
		zap.String("mobile", mobileFinal))
	return schemas.ScreenshotPaths{Desktop: desktopFinal, Mobile: mobileFinal}
}

// cleanup removes temp screenshots, ignoring files that were never written.
func (p *Pipeline) cleanup(paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("Failed to remove temporary screenshot.",
				zap.String("path", path), zap.Error(err))
		}
	}
}

// sanitizeURL derives a filesystem-safe name from a URL: scheme stripped,
// path separators and query markers replaced, capped in length.
func sanitizeURL(url string) string {
	safe := strings.TrimPrefix(url, "https://")
	safe = strings.TrimPrefix(safe, "http://")
	safe = strings.ReplaceAll(safe, "/", "_")
	safe = strings.ReplaceAll(safe, "?", "_")
	if len(safe) > maxSafeURLLen {
		safe = safe[:maxSafeURLLen]
	}
	return safe
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
