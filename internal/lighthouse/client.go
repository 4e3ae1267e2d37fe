// File: internal/lighthouse/client.go
package lighthouse

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/lumen-cli/api/schemas"
	"github.com/xkilldash9x/lumen-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// commandRunner abstracts subprocess execution so audits are testable without
// Docker.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Client runs Lighthouse performance audits through a Docker image. Audit
// never fails its caller: anything that goes wrong degrades to metrics with
// Available=false.
type Client struct {
	cfg    config.LighthouseConfig
	logger *zap.Logger
	runner commandRunner
	// limiter throttles container launches across concurrent analyses.
	limiter *rate.Limiter

	runtime *runtimeManager
}

// NewClient creates an audit client using the real Docker CLI.
func NewClient(cfg config.LighthouseConfig, logger *zap.Logger) *Client {
	return newClient(cfg, logger, execRunner{}, runtime.GOOS)
}

func newClient(cfg config.LighthouseConfig, logger *zap.Logger, runner commandRunner, goos string) *Client {
	interval := cfg.LaunchInterval
	if interval <= 0 {
		interval = time.Second
	}
	log := logger.Named("lighthouse")
	return &Client{
		cfg:     cfg,
		logger:  log,
		runner:  runner,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		runtime: newRuntimeManager(cfg, log, runner, goos),
	}
}

// Audit runs a performance-only Lighthouse audit for the URL and normalizes
// its metrics.
func (c *Client) Audit(ctx context.Context, url string) schemas.LighthouseMetrics {
	unavailable := schemas.LighthouseMetrics{Available: false}

	if !c.cfg.Enabled {
		c.logger.Debug("Lighthouse disabled, skipping audit.", zap.String("url", url))
		return unavailable
	}
	if !c.runtime.ensureAvailable(ctx) {
		c.logger.Warn("Docker unavailable, skipping Lighthouse audit.", zap.String("url", url))
		return unavailable
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return unavailable
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.AuditTimeout)
	defer cancel()

	args := []string{
		"run", "--rm", c.cfg.Image,
		"lighthouse", url,
		"--only-categories=performance",
		"--output=json",
		"--quiet",
		"--chrome-flags=--headless --no-sandbox --disable-dev-shm-usage",
	}

	start := time.Now()
	stdout, stderr, err := c.runner.Run(runCtx, "docker", args...)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("Lighthouse audit timed out.",
				zap.String("url", url),
				zap.Duration("timeout", c.cfg.AuditTimeout))
		} else {
			c.logger.Warn("Lighthouse audit failed.",
				zap.String("url", url),
				zap.Error(err),
				zap.ByteString("stderr", truncateBytes(stderr, 500)))
		}
		return unavailable
	}

	report, raw, err := parseReport(stdout)
	if err != nil {
		c.logger.Warn("Could not parse Lighthouse output.", zap.String("url", url), zap.Error(err))
		return unavailable
	}

	metrics := normalize(report)
	metrics.Raw = raw
	c.logger.Info("Lighthouse audit complete.",
		zap.String("url", url),
		zap.Duration("duration", time.Since(start)))
	return metrics
}

// report is the slice of the Lighthouse result document the auditor reads.
type report struct {
	Categories struct {
		Performance struct {
			Score *float64 `json:"score"`
		} `json:"performance"`
	} `json:"categories"`
	Audits map[string]struct {
		NumericValue *float64 `json:"numericValue"`
	} `json:"audits"`
}

// parseReport decodes the audit output. The container sometimes prefixes the
// JSON document with log noise, so a failed parse retries from the first '{'.
func parseReport(output []byte) (report, []byte, error) {
	output = bytes.TrimSpace(output)

	var r report
	if err := json.Unmarshal(output, &r); err == nil {
		return r, append([]byte{}, output...), nil
	}

	idx := bytes.IndexByte(output, '{')
	if idx < 0 {
		return report{}, nil, errors.New("no JSON document in lighthouse output")
	}
	trimmed := output[idx:]
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return report{}, nil, err
	}
	return r, append([]byte{}, trimmed...), nil
}

// normalize converts raw Lighthouse values into reporting units: category
// score to 0-100, paint timings to seconds. Metrics missing from the report
// stay nil.
func normalize(r report) schemas.LighthouseMetrics {
	metrics := schemas.LighthouseMetrics{Available: true}

	if r.Categories.Performance.Score != nil {
		score := *r.Categories.Performance.Score * 100
		metrics.PerformanceScore = &score
	}
	if v := auditValue(r, "first-contentful-paint"); v != nil {
		fcp := *v / 1000
		metrics.FCPSeconds = &fcp
	}
	if v := auditValue(r, "largest-contentful-paint"); v != nil {
		lcp := *v / 1000
		metrics.LCPSeconds = &lcp
	}
	if v := auditValue(r, "cumulative-layout-shift"); v != nil {
		cls := *v
		metrics.CLSValue = &cls
	}
	if v := auditValue(r, "total-blocking-time"); v != nil {
		tbt := *v
		metrics.TBTMs = &tbt
	}
	return metrics
}

func auditValue(r report, key string) *float64 {
	audit, ok := r.Audits[key]
	if !ok {
		return nil
	}
	return audit.NumericValue
}

func truncateBytes(b []byte, max int) []byte {
	if len(b) <= max {
		return b
	}
	return b[:max]
}
