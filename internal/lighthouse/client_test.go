// File: internal/lighthouse/client_test.go
package lighthouse

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/lumen-cli/internal/config"
)

const sampleReport = `{
	"categories": {"performance": {"score": 0.92}},
	"audits": {
		"first-contentful-paint": {"numericValue": 1234.5},
		"largest-contentful-paint": {"numericValue": 2500.0},
		"cumulative-layout-shift": {"numericValue": 0.01},
		"total-blocking-time": {"numericValue": 150.0}
	}
}`

// fakeRunner records commands and dispatches canned responses.
type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	handler func(name string, args []string) (stdout, stderr []byte, err error)
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return r.handler(name, args)
}

func (r *fakeRunner) commandCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, call := range r.calls {
		if call[0] == name {
			count++
		}
	}
	return count
}

func testConfig() config.LighthouseConfig {
	return config.LighthouseConfig{
		Enabled:         true,
		Image:           "femtopixel/google-lighthouse",
		AuditTimeout:    time.Minute,
		ProbeTimeout:    time.Second,
		AutoStartDocker: false,
		LaunchInterval:  time.Millisecond,
	}
}

func newTestClient(t *testing.T, cfg config.LighthouseConfig, runner *fakeRunner, goos string) *Client {
	t.Helper()
	c := newClient(cfg, zaptest.NewLogger(t), runner, goos)
	c.runtime.pollInterval = time.Millisecond
	c.runtime.settleDelay = time.Millisecond
	return c
}

// dockerUp answers `docker info` successfully and delegates `docker run`.
func dockerUp(run func(args []string) ([]byte, []byte, error)) func(string, []string) ([]byte, []byte, error) {
	return func(name string, args []string) ([]byte, []byte, error) {
		if name == "docker" && len(args) > 0 && args[0] == "info" {
			return []byte("Server Version: 27.0"), nil, nil
		}
		if name == "docker" && len(args) > 0 && args[0] == "run" {
			return run(args)
		}
		return nil, nil, errors.New("unexpected command: " + name)
	}
}

func TestAuditSuccess(t *testing.T) {
	runner := &fakeRunner{handler: dockerUp(func(args []string) ([]byte, []byte, error) {
		return []byte(sampleReport), nil, nil
	})}
	client := newTestClient(t, testConfig(), runner, "linux")

	metrics := client.Audit(context.Background(), "https://example.com")

	require.True(t, metrics.Available)
	require.NotNil(t, metrics.PerformanceScore)
	assert.InDelta(t, 92.0, *metrics.PerformanceScore, 0.001)
	require.NotNil(t, metrics.FCPSeconds)
	assert.InDelta(t, 1.2345, *metrics.FCPSeconds, 0.0001)
	require.NotNil(t, metrics.LCPSeconds)
	assert.InDelta(t, 2.5, *metrics.LCPSeconds, 0.0001)
	require.NotNil(t, metrics.CLSValue)
	assert.InDelta(t, 0.01, *metrics.CLSValue, 0.0001)
	require.NotNil(t, metrics.TBTMs)
	assert.InDelta(t, 150.0, *metrics.TBTMs, 0.0001)
	assert.NotEmpty(t, metrics.Raw)
}

func TestAuditCommandLine(t *testing.T) {
	runner := &fakeRunner{handler: dockerUp(func(args []string) ([]byte, []byte, error) {
		return []byte(sampleReport), nil, nil
	})}
	client := newTestClient(t, testConfig(), runner, "linux")

	client.Audit(context.Background(), "https://example.com")

	runner.mu.Lock()
	defer runner.mu.Unlock()
	var runCall []string
	for _, call := range runner.calls {
		if call[0] == "docker" && call[1] == "run" {
			runCall = call
		}
	}
	require.NotNil(t, runCall)
	joined := strings.Join(runCall, " ")
	assert.Contains(t, joined, "run --rm femtopixel/google-lighthouse lighthouse https://example.com")
	assert.Contains(t, joined, "--only-categories=performance")
	assert.Contains(t, joined, "--output=json")
	assert.Contains(t, joined, "--quiet")
	assert.Contains(t, joined, "--chrome-flags=--headless --no-sandbox --disable-dev-shm-usage")
}

func TestAuditToleratesLogNoiseBeforeJSON(t *testing.T) {
	output := "ChromeLauncher Waiting for browser...\nPrinting to stdout\n" + sampleReport
	runner := &fakeRunner{handler: dockerUp(func(args []string) ([]byte, []byte, error) {
		return []byte(output), nil, nil
	})}
	client := newTestClient(t, testConfig(), runner, "linux")

	metrics := client.Audit(context.Background(), "https://example.com")
	require.True(t, metrics.Available)
	require.NotNil(t, metrics.PerformanceScore)
}

func TestAuditDegradesOnUnparseableOutput(t *testing.T) {
	runner := &fakeRunner{handler: dockerUp(func(args []string) ([]byte, []byte, error) {
		return []byte("lighthouse exploded, no json here"), nil, nil
	})}
	client := newTestClient(t, testConfig(), runner, "linux")

	metrics := client.Audit(context.Background(), "https://example.com")
	assert.False(t, metrics.Available)
	assert.Nil(t, metrics.PerformanceScore)
}

func TestAuditDegradesOnCommandFailure(t *testing.T) {
	runner := &fakeRunner{handler: dockerUp(func(args []string) ([]byte, []byte, error) {
		return nil, []byte("docker: image pull failed"), errors.New("exit status 1")
	})}
	client := newTestClient(t, testConfig(), runner, "linux")

	metrics := client.Audit(context.Background(), "https://example.com")
	assert.False(t, metrics.Available)
}

func TestAuditDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	runner := &fakeRunner{handler: func(string, []string) ([]byte, []byte, error) {
		return nil, nil, errors.New("should not run anything")
	}}
	client := newTestClient(t, cfg, runner, "linux")

	metrics := client.Audit(context.Background(), "https://example.com")
	assert.False(t, metrics.Available)
	assert.Zero(t, runner.commandCount("docker"))
}

func TestAuditSkipsWhenDockerDownAndAutoStartDisabled(t *testing.T) {
	runner := &fakeRunner{handler: func(name string, args []string) ([]byte, []byte, error) {
		return nil, nil, errors.New("Cannot connect to the Docker daemon")
	}}
	client := newTestClient(t, testConfig(), runner, "linux")

	metrics := client.Audit(context.Background(), "https://example.com")
	assert.False(t, metrics.Available)
	assert.Equal(t, 1, runner.commandCount("docker"), "only the probe should run")
}

func TestAutoStartDarwin(t *testing.T) {
	var opened bool
	var mu sync.Mutex
	runner := &fakeRunner{handler: func(name string, args []string) ([]byte, []byte, error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case name == "open":
			opened = true
			return nil, nil, nil
		case name == "docker" && args[0] == "info":
			if opened {
				return []byte("ok"), nil, nil
			}
			return nil, nil, errors.New("daemon not running")
		case name == "docker" && args[0] == "run":
			return []byte(sampleReport), nil, nil
		}
		return nil, nil, errors.New("unexpected command")
	}}

	cfg := testConfig()
	cfg.AutoStartDocker = true
	client := newTestClient(t, cfg, runner, "darwin")

	metrics := client.Audit(context.Background(), "https://example.com")
	assert.True(t, metrics.Available)
	assert.True(t, opened, "Docker Desktop should have been opened")
}

func TestAutoStartLinuxFallsBackToService(t *testing.T) {
	var started bool
	var mu sync.Mutex
	runner := &fakeRunner{handler: func(name string, args []string) ([]byte, []byte, error) {
		mu.Lock()
		defer mu.Unlock()
		cmd := append([]string{name}, args...)
		joined := strings.Join(cmd, " ")
		switch {
		case strings.HasSuffix(joined, "systemctl start docker"):
			return nil, nil, errors.New("systemctl not found")
		case strings.HasSuffix(joined, "service docker start"):
			started = true
			return nil, nil, nil
		case name == "docker" && args[0] == "info":
			if started {
				return []byte("ok"), nil, nil
			}
			return nil, nil, errors.New("daemon not running")
		case name == "docker" && args[0] == "run":
			return []byte(sampleReport), nil, nil
		}
		return nil, nil, errors.New("unexpected command: " + joined)
	}}

	cfg := testConfig()
	cfg.AutoStartDocker = true
	client := newTestClient(t, cfg, runner, "linux")

	metrics := client.Audit(context.Background(), "https://example.com")
	assert.True(t, metrics.Available)
	assert.True(t, started)
}

func TestAutoStartUnsupportedPlatform(t *testing.T) {
	runner := &fakeRunner{handler: func(name string, args []string) ([]byte, []byte, error) {
		return nil, nil, errors.New("daemon not running")
	}}
	cfg := testConfig()
	cfg.AutoStartDocker = true
	client := newTestClient(t, cfg, runner, "windows")

	metrics := client.Audit(context.Background(), "https://example.com")
	assert.False(t, metrics.Available)
}

func TestNormalizeKeepsMissingMetricsNil(t *testing.T) {
	t.Parallel()
	r, _, err := parseReport([]byte(`{"categories": {"performance": {"score": 0.5}}, "audits": {}}`))
	require.NoError(t, err)

	metrics := normalize(r)
	assert.True(t, metrics.Available)
	require.NotNil(t, metrics.PerformanceScore)
	assert.InDelta(t, 50.0, *metrics.PerformanceScore, 0.001)
	assert.Nil(t, metrics.FCPSeconds)
	assert.Nil(t, metrics.LCPSeconds)
	assert.Nil(t, metrics.CLSValue)
	assert.Nil(t, metrics.TBTMs)
}

func TestParseReportRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, _, err := parseReport([]byte("no braces at all"))
	require.Error(t, err)

	_, _, err = parseReport([]byte("prefix {not valid json"))
	require.Error(t, err)
}
