// File: internal/lighthouse/runtime.go
package lighthouse

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/xkilldash9x/lumen-cli/internal/config"
)

const dockerSocket = "/var/run/docker.sock"

// runtimeManager probes the Docker daemon and, when allowed, tries to start
// it. Only one goroutine runs an auto-start attempt at a time.
type runtimeManager struct {
	cfg    config.LighthouseConfig
	logger *zap.Logger
	runner commandRunner
	goos   string

	// Timings are fields so tests do not wait out real poll loops.
	pollInterval time.Duration
	pollAttempts int
	settleDelay  time.Duration

	startMu sync.Mutex
}

func newRuntimeManager(cfg config.LighthouseConfig, logger *zap.Logger, runner commandRunner, goos string) *runtimeManager {
	return &runtimeManager{
		cfg:          cfg,
		logger:       logger.Named("runtime"),
		runner:       runner,
		goos:         goos,
		pollInterval: 5 * time.Second,
		pollAttempts: 12,
		settleDelay:  3 * time.Second,
	}
}

// ensureAvailable reports whether the Docker daemon answers. When it does not
// and auto-start is enabled, it makes a bounded platform-specific attempt to
// bring it up.
func (m *runtimeManager) ensureAvailable(ctx context.Context) bool {
	if m.probe(ctx) {
		return true
	}
	if !m.cfg.AutoStartDocker {
		m.logger.Warn("Docker not running and auto-start is disabled.")
		return false
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	// Another goroutine may have started it while we waited for the lock.
	if m.probe(ctx) {
		return true
	}

	m.logger.Info("Docker not running, attempting to start.", zap.String("goos", m.goos))
	switch m.goos {
	case "darwin":
		return m.startDarwin(ctx)
	case "linux":
		return m.startLinux(ctx)
	default:
		m.logger.Warn("No Docker auto-start strategy for this platform.", zap.String("goos", m.goos))
		return false
	}
}

// probe runs `docker info` under the probe timeout.
func (m *runtimeManager) probe(ctx context.Context) bool {
	timeout := m.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, _, err := m.runner.Run(probeCtx, "docker", "info")
	return err == nil
}

// startDarwin opens Docker Desktop and polls until the daemon answers or the
// attempt budget runs out.
func (m *runtimeManager) startDarwin(ctx context.Context) bool {
	if _, _, err := m.runner.Run(ctx, "open", "/Applications/Docker.app"); err != nil {
		m.logger.Warn("Failed to open Docker Desktop.", zap.Error(err))
		return false
	}

	for i := 0; i < m.pollAttempts; i++ {
		if !sleepCtx(ctx, m.pollInterval) {
			return false
		}
		if m.probe(ctx) {
			m.logger.Info("Docker started.")
			return true
		}
		m.logger.Debug("Waiting for Docker to start.",
			zap.Duration("elapsed", time.Duration(i+1)*m.pollInterval))
	}
	return false
}

// startLinux tries systemctl first, then the legacy service command. Each
// attempt gets a settle delay before the daemon is probed again.
func (m *runtimeManager) startLinux(ctx context.Context) bool {
	attempts := [][]string{
		{"systemctl", "start", "docker"},
		{"service", "docker", "start"},
	}

	for _, attempt := range attempts {
		name, args := attempt[0], attempt[1:]
		if m.needsSudo() {
			args = append([]string{name}, args...)
			name = "sudo"
		}

		startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, _, err := m.runner.Run(startCtx, name, args...)
		cancel()
		if err != nil {
			m.logger.Debug("Docker start attempt failed.",
				zap.String("command", name), zap.Error(err))
		}

		if !sleepCtx(ctx, m.settleDelay) {
			return false
		}
		if m.probe(ctx) {
			m.logger.Info("Docker started.", zap.String("command", name))
			return true
		}
	}

	m.logger.Warn("Could not start Docker automatically, continuing without Lighthouse.")
	return false
}

// needsSudo reports whether the docker socket exists but is not writable by
// this process.
func (m *runtimeManager) needsSudo() bool {
	return unix.Access(dockerSocket, unix.W_OK) != nil
}

// sleepCtx sleeps for d unless the context ends first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
