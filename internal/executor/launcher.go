// File: internal/executor/launcher.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/quietops/linkhawk/internal/config"
)

// Launcher starts a local Chrome with remote debugging enabled, producing the
// persistent browser the manager attaches to. The browser outlives individual
// harvest runs; the operator logs in once and the profile keeps the session.
type Launcher struct {
	executable  string
	debugPort   int
	userDataDir string
	logger      *zap.Logger

	cmd  *exec.Cmd
	exit chan error
}

// NewLauncher resolves the Chrome executable for the current platform.
func NewLauncher(cfg config.ExecutorConfig, logger *zap.Logger) (*Launcher, error) {
	executable, err := findChrome()
	if err != nil {
		return nil, err
	}
	return &Launcher{
		executable:  executable,
		debugPort:   cfg.DebugPort,
		userDataDir: cfg.UserDataDir,
		logger:      logger.Named("launcher"),
	}, nil
}

// findChrome locates the Chrome binary per platform convention.
func findChrome() (string, error) {
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		candidates = []string{
			filepath.Join(os.Getenv("ProgramFiles"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("ProgramFiles(x86)"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("LocalAppData"), "Google", "Chrome", "Application", "chrome.exe"),
		}
	default:
		for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
			if path, err := exec.LookPath(name); err == nil {
				return path, nil
			}
		}
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no Chrome executable found for %s; install Google Chrome or Chromium", runtime.GOOS)
}

// launchArgs builds the command-line flags for the debuggable instance.
func launchArgs(debugPort int, userDataDir string) []string {
	return []string{
		fmt.Sprintf("--remote-debugging-port=%d", debugPort),
		fmt.Sprintf("--user-data-dir=%s", userDataDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-default-apps",
	}
}

// Start launches Chrome and returns without waiting. The process keeps
// running after Start returns; Stop (or the operator) shuts it down.
func (l *Launcher) Start(ctx context.Context) error {
	if l.cmd != nil {
		return errors.New("launcher already started")
	}
	if err := os.MkdirAll(l.userDataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, l.executable, launchArgs(l.debugPort, l.userDataDir)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch Chrome: %w", err)
	}
	l.cmd = cmd
	l.exit = make(chan error, 1)
	go func() { l.exit <- cmd.Wait() }()
	l.logger.Info("Launched debuggable Chrome",
		zap.String("executable", l.executable),
		zap.Int("debug_port", l.debugPort),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("user_data_dir", l.userDataDir))
	return nil
}

// Wait blocks until the browser process exits.
func (l *Launcher) Wait() error {
	if l.cmd == nil {
		return errors.New("launcher not started")
	}
	err := <-l.exit
	l.exit <- err
	return err
}

// Stop asks the browser to terminate and escalates to a hard kill if it has
// not exited within the grace period.
func (l *Launcher) Stop(grace time.Duration) error {
	if l.cmd == nil || l.cmd.Process == nil {
		return nil
	}
	l.logger.Info("Stopping Chrome", zap.Int("pid", l.cmd.Process.Pid))

	if err := l.cmd.Process.Signal(os.Interrupt); err != nil {
		// Process may already be gone, or the platform has no SIGINT.
		return l.cmd.Process.Kill()
	}

	select {
	case err := <-l.exit:
		l.exit <- err
		return nil
	case <-time.After(grace):
		l.logger.Warn("Chrome did not exit in time; killing", zap.Int("pid", l.cmd.Process.Pid))
		return l.cmd.Process.Kill()
	}
}
