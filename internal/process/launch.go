package process

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LaunchRequest describes a detached process start.
type LaunchRequest struct {
	Name    string
	WorkDir string
	Command string
	LogPath string   // stdout and stderr are appended here
	Env     []string // full environment; nil inherits the supervisor's
}

// Launcher starts detached processes.
type Launcher interface {
	Launch(req LaunchRequest) (int, error)
}

// DetachedLauncher starts the command through the system shell in a new
// session so it survives the supervisor. Stdin is /dev/null and both output
// streams are appended to LogPath. The child is reaped in the background.
type DetachedLauncher struct {
	Logger *slog.Logger
}

func (l DetachedLauncher) Launch(req LaunchRequest) (int, error) {
	if strings.TrimSpace(req.Command) == "" {
		return 0, fmt.Errorf("launch %s: empty command", req.Name)
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cmd := shellCommand(req.Command)
	cmd.Dir = req.WorkDir
	if req.Env != nil {
		cmd.Env = req.Env
	}
	configureDetached(cmd)

	var logF *os.File
	if req.LogPath != "" {
		if dir := filepath.Dir(req.LogPath); dir != "" {
			_ = os.MkdirAll(dir, 0o750)
		}
		// #nosec G304
		f, err := os.OpenFile(filepath.Clean(req.LogPath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return 0, fmt.Errorf("open log %s: %w", req.LogPath, err)
		}
		logF = f
		cmd.Stdout = f
		cmd.Stderr = f
	}
	// cmd.Stdin left nil: the child reads from the null device.
	if err := cmd.Start(); err != nil {
		if logF != nil {
			_ = logF.Close()
		}
		return 0, err
	}
	// The child holds its own descriptor now.
	if logF != nil {
		_ = logF.Close()
	}
	pid := cmd.Process.Pid
	go func() {
		err := cmd.Wait()
		logger.Debug("launched process exited", "name", req.Name, "pid", pid, "error", err)
	}()
	return pid, nil
}

// LogPath returns the default output sink for a service: <dir>/<name>.log.
func LogPath(dir, name string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, name+".log")
}
