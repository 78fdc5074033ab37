package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// Power actions understood by PowerController.
const (
	PowerNone     = "None"
	PowerShutdown = "Shutdown"
	PowerSleep    = "Sleep"
)

// ErrUnsupported is returned when the host has no command for an action.
var ErrUnsupported = errors.New("not supported on this platform")

// PowerController shuts down or suspends the host.
type PowerController struct {
	goos   string
	run    CommandRunner
	logger *slog.Logger
}

// NewPowerController creates a controller for the running OS. A nil runner
// uses ExecRunner.
func NewPowerController(run CommandRunner, logger *slog.Logger) *PowerController {
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PowerController{goos: runtime.GOOS, run: run, logger: logger}
}

// Perform runs action. PowerNone does nothing.
func (c *PowerController) Perform(ctx context.Context, action string) error {
	if action == PowerNone || action == "" {
		return nil
	}

	argv, err := powerCommand(c.goos, action)
	if err != nil {
		return err
	}

	c.logger.Warn("performing post-queue power action", "action", action, "command", argv[0])
	if err := c.run(ctx, argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("power action %s: %w", action, err)
	}
	return nil
}

func powerCommand(goos, action string) ([]string, error) {
	switch action {
	case PowerShutdown:
		switch goos {
		case "windows":
			return []string{"shutdown", "/s", "/t", "60"}, nil
		case "linux":
			return []string{"shutdown", "-h", "+1"}, nil
		case "darwin":
			return []string{"osascript", "-e", `tell app "System Events" to shut down`}, nil
		}
	case PowerSleep:
		switch goos {
		case "windows":
			return []string{"rundll32.exe", "powrprof.dll,SetSuspendState", "0,1,0"}, nil
		case "linux":
			return []string{"systemctl", "suspend"}, nil
		case "darwin":
			return []string{"pmset", "sleepnow"}, nil
		}
	default:
		return nil, fmt.Errorf("unknown power action %q", action)
	}
	return nil, fmt.Errorf("%s: %w", action, ErrUnsupported)
}
