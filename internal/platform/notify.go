package platform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// AppName is shown as the source of desktop notifications.
const AppName = "hlsgrabba"

// Notifier delivers desktop notifications.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// DesktopNotifier shows notifications with the host's notification tool.
type DesktopNotifier struct {
	goos   string
	run    CommandRunner
	logger *slog.Logger
}

// NewDesktopNotifier creates a notifier for the running OS. A nil runner
// uses ExecRunner.
func NewDesktopNotifier(run CommandRunner, logger *slog.Logger) *DesktopNotifier {
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DesktopNotifier{goos: runtime.GOOS, run: run, logger: logger}
}

// Notify shows one notification.
func (n *DesktopNotifier) Notify(ctx context.Context, title, message string) error {
	argv, err := notifyCommand(n.goos, title, message)
	if err != nil {
		return err
	}
	if err := n.run(ctx, argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func notifyCommand(goos, title, message string) ([]string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return []string{"notify-send", "--app-name=" + AppName, "--expire-time=10000", title, message}, nil
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(message), appleScriptString(title))
		return []string{"osascript", "-e", script}, nil
	case "windows":
		script := fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms;`+
			`$n = New-Object System.Windows.Forms.NotifyIcon;`+
			`$n.Icon = [System.Drawing.SystemIcons]::Information;`+
			`$n.Visible = $true;`+
			`$n.ShowBalloonTip(10000, %s, %s, 'Info');`+
			`Start-Sleep -Seconds 10; $n.Dispose()`,
			powerShellString(title), powerShellString(message))
		return []string{"powershell", "-NoProfile", "-NonInteractive", "-Command", script}, nil
	}
	return nil, fmt.Errorf("notifications: %w", ErrUnsupported)
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func powerShellString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
