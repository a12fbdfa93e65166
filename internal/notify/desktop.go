package notify

import (
	"os/exec"
	"runtime"
)

// DesktopNotifier raises desktop notifications for workspace alerts
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send raises a desktop notification
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(n)
	case "linux":
		return d.sendLinux(n)
	default:
		return nil
	}
}

// urgency maps severity to notify-send's urgency levels
func urgency(s Severity) string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "normal"
	default:
		return "low"
	}
}

func (d *DesktopNotifier) sendMacOS(n Notification) error {
	script := `display notification "` + n.Message + `" with title "` + n.Title + `"`
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

func (d *DesktopNotifier) sendLinux(n Notification) error {
	cmd := exec.Command("notify-send", "-u", urgency(n.Severity), n.Title, n.Message)
	return cmd.Run()
}
