package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// NotificationSender delivers a desktop alert.
type NotificationSender interface {
	Send(title, message string) error
}

// commandSender shows an alert by running a platform tool.
type commandSender func(title, message string) *exec.Cmd

func (c commandSender) Send(title, message string) error {
	return c(title, message).Run()
}

const toastScript = `[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$text = $template.GetElementsByTagName("text")
$text.Item(0).AppendChild($template.CreateTextNode('%s')) | Out-Null
$text.Item(1).AppendChild($template.CreateTextNode('%s')) | Out-Null
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("igdmbot").Show([Windows.UI.Notifications.ToastNotification]::new($template))`

// desktopSender returns the alert command for goos, or nil when the platform
// has none.
func desktopSender(goos string) NotificationSender {
	switch goos {
	case "linux":
		return commandSender(func(title, message string) *exec.Cmd {
			return exec.Command("notify-send", "--app-name=igdmbot", title, message)
		})
	case "darwin":
		return commandSender(func(title, message string) *exec.Cmd {
			return exec.Command("osascript", "-e", fmt.Sprintf("display notification %q with title %q", message, title))
		})
	case "windows":
		return commandSender(func(title, message string) *exec.Cmd {
			script := fmt.Sprintf(toastScript, psQuote(title), psQuote(message))
			return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script)
		})
	}
	return nil
}

// psQuote escapes s for a single-quoted PowerShell string.
func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Notifier raises operator alerts such as an expired session or Instagram
// throttling. Each alert is echoed to the console unless that is disabled.
type Notifier struct {
	sender  NotificationSender
	console bool
}

func NewNotifier() *Notifier {
	return &Notifier{sender: desktopSender(runtime.GOOS), console: true}
}

// NewNotifierWithSender uses sender and optionally skips console output.
func NewNotifierWithSender(sender NotificationSender, console bool) *Notifier {
	return &Notifier{sender: sender, console: console}
}

// SendNotification raises an informational alert.
func (n *Notifier) SendNotification(title, message string) error {
	return n.notify(Cyan(title), Yellow(message), title, message)
}

// SendError raises an alert that needs the operator to act.
func (n *Notifier) SendError(title, message string) error {
	return n.notify(Red(title), Red(message), title, message)
}

func (n *Notifier) notify(styledTitle, styledMessage, title, message string) error {
	if n == nil {
		return nil
	}
	if n.console {
		fmt.Fprintf(out, "\n%s: %s\n", styledTitle, styledMessage)
	}
	if n.sender == nil {
		return nil
	}
	return n.sender.Send(title, message)
}
