package sentry

import (
	"fmt"
	"os/exec"
	"runtime"
)

// openURL hands url to the configured opener and records the attempt.
func (a *App) openURL(url string) error {
	if a.opener == nil {
		return nil
	}
	if err := a.opener(url); err != nil {
		a.logger.Warn("open url failed", "url", url, "error", err)
		return err
	}
	a.logger.Info("opened url", "url", url)
	if a.webServer != nil {
		a.webServer.AddLog("info", "opened "+url)
	}
	return nil
}

// openBrowser starts the platform URL handler without waiting for it.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("sentry: open %s: %w", url, err)
	}
	go cmd.Wait() //nolint:errcheck
	return nil
}
