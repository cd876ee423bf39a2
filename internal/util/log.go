// Package util provides shared logging and traffic accounting.
package util

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05.000"
	pterm.DefaultLogger.MaxWidth = 1000
	pterm.DefaultLogger.Writer = os.Stderr
}

// Leveled logging functions backed by pterm's default logger.
// Output goes to stderr so stdout stays free for the audit trail.

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// DisableStyling strips colors and decorations, used when stderr is not a
// terminal.
func DisableStyling() {
	pterm.DisableStyling()
}
