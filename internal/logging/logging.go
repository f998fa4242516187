// Package logging configures the structured logger every other package
// in this module logs through: charmbracelet/log, styled the way the
// reference TNC's text_color_set/dw_printf pairing distinguishes info,
// error, and debug output, but as one coherent leveled logger instead of
// a global color-state variable.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New builds a logger writing to w at the given level ("debug", "info",
// "warn", "error"); an empty level defaults to info.
func New(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	l.SetLevel(parseLevel(level))
	return l
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
