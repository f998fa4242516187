package tnc

import (
	"time"

	"github.com/lestrrat-go/strftime"
)

// framePrefix renders the user-configured strftime timestamp format ahead
// of an RX/TX frame log line, grounded on the reference TNC's kissutil.go
// "-T" option (strftime.Format(timestamp_format, time.Now())). An empty
// format disables the prefix entirely, and a malformed one is ignored
// rather than failing the frame.
func framePrefix(format string) string {
	if format == "" {
		return ""
	}
	s, err := strftime.Format(format, time.Now())
	if err != nil {
		return ""
	}
	return s
}
