// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"strings"

	"fractalwave/internal/log"
)

// LoggingTransport writes frames to the debug log.
type LoggingTransport struct {
	log *log.Logger
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{log: log.New("transport/log")}
}

func (lt *LoggingTransport) Name() string { return "log" }

// Send logs the frame at debug level. It never fails.
func (lt *LoggingTransport) Send(f Frame) error {
	if log.GetLevel() > log.LevelDebug {
		return nil
	}
	lt.log.Debugf("frame %d: %s", f.Seq, formatBands(f.Bands))
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error { return nil }

func formatBands(bands []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range bands {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.3g", v)
	}
	b.WriteByte(']')
	return b.String()
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
