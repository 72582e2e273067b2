// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"sync"
)

// ParseLevel maps debug|info|warn|error to a slog level. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger at the given level.
func New(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

var (
	warnedMu sync.Mutex
	warned   = map[string]struct{}{}
)

// WarnOnce logs a degradation line at most once per (code, line).
func WarnOnce(l *slog.Logger, code, line string, args ...any) {
	key := code + ":" + line
	warnedMu.Lock()
	_, seen := warned[key]
	if !seen {
		warned[key] = struct{}{}
	}
	warnedMu.Unlock()
	if seen {
		return
	}
	OrDefault(l).Warn("[DEGRADED] "+line, append([]any{"reason_code", code}, args...)...)
}
