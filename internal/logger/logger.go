// Package logger builds the structured logger shared by every component.
//
// Log output goes through a redacting handler so Telegram bot tokens, which
// appear in API URLs and in some transport errors, never reach the logs.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// ParseLevel maps a level name to a slog.Level. Unknown names are an error.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// New returns a logger writing text or JSON records at or above level to w.
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(handler), nil
}

// Bot tokens look like 123456789:AA... and appear as /bot<token>/ in API URLs.
var tokenPattern = regexp.MustCompile(`\d{6,12}:[A-Za-z0-9_-]{30,}`)

// Redact masks bot tokens in s.
func Redact(s string) string {
	return tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		id, _, _ := strings.Cut(match, ":")
		return id + ":[REDACTED]"
	})
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if s := a.Value.String(); tokenPattern.MatchString(s) {
			return slog.String(a.Key, Redact(s))
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			if s := err.Error(); tokenPattern.MatchString(s) {
				return slog.String(a.Key, Redact(s))
			}
		}
	}
	return a
}
