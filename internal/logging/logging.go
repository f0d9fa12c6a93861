// Package logging builds the service's slog handler with secret redaction.
package logging

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	reOpenAIKey   = regexp.MustCompile(`sk-[A-Za-z0-9_\-]{16,}`)
	reBearerToken = regexp.MustCompile(`(?i)(Bearer\s+)[A-Za-z0-9\-._~+/]+=*`)
)

// NewHandler returns a JSON handler that writes to w at the given level and
// masks secrets in attribute keys and string values. Extra secrets (configured
// API keys, internal tokens) are replaced verbatim wherever they appear.
func NewHandler(w io.Writer, level string, secrets ...string) slog.Handler {
	known := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			known = append(known, s)
		}
	}

	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if isRedactKey(strings.ToLower(a.Key)) {
				return slog.String(a.Key, redacted)
			}
			switch a.Value.Kind() {
			case slog.KindString:
				return slog.String(a.Key, RedactText(a.Value.String(), known...))
			case slog.KindAny:
				if err, ok := a.Value.Any().(error); ok {
					return slog.String(a.Key, RedactText(err.Error(), known...))
				}
			}
			return a
		},
	})
}

// ParseLevel maps debug/info/warn/error to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// RedactText masks API keys and bearer tokens inside free text.
func RedactText(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}
	s = reOpenAIKey.ReplaceAllString(s, "sk-"+redacted)
	s = reBearerToken.ReplaceAllString(s, "${1}"+redacted)
	return s
}

func isRedactKey(key string) bool {
	switch {
	case strings.Contains(key, "token"),
		strings.Contains(key, "authorization"),
		strings.Contains(key, "password"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "credential"),
		strings.Contains(key, "api_key"),
		strings.Contains(key, "apikey"):
		return true
	default:
		return false
	}
}
