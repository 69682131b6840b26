package logger

import (
	"io"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

// redactedFields lists JSON keys whose values must never reach log output,
// even if a caller accidentally attaches one via .Interface() or .Str().
var redactedFields = []string{"authorization", "cookie", "password", "token", "secret", "hmac", "hmac_secret", "signature"}

var redactPatterns = buildRedactPatterns(redactedFields)

func buildRedactPatterns(fields []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(fields))
	for i, f := range fields {
		patterns[i] = regexp.MustCompile(`"` + f + `":"[^"]*"`)
	}
	return patterns
}

// redactWriter wraps an io.Writer and scrubs known-sensitive JSON fields
// out of every log line before it is written.
type redactWriter struct {
	out io.Writer
}

func (w redactWriter) Write(p []byte) (int, error) {
	redacted := p
	for i, field := range redactedFields {
		redacted = redactPatterns[i].ReplaceAll(redacted, []byte(`"`+field+`":"REDACTED"`))
	}
	if _, err := w.out.Write(redacted); err != nil {
		return 0, err
	}
	return len(p), nil
}

// New creates a configured zerolog.Logger with sensitive-field redaction.
// level: debug, info, warn, error. pretty: human-readable console output.
func New(level string, pretty bool) zerolog.Logger {
	var w io.Writer = redactWriter{out: os.Stdout}

	if pretty {
		// Redact the JSON line before ConsoleWriter reformats it into
		// key=value text, which the JSON patterns would no longer match.
		w = redactWriter{out: zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}}
	}

	lvl := parseLevel(level)

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Logger()
}

// NewWithWriter creates a logger writing to a custom writer (useful for
// testing). It applies the same redaction as New.
func NewWithWriter(level string, w io.Writer) zerolog.Logger {
	lvl := parseLevel(level)
	return zerolog.New(redactWriter{out: w}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
