package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// InitLogging builds the process logger, installs it as the slog default and
// returns it. level is one of DEBUG, INFO, WARN or ERROR; format is text or
// json.
func InitLogging(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("log format %q: want text or json", format)
	}
	l := slog.New(h).With("service", ServiceName)
	slog.SetDefault(l)
	return l, nil
}

// Logger returns the default logger tagged with a component name.
func Logger(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
