package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/Graylog2/go-gelf/gelf"
)

// syslog severities used by GELF
const (
	gelfLevelErr     = int32(3)
	gelfLevelWarning = int32(4)
	gelfLevelInfo    = int32(6)
	gelfLevelDebug   = int32(7)
)

// GelfHandler forwards log records to a Graylog server as GELF messages over UDP.
// Sends are fire-and-forget so a down Graylog never stalls the log path.
type GelfHandler struct {
	writer *gelf.Writer
	host   string
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewGelfHandler dials the Graylog UDP endpoint and returns a handler that
// emits records at or above level.
func NewGelfHandler(addr string, level slog.Level) (*GelfHandler, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, err
	}
	host, err := os.Hostname()
	if err != nil {
		host = "lapline"
	}
	return &GelfHandler{
		writer: w,
		host:   host,
		level:  level,
	}, nil
}

// Enabled reports whether records at the given level are forwarded.
func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle converts the record into a GELF message and writes it out.
func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		extra["_"+h.fieldKey(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		extra["_"+h.fieldKey(a.Key)] = a.Value.Any()
		return true
	})

	return h.writer.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(r.Time.UnixNano()) / 1e9,
		Level:    gelfLevel(r.Level),
		Extra:    extra,
	})
}

// WithAttrs returns a new GelfHandler carrying the given attributes.
func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	next.attrs = append(next.attrs, attrs...)
	return &next
}

// WithGroup returns a new GelfHandler with the given group prefix.
func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = make([]string, 0, len(h.groups)+1)
	next.groups = append(next.groups, h.groups...)
	next.groups = append(next.groups, name)
	return &next
}

func (h *GelfHandler) fieldKey(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

func gelfLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return gelfLevelErr
	case l >= slog.LevelWarn:
		return gelfLevelWarning
	case l >= slog.LevelInfo:
		return gelfLevelInfo
	default:
		return gelfLevelDebug
	}
}
