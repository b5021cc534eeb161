package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	Gray    = "\033[90m"
)

// ColorHandler is a slog handler producing one colorized line per record.
type ColorHandler struct {
	opts     *slog.HandlerOptions
	mu       *sync.Mutex
	writer   io.Writer
	attrs    []slog.Attr
	groups   []string
	masker   *Masker
	useColor bool
}

// NewColorHandler creates a new color handler. Colors are only emitted when w is a terminal.
func NewColorHandler(w io.Writer, opts *slog.HandlerOptions) *ColorHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ColorHandler{
		opts:     opts,
		mu:       &sync.Mutex{},
		writer:   w,
		useColor: shouldUseColor(w),
		masker:   NewMasker(),
	}
}

func shouldUseColor(w io.Writer) bool {
	if runtime.GOOS == "windows" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// Enabled reports whether the handler handles records at the given level
func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle formats and writes the record.
func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 512)
	if !r.Time.IsZero() {
		buf = append(buf, h.colorize(Gray, r.Time.Format(time.RFC3339))...)
		buf = append(buf, ' ')
	}
	buf = append(buf, h.formatLevel(r.Level)...)
	buf = append(buf, ' ')
	if len(h.groups) > 0 {
		buf = append(buf, h.colorize(Cyan, "["+strings.Join(h.groups, ".")+"]")...)
		buf = append(buf, ' ')
	}
	buf = append(buf, h.colorize(White, h.masker.MaskString(r.Message))...)

	attrs := make([]slog.Attr, 0, r.NumAttrs()+len(h.attrs))
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.masker.MaskAttr(a))
		return true
	})
	for _, a := range attrs {
		buf = append(buf, ' ')
		buf = append(buf, h.colorize(Cyan, a.Key)...)
		buf = append(buf, '=')
		buf = append(buf, h.formatValue(a.Value)...)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf)
	return err
}

func (h *ColorHandler) formatLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.colorize(Red, "[ERROR]")
	case level >= slog.LevelWarn:
		return h.colorize(Yellow, "[WARN ]")
	case level >= slog.LevelInfo:
		return h.colorize(Green, "[INFO ]")
	default:
		return h.colorize(Gray, "[DEBUG]")
	}
}

func (h *ColorHandler) formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		switch {
		case isErrorLike(s):
			return h.colorize(Red, fmt.Sprintf("%q", s))
		case isSuccessLike(s):
			return h.colorize(Green, fmt.Sprintf("%q", s))
		default:
			return h.colorize(White, fmt.Sprintf("%q", s))
		}
	case slog.KindInt64:
		return h.colorize(Magenta, fmt.Sprintf("%d", v.Int64()))
	case slog.KindFloat64:
		return h.colorize(Magenta, fmt.Sprintf("%g", v.Float64()))
	case slog.KindBool:
		if v.Bool() {
			return h.colorize(Green, "true")
		}
		return h.colorize(Red, "false")
	case slog.KindDuration:
		return h.colorize(Yellow, v.Duration().String())
	case slog.KindTime:
		return h.colorize(Gray, v.Time().Format(time.RFC3339))
	default:
		return h.colorize(White, v.String())
	}
}

func isErrorLike(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "error") || strings.Contains(s, "fail")
}

func isSuccessLike(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "success") || strings.Contains(s, "complete") || s == "applied"
}

func (h *ColorHandler) colorize(color, text string) string {
	if !h.useColor {
		return text
	}
	return color + text + Reset
}

// WithAttrs returns a new ColorHandler with the given attributes added
func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, h.masker.MaskAttr(a))
	}
	return &nh
}

// WithGroup returns a new ColorHandler with the given group name added
func (h *ColorHandler) WithGroup(name string) slog.Handler {
	nh := *h
	nh.groups = append(append([]string{}, h.groups...), name)
	return &nh
}

// SetColorEnabled enables or disables colors
func (h *ColorHandler) SetColorEnabled(enabled bool) {
	h.useColor = enabled
}
