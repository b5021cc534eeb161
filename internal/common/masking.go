package common

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// MaskedValue replaces any value recognised as sensitive.
const MaskedValue = "***MASKED***"

// SensitivePattern describes one kind of secret that must not reach logs.
type SensitivePattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Keys        []string // attribute keys masked outright (case-insensitive)
}

// DefaultSensitivePatterns covers DSN credentials and the usual secret keys.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "url_password",
		Regex:       regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://[^:/@\s]+:)([^@\s]+)(@)`),
		Replacement: "${1}" + MaskedValue + "${3}",
	},
	{
		Name:        "kv_password",
		Regex:       regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*=\s*('[^']*'|\S+)`),
		Replacement: "${1}=" + MaskedValue,
		Keys:        []string{"password", "passwd", "pwd"},
	},
	{
		Name:        "secret",
		Regex:       regexp.MustCompile(`(?i)\b(secret|jwt_secret|client_secret)\s*[:=]\s*(\S+)`),
		Replacement: "${1}=" + MaskedValue,
		Keys:        []string{"secret", "jwt_secret", "client_secret", "token", "authorization"},
	},
	{
		Name:        "bearer_token",
		Regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		Replacement: "Bearer " + MaskedValue,
	},
}

// Masker masks sensitive information in log attributes.
type Masker struct {
	patterns []SensitivePattern
	enabled  bool
}

// NewMasker creates a masker with the default patterns.
func NewMasker() *Masker {
	return &Masker{patterns: DefaultSensitivePatterns, enabled: true}
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) {
	m.enabled = enabled
}

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool {
	return m != nil && m.enabled
}

// AddPattern registers an additional pattern.
func (m *Masker) AddPattern(p SensitivePattern) {
	m.patterns = append(m.patterns, p)
}

// MaskString masks sensitive information in a string.
func (m *Masker) MaskString(input string) string {
	if !m.IsEnabled() {
		return input
	}
	out := input
	for _, p := range m.patterns {
		if p.Regex != nil {
			out = p.Regex.ReplaceAllString(out, p.Replacement)
		}
	}
	return out
}

// MaskAttr returns a masked copy of a string or error attribute. Other kinds pass through.
func (m *Masker) MaskAttr(a slog.Attr) slog.Attr {
	if !m.IsEnabled() {
		return a
	}
	lower := strings.ToLower(a.Key)
	for _, p := range m.patterns {
		for _, k := range p.Keys {
			if lower == k {
				return slog.String(a.Key, MaskedValue)
			}
		}
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, m.MaskString(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, m.MaskString(err.Error()))
		}
	}
	return a
}

// maskingHandler applies a Masker to every attribute before delegating.
type maskingHandler struct {
	next   slog.Handler
	masker *Masker
}

func newMaskingHandler(next slog.Handler, m *Masker) *maskingHandler {
	return &maskingHandler{next: next, masker: m}
}

func (h *maskingHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *maskingHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.masker.IsEnabled() {
		return h.next.Handle(ctx, r)
	}
	nr := slog.NewRecord(r.Time, r.Level, h.masker.MaskString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(h.masker.MaskAttr(a))
		return true
	})
	return h.next.Handle(ctx, nr)
}

func (h *maskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.masker.MaskAttr(a)
	}
	return &maskingHandler{next: h.next.WithAttrs(masked), masker: h.masker}
}

func (h *maskingHandler) WithGroup(name string) slog.Handler {
	return &maskingHandler{next: h.next.WithGroup(name), masker: h.masker}
}

var globalMasker = NewMasker()

// MaskSensitiveData masks data with the process-wide masker.
func MaskSensitiveData(input string) string {
	return globalMasker.MaskString(input)
}

// EnableMasking enables or disables the process-wide masker.
func EnableMasking(enabled bool) {
	globalMasker.SetEnabled(enabled)
}
