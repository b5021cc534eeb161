package status

import (
	"fmt"
	"strings"

	"github.com/loykin/sqlupgrade/internal/constants"
	"github.com/loykin/sqlupgrade/internal/registry"
	"github.com/loykin/sqlupgrade/internal/store"
)

// HistoryItem is a single step attempt. RanAt is an RFC3339 timestamp in UTC.
// FailedStatement is -1 unless a statement failed.
type HistoryItem struct {
	ID              int64   `json:"id"`
	Version         string  `json:"version"`
	Statements      int     `json:"statements"`
	Failed          bool    `json:"failed"`
	FailedStatement int     `json:"failed_statement"`
	Error           *string `json:"error,omitempty"`
	DurationMS      int64   `json:"duration_ms"`
	RanAt           string  `json:"ran_at"`
}

// Info aggregates status information: installed version, what is still
// pending, and the most recent run history (newest first).
type Info struct {
	Version string        `json:"version"`
	Latest  string        `json:"latest"`
	Pending []string      `json:"pending"`
	History []HistoryItem `json:"history"`
}

// UpToDate reports whether nothing is pending.
func (i Info) UpToDate() bool {
	return len(i.Pending) == 0
}

// FromStore collects status from an opened store. reg may be nil, in which
// case Latest and Pending are left empty. historyLimit <= 0 loads all runs.
func FromStore(st *store.Store, reg *registry.Registry, historyLimit int) (Info, error) {
	cur, err := st.InstalledVersion()
	if err != nil {
		return Info{}, err
	}
	runs, err := st.ListRuns(historyLimit)
	if err != nil {
		return Info{}, err
	}
	info := Info{Version: cur.String(), Pending: []string{}, History: make([]HistoryItem, 0, len(runs))}
	if reg != nil {
		info.Latest = reg.Latest().String()
		for _, s := range reg.Pending(cur, reg.Latest()) {
			info.Pending = append(info.Pending, s.Version.String())
		}
	}
	for _, r := range runs {
		info.History = append(info.History, HistoryItem{
			ID:              r.ID,
			Version:         r.Version,
			Statements:      r.Statements,
			Failed:          r.Failed,
			FailedStatement: r.FailedStatement,
			Error:           r.Error,
			DurationMS:      r.DurationMS,
			RanAt:           r.RanAt,
		})
	}
	return info, nil
}

func (i Info) header() string {
	cur := i.Version
	if cur == "" {
		cur = "(none)"
	}
	out := fmt.Sprintf("installed: %s\n", cur)
	if i.Latest != "" {
		out += fmt.Sprintf("latest: %s\n", i.Latest)
	}
	out += fmt.Sprintf("pending: [%s]\n", strings.Join(i.Pending, " "))
	return out
}

func formatItem(h HistoryItem) string {
	line := fmt.Sprintf("#%d v=%s statements=%d failed=%t duration=%dms at=%s", h.ID, h.Version, h.Statements, h.Failed, h.DurationMS, h.RanAt)
	if h.Failed {
		if h.FailedStatement >= 0 {
			line += fmt.Sprintf(" statement=%d", h.FailedStatement)
		}
		if h.Error != nil {
			line += fmt.Sprintf(" error=%q", *h.Error)
		}
	}
	return line + "\n"
}

// FormatHuman returns a human-friendly multiline string for CLI output.
func (i Info) FormatHuman(history bool) string {
	return i.FormatHumanWithLimit(history, 0, true)
}

// FormatHumanWithLimit prints up to limit history entries (default 10) unless all is set.
func (i Info) FormatHumanWithLimit(history bool, limit int, all bool) string {
	base := i.header()
	if !history {
		return base
	}
	if len(i.History) == 0 {
		return base + "history: \n"
	}
	items := i.History
	if !all {
		if limit <= 0 {
			limit = constants.DefaultHistoryLimit
		}
		if len(items) > limit {
			items = items[:limit]
		}
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("history:\n")
	for _, h := range items {
		b.WriteString(formatItem(h))
	}
	return b.String()
}
