package api

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"carnav/pkg/logging"
)

const (
	maxParamLen = 20
	maxTail     = 100
)

// key=value or key="value with spaces"
var logRegex = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// LogEntry is one captured log line, trimmed for display.
type LogEntry struct {
	Time   string   `json:"time,omitempty"` // HH:MM:SS
	Level  string   `json:"level,omitempty"`
	Msg    string   `json:"msg"`
	Params []string `json:"params,omitempty"` // sorted key=value
}

// String renders "HH:MM:SS msg (k=v, k=v)".
func (e LogEntry) String() string {
	out := e.Msg
	if e.Time != "" {
		out = e.Time + " " + out
	}
	if len(e.Params) > 0 {
		out = fmt.Sprintf("%s (%s)", out, strings.Join(e.Params, ", "))
	}
	return out
}

// parseLogLine reads a slog text line. Values longer than maxParamLen are
// dropped: coordinates and short ids fit, paths and stack traces do not.
func parseLogLine(raw string) (LogEntry, bool) {
	var e LogEntry
	for _, m := range logRegex.FindAllStringSubmatch(raw, -1) {
		key, val := m[1], m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				e.Time = t.Format("15:04:05")
			}
		case "level":
			e.Level = val
		case "msg":
			e.Msg = val
		default:
			if len(val) <= maxParamLen {
				e.Params = append(e.Params, key+"="+val)
			}
		}
	}
	if e.Msg == "" {
		return LogEntry{}, false
	}
	sort.Strings(e.Params)
	return e, true
}

// formatLogLine shortens a log line for the page's status line. Lines that
// are not slog output pass through unchanged.
func formatLogLine(raw string) string {
	if e, ok := parseLogLine(raw); ok {
		return e.String()
	}
	return raw
}

// handleLatestLog returns the last captured log line.
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	line := logging.GlobalLogCapture.GetLastLine()
	writeJSON(w, http.StatusOK, map[string]string{"log": formatLogLine(line)})
}

// handleLogTail returns the last n (default 20) captured lines, oldest first.
func handleLogTail(w http.ResponseWriter, r *http.Request) {
	n := 20
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = min(v, maxTail)
	}

	lines := logging.GlobalLogCapture.Tail(n)
	entries := make([]LogEntry, 0, len(lines))
	for _, line := range lines {
		e, ok := parseLogLine(line)
		if !ok {
			e = LogEntry{Msg: line}
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
