package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carnav/pkg/logging"
)

func TestFormatLogLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Params sorted, long values dropped",
			input: `time=2026-03-01T08:15:02.118+08:00 level=INFO msg="Restored map view" zoom=14 lat=31.19134 lon=121.44579 path=/home/driver/.local/share/carnav/carnav.db`,
			want:  "08:15:02 Restored map view (lat=31.19134, lon=121.44579, zoom=14)",
		},
		{
			name:  "No params",
			input: `time=2026-03-01T08:15:02+08:00 level=WARN msg="Fix dropped"`,
			want:  "08:15:02 Fix dropped",
		},
		{
			name:  "Unstructured line passes through",
			input: "panic: runtime error",
			want:  "panic: runtime error",
		},
		{
			name:  "Missing msg passes through",
			input: "level=INFO zoom=3",
			want:  "level=INFO zoom=3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatLogLine(tt.input))
		})
	}
}

func TestHandleLatestLog(t *testing.T) {
	w := httptest.NewRecorder()
	handleLatestLog(w, httptest.NewRequest(http.MethodGet, "/api/log/latest", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Contains(t, body, "log")
}

func TestParseLogLine(t *testing.T) {
	e, ok := parseLogLine(`time=2026-03-01T08:15:02+08:00 level=WARN msg="Tile server backoff" status=429 url=https://tile.openstreetmap.org/14/13722/6693.png`)
	require.True(t, ok)
	assert.Equal(t, LogEntry{Time: "08:15:02", Level: "WARN", Msg: "Tile server backoff", Params: []string{"status=429"}}, e)

	_, ok = parseLogLine("goroutine 1 [running]:")
	assert.False(t, ok)
}

func TestHandleLogTail(t *testing.T) {
	for _, line := range []string{
		`time=2026-03-01T08:15:01+08:00 level=INFO msg="Map client connected" clients=1` + "\n",
		"goroutine 7 [running]:\n",
		`time=2026-03-01T08:15:02+08:00 level=INFO msg="Map resized" width=800 height=600` + "\n",
	} {
		_, _ = logging.GlobalLogCapture.Write([]byte(line))
	}

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantLen  int
	}{
		{"Last two", "/api/log/tail?n=2", http.StatusOK, 2},
		{"Invalid n", "/api/log/tail?n=zero", http.StatusBadRequest, 0},
		{"Negative n", "/api/log/tail?n=-1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, Handlers{}, http.MethodGet, tt.target, "")
			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Entries []LogEntry `json:"entries"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Len(t, body.Entries, tt.wantLen)
			assert.Equal(t, "goroutine 7 [running]:", body.Entries[0].Msg)
			assert.Equal(t, "Map resized", body.Entries[1].Msg)
			assert.Equal(t, []string{"height=600", "width=800"}, body.Entries[1].Params)
		})
	}
}
