package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"kasage/pkg/logging"
)

func TestFormatLogLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "SortedShortParams",
			input: `time=2026-03-02T06:50:46.074+05:30 level=INFO msg="Route shown" mode=driving id=3 polyline=abcdefghijklmnopqrstuvwxyz0123`,
			want:  "06:50:46 Route shown (id=3, mode=driving)",
		},
		{
			name:  "NoParams",
			input: `time=2026-03-02T21:05:00+05:30 level=WARN msg=Unmounted`,
			want:  "21:05:00 Unmounted",
		},
		{
			name:  "NoMessage",
			input: `key=value other=thing`,
			want:  `key=value other=thing`,
		},
		{
			name:  "NotKeyValue",
			input: "plain text",
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLogLine(tt.input); got != tt.want {
				t.Errorf("got '%s', want '%s'", got, tt.want)
			}
		})
	}
}

func TestHandleLatestLog(t *testing.T) {
	_, _ = logging.Capture.Write([]byte(`time=2026-03-02T10:00:00+05:30 level=INFO msg="Map initialized" markers=7` + "\n"))

	rec := httptest.NewRecorder()
	handleLatestLog(rec, httptest.NewRequest(http.MethodGet, "/api/log/latest", http.NoBody))

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["log"] != "10:00:00 Map initialized (markers=7)" {
		t.Errorf("unexpected log line '%s'", body["log"])
	}
}
