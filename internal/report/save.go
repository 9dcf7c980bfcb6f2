package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timestampLayouts are the ISO 8601 shapes the agent is known to emit.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO 8601 timestamp. The second return is false
// when no known layout matches.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ReportFilename names a report after its timestamp, falling back to now
// when the timestamp is missing or unparseable.
func ReportFilename(timestamp string) string {
	t, ok := ParseTimestamp(timestamp)
	if !ok {
		t = time.Now()
	}
	return fmt.Sprintf("report_%s.md", t.Format("20060102_150405"))
}

// SaveReport writes markdown to dir/report_YYYYMMDD_HHMMSS.md, creating dir
// as needed, and returns the file path.
func SaveReport(markdown, dir, timestamp string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}
	path := filepath.Join(dir, ReportFilename(timestamp))
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
