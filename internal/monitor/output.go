package monitor

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/lzrong0203/memo-run/internal/types"
)

// Agent stdout patterns. The pipeline stats pattern matches the summary line
// printed by the process command.
var (
	keywordProgressRE = regexp.MustCompile(`正在搜尋關鍵字[:：]\s*(.+?)（第\s*(\d+)\s*/\s*(\d+)\s*個）`)
	pipelineStatsRE   = regexp.MustCompile(`掃描\s*(\d+)\s*篇.*過濾\s*(\d+)\s*篇.*重複\s*(\d+)\s*篇.*有效\s*(\d+)\s*篇`)
	extractionRE      = regexp.MustCompile(`(?:JS 抽取完成|抽取到\s*(\d+)\s*篇)`)
)

const payloadKey = `"analyzed_posts"`

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// ParseProgressLine converts one agent stdout line into a progress message.
// Lines matching no known pattern become a status message carrying the
// trimmed line. Blank lines yield false.
func ParseProgressLine(line string) (types.ProgressMessage, bool) {
	if m := keywordProgressRE.FindStringSubmatch(line); m != nil {
		current, ok1 := atoi(m[2])
		total, ok2 := atoi(m[3])
		if ok1 && ok2 {
			return types.ProgressMessage{
				Type: types.ProgressKeyword,
				Data: types.KeywordProgressData{Keyword: strings.TrimSpace(m[1]), Current: current, Total: total},
			}, true
		}
	}

	if m := pipelineStatsRE.FindStringSubmatch(line); m != nil {
		var n [4]int
		ok := true
		for i := range n {
			var good bool
			n[i], good = atoi(m[i+1])
			ok = ok && good
		}
		if ok {
			return types.ProgressMessage{
				Type: types.ProgressPipelineStats,
				Data: types.PipelineStatsData{Scanned: n[0], Filtered: n[1], Duplicated: n[2], Valid: n[3]},
			}, true
		}
	}

	if m := extractionRE.FindStringSubmatch(line); m != nil {
		if m[1] != "" {
			return types.StatusMessage("抽取到 " + m[1] + " 篇貼文"), true
		}
		return types.StatusMessage("JS 抽取完成"), true
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return types.ProgressMessage{}, false
	}
	return types.StatusMessage(trimmed), true
}

// FindJSONOutput locates the agent's terminal payload in its captured
// stdout: the JSON object with an "analyzed_posts" key that lies nearest the
// end of the output. Objects may span lines and nest.
func FindJSONOutput(lines []string) (json.RawMessage, bool) {
	text := strings.Join(lines, "\n")
	end := strings.LastIndex(text, payloadKey)
	if end < 0 {
		return nil, false
	}

	for i := end; i >= 0; i-- {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		if _, ok := obj["analyzed_posts"]; ok {
			return raw, true
		}
	}
	return nil, false
}

// lineRing keeps the most recent lines up to a fixed capacity.
type lineRing struct {
	buf   []string
	start int
	full  bool
}

func newLineRing(capacity int) *lineRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &lineRing{buf: make([]string, 0, capacity)}
}

func (r *lineRing) add(line string) {
	if !r.full {
		r.buf = append(r.buf, line)
		r.full = len(r.buf) == cap(r.buf)
		return
	}
	r.buf[r.start] = line
	r.start = (r.start + 1) % len(r.buf)
}

// lines returns the retained lines, oldest first.
func (r *lineRing) lines() []string {
	out := make([]string, 0, len(r.buf))
	out = append(out, r.buf[r.start:]...)
	return append(out, r.buf[:r.start]...)
}
