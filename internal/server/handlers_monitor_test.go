package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzrong0203/memo-run/internal/monitor"
	"github.com/lzrong0203/memo-run/internal/types"
)

func agentOutput() []string {
	lines := []string{
		"正在搜尋關鍵字：詐騙（第 1/1 個）",
		"掃描 10 篇 → 過濾 5 篇 → 重複 3 篇 → 有效 2 篇",
	}
	return append(lines, strings.Split(samplePayload, "\n")...)
}

func TestStartMonitor(t *testing.T) {
	runID := uuid.New()
	orch := &fakeOrchestrator{runID: runID}
	s := New(testOptions(nil, orch))
	t.Cleanup(s.rateLimiter.Stop)

	req := httptest.NewRequest(http.MethodPost, "/api/monitor/start", strings.NewReader(`{"keywords": [" 詐騙 ", "", "AI"]}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decodeBody[types.MonitorResponse](t, w)
	assert.Equal(t, runID.String(), resp.RunID)
	assert.Equal(t, types.RunStatusPending, resp.Status)
	assert.Equal(t, "Monitoring started for 2 keyword(s)", resp.Message)
	assert.Equal(t, []string{"詐騙", "AI"}, orch.keywords)
}

func TestStartMonitor_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		startErr   error
		wantStatus int
		wantText   string
	}{
		{name: "invalid json", body: `{"keywords": [`, wantStatus: http.StatusBadRequest, wantText: "Invalid request body"},
		{name: "wrong keyword type", body: `{"keywords": [1]}`, wantStatus: http.StatusBadRequest, wantText: "Invalid request body"},
		{name: "body too large", body: `{"keywords": ["` + strings.Repeat("a", maxStartBodyBytes) + `"]}`, wantStatus: http.StatusBadRequest, wantText: "Invalid request body"},
		{name: "no keywords", body: `{"keywords": []}`, wantStatus: http.StatusBadRequest, wantText: "at least one keyword"},
		{name: "control characters", body: `{"keywords": ["a\u0007b"]}`, wantStatus: http.StatusBadRequest, wantText: "invalid characters"},
		{name: "at capacity", body: `{"keywords": ["AI"]}`, startErr: monitor.ErrAtCapacity, wantStatus: http.StatusTooManyRequests, wantText: "Too many concurrent runs"},
		{name: "shutting down", body: `{"keywords": ["AI"]}`, startErr: monitor.ErrShuttingDown, wantStatus: http.StatusServiceUnavailable, wantText: "shutting down"},
		{name: "registry failure", body: `{"keywords": ["AI"]}`, startErr: errors.New("failed to create run: disk I/O error"), wantStatus: http.StatusInternalServerError, wantText: "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := &fakeOrchestrator{startErr: tt.startErr}
			s := New(testOptions(nil, orch))
			t.Cleanup(s.rateLimiter.Stop)

			req := httptest.NewRequest(http.MethodPost, "/api/monitor/start", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantText)
			for _, leak := range []string{"disk I/O", "json:", "http:", "MonitorRequest"} {
				assert.NotContains(t, w.Body.String(), leak, "internal errors are not exposed")
			}
			if tt.startErr != nil {
				resp := decodeBody[types.MonitorResponse](t, w)
				assert.Empty(t, resp.RunID)
				assert.Equal(t, types.RunStatusFailed, resp.Status)
			}
		})
	}
}

func wsURL(srv *httptest.Server, runID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/monitor/ws/" + runID
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMonitorWebSocket_StreamsUntilCompleted(t *testing.T) {
	env := newTestEnv(t, &lineAgent{lines: agentOutput()})
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	runID, err := env.orch.Start(context.Background(), []string{"詐騙"})
	require.NoError(t, err)

	conn := dial(t, wsURL(srv, runID.String()))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck

	var got []types.ProgressType
	var last map[string]any
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		got = append(got, types.ProgressType(msg["type"].(string)))
		if msg["type"] == string(types.ProgressCompleted) || msg["type"] == string(types.ProgressError) {
			last = msg
			break
		}
	}

	assert.Contains(t, got, types.ProgressKeyword)
	assert.Contains(t, got, types.ProgressPipelineStats)
	require.NotNil(t, last)
	assert.Equal(t, string(types.ProgressCompleted), last["type"])
	data := last["data"].(map[string]any)
	assert.Equal(t, runID.String(), data["run_id"])
	assert.Equal(t, true, data["report_available"])

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func TestMonitorWebSocket_UnknownRun(t *testing.T) {
	env := newTestEnv(t, &lineAgent{})
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	conn := dial(t, wsURL(srv, uuid.New().String()))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseRunUnavailable, closeErr.Code)
	assert.Equal(t, "Run not found", closeErr.Text)
}

func TestMonitorWebSocket_NoActiveMonitor(t *testing.T) {
	env := newTestEnv(t, &lineAgent{})
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	runID := uuid.New()
	require.NoError(t, env.store.CreateRun(context.Background(), runID, []string{"AI"}))

	conn := dial(t, wsURL(srv, runID.String()))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseRunUnavailable, closeErr.Code)
	assert.Equal(t, "No active monitor for this run", closeErr.Text)
}

func TestMonitorWebSocket_SecondObserverRejected(t *testing.T) {
	env := newTestEnv(t, &lineAgent{block: true})
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	runID, err := env.orch.Start(context.Background(), []string{"AI"})
	require.NoError(t, err)

	first := dial(t, wsURL(srv, runID.String()))
	first.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	_, _, err = first.ReadMessage()
	require.NoError(t, err, "first observer receives progress")

	second := dial(t, wsURL(srv, runID.String()))
	second.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	_, _, err = second.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseRunUnavailable, closeErr.Code)
}

func TestMonitorWebSocket_InvalidRunID(t *testing.T) {
	env := newTestEnv(t, &lineAgent{})
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "not-a-uuid"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMonitorWebSocket_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, &lineAgent{block: true})
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	runID, err := env.orch.Start(context.Background(), []string{"AI"})
	require.NoError(t, err)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, runID.String()), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	return events
}

func TestMonitorStream_SSE(t *testing.T) {
	env := newTestEnv(t, &lineAgent{lines: agentOutput()})
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	runID, err := env.orch.Start(context.Background(), []string{"詐騙"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/monitor/stream/"+runID.String(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, resp)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "completed", last.name)

	var msg types.ProgressMessage
	require.NoError(t, json.Unmarshal([]byte(last.data), &msg))
	assert.Equal(t, types.ProgressCompleted, msg.Type)

	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.name)
	}
	assert.Contains(t, names, "keyword_progress")
	assert.Equal(t, "status", names[0])
}

func TestMonitorStream_Errors(t *testing.T) {
	env := newTestEnv(t, &lineAgent{})

	w := env.do(t, http.MethodGet, "/api/monitor/stream/NOT-A-UUID", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/monitor/stream/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Run not found")

	runID := uuid.New()
	require.NoError(t, env.store.CreateRun(context.Background(), runID, []string{"AI"}))
	w = env.do(t, http.MethodGet, "/api/monitor/stream/"+runID.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "No active monitor")
}
