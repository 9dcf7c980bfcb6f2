//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		want     []string
		wantErr  string
	}{
		{name: "single keyword", keywords: []string{"台積電"}, want: []string{"台積電"}},
		{name: "trims and drops empties", keywords: []string{"  詐騙 ", "", "   ", "AI"}, want: []string{"詐騙", "AI"}},
		{name: "punctuation allowed", keywords: []string{"台北市, 新北市", "covid-19", "選舉。結果"}, want: []string{"台北市, 新北市", "covid-19", "選舉。結果"}},
		{name: "full-width forms", keywords: []string{"ＡＩ"}, want: []string{"ＡＩ"}},
		{name: "empty list", keywords: nil, wantErr: "at least one keyword"},
		{name: "only blanks", keywords: []string{" ", ""}, wantErr: "non-empty"},
		{name: "too many", keywords: strings.Split("a,b,c,d,e,f,g,h,i,j,k", ","), wantErr: "at most 10"},
		{name: "too long", keywords: []string{strings.Repeat("長", 51)}, wantErr: "exceeds 50"},
		{name: "fifty characters ok", keywords: []string{strings.Repeat("長", 50)}, want: []string{strings.Repeat("長", 50)}},
		{name: "newline rejected", keywords: []string{"a\nb"}, wantErr: "invalid characters"},
		{name: "nul rejected", keywords: []string{"a\x00b"}, wantErr: "invalid characters"},
		{name: "shell metacharacters rejected", keywords: []string{"a;rm -rf"}, wantErr: "invalid characters"},
		{name: "quotes rejected", keywords: []string{`"x"`}, wantErr: "invalid characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := MonitorRequest{Keywords: tt.keywords}
			err := req.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Contains(t, verr.Message, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Keywords)
		})
	}
}

func TestParseRunID(t *testing.T) {
	id := uuid.New()

	got, err := ParseRunID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"", "not-a-uuid", strings.ToUpper(id.String()), "{" + id.String() + "}", "urn:uuid:" + id.String(), "../etc/passwd"} {
		_, err := ParseRunID(bad)
		assert.Error(t, err, bad)
	}
}

func TestPostID_UnmarshalJSON(t *testing.T) {
	var posts []Post
	err := json.Unmarshal([]byte(`[{"id":"abc"},{"id":42},{"id":null},{"id":1.5}]`), &posts)
	require.NoError(t, err)
	require.Len(t, posts, 4)
	assert.Equal(t, PostID("abc"), posts[0].ID)
	assert.Equal(t, PostID("42"), posts[1].ID)
	assert.Equal(t, PostID(""), posts[2].ID)
	assert.Equal(t, PostID("1.5"), posts[3].ID)

	var p Post
	assert.Error(t, json.Unmarshal([]byte(`{"id":{"nested":true}}`), &p))
}

func TestPost_EffectiveImportance(t *testing.T) {
	adjusted := 9
	assert.Equal(t, 0, (&Post{}).EffectiveImportance())
	assert.Equal(t, 7, (&Post{Analysis: &Analysis{Importance: 7}}).EffectiveImportance())
	assert.Equal(t, 9, (&Post{Analysis: &Analysis{Importance: 7, AdjustedImportance: &adjusted}}).EffectiveImportance())
}

func TestPost_CloneIsDeep(t *testing.T) {
	adjusted := 8
	orig := Post{
		ID:           "1",
		Content:      "content",
		BonusApplied: []string{"rule"},
		Analysis: &Analysis{
			Categories:         []string{"政治"},
			Importance:         5,
			AdjustedImportance: &adjusted,
			BonusDetail:        []BonusDetail{{RuleName: "rule", Bonus: 3}},
			Entities:           &Entities{Persons: []string{"someone"}},
		},
	}

	clone := orig.Clone()
	clone.BonusApplied[0] = "changed"
	clone.Analysis.Categories[0] = "changed"
	*clone.Analysis.AdjustedImportance = 1
	clone.Analysis.BonusDetail[0].Bonus = 0
	clone.Analysis.Entities.Persons[0] = "changed"

	assert.Equal(t, "rule", orig.BonusApplied[0])
	assert.Equal(t, "政治", orig.Analysis.Categories[0])
	assert.Equal(t, 8, *orig.Analysis.AdjustedImportance)
	assert.Equal(t, 3, orig.Analysis.BonusDetail[0].Bonus)
	assert.Equal(t, "someone", orig.Analysis.Entities.Persons[0])
}

func TestRunStatus_IsTerminal(t *testing.T) {
	assert.False(t, RunStatusPending.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusCompleted.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
}

func TestRun_Summary(t *testing.T) {
	report := "# report"
	run := Run{
		ID:             uuid.New(),
		Status:         RunStatusCompleted,
		ReportMarkdown: &report,
		Stats:          json.RawMessage(`{"total_searched": 12, "valid_count": 3}`),
	}

	s := run.Summary()
	assert.True(t, s.ReportAvailable)
	assert.Equal(t, []string{}, s.Keywords)
	require.NotNil(t, s.Stats)
	require.NotNil(t, s.Stats.TotalSearched)
	assert.Equal(t, 12, *s.Stats.TotalSearched)
	assert.Nil(t, s.Stats.FilteredByAI)

	run.Stats = json.RawMessage(`not json`)
	assert.Nil(t, run.Summary().Stats)
}

func TestRun_RecordHidesResult(t *testing.T) {
	report := "# report"
	run := Run{
		ID:             uuid.New(),
		Status:         RunStatusCompleted,
		Keywords:       []string{"AI"},
		Result:         json.RawMessage(`{"analyzed_posts": []}`),
		ReportMarkdown: &report,
	}

	raw, err := json.Marshal(run.Record())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, run.ID.String(), got["id"])
	assert.Equal(t, "# report", got["report_markdown"])
	assert.Equal(t, true, got["report_available"])
	assert.NotContains(t, got, "result")
}

func TestProgressMessage_JSON(t *testing.T) {
	id := uuid.MustParse("0b6a3f8e-5d0c-4a8e-9a55-6b7c2d1e0f11")
	data, err := json.Marshal(CompletedMessage(id, true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"completed","data":{"run_id":"0b6a3f8e-5d0c-4a8e-9a55-6b7c2d1e0f11","report_available":true}}`, string(data))

	data, err = json.Marshal(KeepaliveMessage())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"status","data":{"message":"waiting for progress..."}}`, string(data))

	assert.True(t, ErrorMessage("x").IsTerminal())
	assert.False(t, StatusMessage("x").IsTerminal())
}
