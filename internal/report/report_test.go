package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzrong0203/memo-run/internal/schemas"
	"github.com/lzrong0203/memo-run/internal/scoring"
	"github.com/lzrong0203/memo-run/internal/types"
)

func intPtr(v int) *int { return &v }

func testPost(id string, importance int, categories ...string) types.Post {
	return types.Post{
		ID:      types.PostID(id),
		Content: "content " + id,
		Author:  "author" + id,
		Link:    "https://www.threads.net/post/" + id,
		Analysis: &types.Analysis{
			Categories: categories,
			Importance: importance,
			Summary:    "summary " + id,
		},
	}
}

func ids(posts []types.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, string(p.ID))
	}
	return out
}

func TestClassifyByCategory(t *testing.T) {
	posts := []types.Post{
		testPost("a", 5, "政治", "經濟"),
		testPost("b", 5, "社會"),
		testPost("c", 5, "經濟"),
		{ID: "d", Content: "no analysis", Link: "l"},
	}

	buckets := ClassifyByCategory(posts)
	require.Len(t, buckets, 3)
	assert.Equal(t, "政治", buckets[0].Name)
	assert.Equal(t, []string{"a"}, ids(buckets[0].Posts))
	assert.Equal(t, "經濟", buckets[1].Name)
	assert.Equal(t, []string{"a", "c"}, ids(buckets[1].Posts))
	assert.Equal(t, "社會", buckets[2].Name)
}

func TestIdentifyBigFish(t *testing.T) {
	adjusted := testPost("adj", 5, "財經")
	adjusted.Analysis.AdjustedImportance = intPtr(10)

	posts := []types.Post{
		testPost("nine", 9, "政治"),
		testPost("eight-three", 8, "a", "b", "c"),
		testPost("eight-two", 8, "a", "b"),
		testPost("seven-four", 7, "a", "b", "c", "d"),
		adjusted,
		testPost("nine-too", 9),
	}

	fish := IdentifyBigFish(posts)
	assert.Equal(t, []string{"adj", "nine", "nine-too", "eight-three"}, ids(fish))
}

func TestIdentifyBigFish_None(t *testing.T) {
	fish := IdentifyBigFish([]types.Post{testPost("a", 3)})
	assert.NotNil(t, fish)
	assert.Empty(t, fish)
}

func TestCategoryStats(t *testing.T) {
	posts := []types.Post{
		testPost("a", 5, "經濟", "政治"),
		testPost("b", 5, "政治"),
		testPost("c", 5, "社會"),
	}

	stats := CategoryStats(ClassifyByCategory(posts))
	assert.Equal(t, []CategoryStat{
		{Name: "政治", Count: 2, Percentage: 66.7},
		{Name: "經濟", Count: 1, Percentage: 33.3},
		{Name: "社會", Count: 1, Percentage: 33.3},
	}, stats)
}

func TestCategoryStats_FallsBackToLink(t *testing.T) {
	a := testPost("", 5, "x")
	a.Link = "https://threads.net/1"
	b := testPost("", 5, "x")
	b.Link = "https://threads.net/2"

	stats := CategoryStats(ClassifyByCategory([]types.Post{a, b}))
	require.Len(t, stats, 1)
	assert.Equal(t, 100.0, stats[0].Percentage)
}

func TestCategoryStats_Empty(t *testing.T) {
	assert.Empty(t, CategoryStats(nil))
}

func sampleData() *types.MonitoringData {
	fish := testPost("1", 9, "政治", "社會")
	fish.Analysis.Entities = &types.Entities{Persons: []string{"王小明"}, Locations: []string{"台北"}}
	fish.Analysis.Reasoning = "影響範圍大"
	fish.Analysis.AdjustedImportance = intPtr(11)
	fish.Analysis.BonusDetail = []types.BonusDetail{{RuleName: "在地", Bonus: 2}}

	return &types.MonitoringData{
		AnalyzedPosts: []types.Post{fish, testPost("2", 4, "政治"), testPost("3", 6)},
		Stats:         types.Stats{TotalSearched: intPtr(40), FilteredByDedup: intPtr(5)},
		Keywords:      []string{"台積電", "AI"},
		Timestamp:     "2026-01-02T03:04:05",
	}
}

func TestMarkdownReport(t *testing.T) {
	md := MarkdownReport(sampleData())

	assert.True(t, strings.HasPrefix(md, "# Threads 輿情戰報\n"))
	assert.Contains(t, md, "**生成時間**: 2026-01-02T03:04:05")
	assert.Contains(t, md, "**監控關鍵字**: 台積電, AI")
	assert.Contains(t, md, "**有效貼文數**: 3 篇")
	assert.Contains(t, md, "本次監控週期共掃描 40 筆貼文，經雙重過濾後篩選出 3 筆有效內容，發現 1 個重大議題。")
	assert.Contains(t, md, "| 總掃描數 | 40 |")
	assert.Contains(t, md, "| 硬性過濾移除 | N/A |")
	assert.Contains(t, md, "| 去重移除 | 5 |")
	assert.Contains(t, md, "| 有效貼文 | 3 |")
	assert.Contains(t, md, "| 政治 | 2 | 100.0% |")
	assert.Contains(t, md, "## 大魚警報（重大議題）")
	assert.Contains(t, md, "### 1. [政治][社會] summary 1")
	assert.Contains(t, md, "- **重要性**: 11/10（原始 9，加分: 在地+2）")
	assert.Contains(t, md, "- **人物**: 王小明")
	assert.Contains(t, md, "- **地點**: 台北")
	assert.NotContains(t, md, "- **組織**")
	assert.Contains(t, md, "- **分析**: 影響範圍大")
	assert.Contains(t, md, "### 政治（2 篇）")
	assert.Contains(t, md, "1. [11/10] summary 1")
	assert.Contains(t, md, "   - @author2 | [原文](https://www.threads.net/post/2)")
	assert.True(t, strings.HasSuffix(md, "*報告由 OpenClaw AI Agent 自動產生*"))
}

func TestMarkdownReport_NoBigFish(t *testing.T) {
	data := &types.MonitoringData{
		AnalyzedPosts: []types.Post{testPost("1", 3, "其他")},
		Keywords:      []string{"kw"},
		Timestamp:     "t",
	}

	md := MarkdownReport(data)
	assert.NotContains(t, md, "大魚警報")
	assert.Contains(t, md, "經雙重過濾後篩選出 1 筆有效內容。")
	assert.Contains(t, md, "| 總掃描數 | N/A |")
	assert.Contains(t, md, "| 有效貼文 | 1 |")
}

func TestLineSummary(t *testing.T) {
	out := LineSummary(sampleData(), "https://example.com/report")

	lines := strings.Split(out, "\n")
	assert.Equal(t, "🔔 Threads 監控通知", lines[0])
	assert.Equal(t, "📊 掃描 40 筆 → 有效 3 筆", lines[1])
	assert.Equal(t, "🔑 關鍵字: 台積電, AI", lines[2])
	assert.Contains(t, out, "🐟 大魚警報（1 則）:\n[11/10] summary 1\n→ https://www.threads.net/post/1")
	assert.Contains(t, out, "📋 其他重點:\n• [其他] summary 3\n  → https://www.threads.net/post/3\n• [政治] summary 2")
	assert.True(t, strings.HasSuffix(out, "📄 完整戰報: https://example.com/report"))
}

func manyPosts(n int) []types.Post {
	posts := make([]types.Post, 0, n)
	for i := 0; i < n; i++ {
		p := testPost(fmt.Sprintf("%d", i), 5, "社會")
		p.Analysis.Summary = strings.Repeat("測", 80)
		posts = append(posts, p)
	}
	return posts
}

func TestLineSummary_Truncates(t *testing.T) {
	data := &types.MonitoringData{AnalyzedPosts: manyPosts(200), Keywords: []string{"kw"}}

	out := LineSummary(data, "")
	assert.LessOrEqual(t, utf8.RuneCountInString(out), MaxLineMessageLength)
	assert.True(t, strings.HasSuffix(out, lineMoreMarker))
}

func TestTelegramSummary(t *testing.T) {
	out := TelegramSummary(sampleData(), "")

	assert.True(t, strings.HasPrefix(out, "📊 *Threads 輿情戰報*\n\n掃描 40 筆 → 有效 3 筆\n關鍵字: 台積電, AI"))
	assert.Contains(t, out, "🚨 *發現 1 個重大議題*")
	assert.Contains(t, out, "*[11/10]* summary 1\n[查看原文](https://www.threads.net/post/1)")
	assert.Contains(t, out, "• [政治] summary 2 [原文](https://www.threads.net/post/2)")
	assert.NotContains(t, out, "完整戰報")
}

func TestTelegramSummary_Truncates(t *testing.T) {
	data := &types.MonitoringData{AnalyzedPosts: manyPosts(200), Keywords: []string{"kw"}}

	out := TelegramSummary(data, "")
	assert.LessOrEqual(t, utf8.RuneCountInString(out), MaxTelegramMessageLength)
	assert.True(t, strings.HasSuffix(out, telegramMoreMarker))
}

func TestSummaries_NeverTruncateBigFish(t *testing.T) {
	posts := manyPosts(100)
	for i := range posts {
		posts[i].Analysis.Importance = 10
	}
	data := &types.MonitoringData{AnalyzedPosts: posts, Keywords: []string{"kw"}}

	out := TelegramSummary(data, "")
	assert.Equal(t, 100, strings.Count(out, "[查看原文]"))
	assert.NotContains(t, out, telegramMoreMarker)
}

func TestReportFilename(t *testing.T) {
	assert.Equal(t, "report_20260102_030405.md", ReportFilename("2026-01-02T03:04:05"))
	assert.Equal(t, "report_20260102_030405.md", ReportFilename("2026-01-02T03:04:05.123456"))
	assert.Equal(t, "report_20260102_030405.md", ReportFilename("2026-01-02T03:04:05Z"))
	assert.Regexp(t, `^report_\d{8}_\d{6}\.md$`, ReportFilename("yesterday"))
}

func TestSaveReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")

	path, err := SaveReport("# hi", dir, "2026-01-02T03:04:05")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_20260102_030405.md"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(content))
}

const composePayload = `{
  "analyzed_posts": [
    {"id": 1, "content": "台北 詐騙集團落網", "link": "https://www.threads.net/post/1",
     "analysis": {"categories": ["社會"], "importance": 7, "summary": "詐騙"}}
  ],
  "stats": {"total_searched": 10, "valid_count": 1},
  "keywords": ["詐騙"],
  "timestamp": "2026-03-04T05:06:07"
}`

func TestComposer_Compose(t *testing.T) {
	composer := &Composer{
		ReportsDir: t.TempDir(),
		Scoring: scoring.Config{
			Rules:    []scoring.Rule{{Name: "在地", Keywords: []string{"台北"}, Bonus: 2}},
			MaxScore: 15,
		},
	}

	out, err := composer.Compose(context.Background(), []byte(composePayload))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(composer.ReportsDir, "report_20260304_050607.md"), out.ReportPath)
	assert.FileExists(t, out.ReportPath)
	require.Len(t, out.Data.AnalyzedPosts, 1)
	assert.Equal(t, 9, out.Data.AnalyzedPosts[0].EffectiveImportance())
	assert.Contains(t, out.Markdown, "加分: 在地+2")
	assert.Contains(t, out.LineSummary, "🐟 大魚警報（1 則）:")
	assert.Contains(t, out.TelegramSummary, "*[9/10]* 詐騙")
}

type stubPublisher struct {
	url         string
	err         error
	filename    string
	description string
	content     string
}

func (p *stubPublisher) PublishReport(_ context.Context, filename, description, content string) (string, error) {
	p.filename, p.description, p.content = filename, description, content
	return p.url, p.err
}

func TestComposer_PublishesReport(t *testing.T) {
	pub := &stubPublisher{url: "https://gist.github.com/memo/abc"}
	composer := &Composer{ReportsDir: t.TempDir(), ReportURL: "https://fallback.example", Publisher: pub}

	out, err := composer.Compose(context.Background(), []byte(composePayload))
	require.NoError(t, err)

	assert.Equal(t, "report_20260304_050607.md", pub.filename)
	assert.Equal(t, "Threads 輿情戰報 - 詐騙 (2026-03-04)", pub.description)
	assert.Equal(t, out.Markdown, pub.content)
	assert.Equal(t, "https://gist.github.com/memo/abc", out.ReportURL)
	assert.True(t, out.Published)
	assert.Contains(t, out.LineSummary, "📄 完整戰報: https://gist.github.com/memo/abc")
	assert.Contains(t, out.TelegramSummary, "(https://gist.github.com/memo/abc)")
	assert.NotContains(t, out.LineSummary, "fallback.example")
}

func TestComposer_PublishFailureKeepsReportURL(t *testing.T) {
	composer := &Composer{
		ReportsDir: t.TempDir(),
		ReportURL:  "https://fallback.example/r",
		Publisher:  &stubPublisher{err: errors.New("gist error: 401 Unauthorized")},
	}

	out, err := composer.Compose(context.Background(), []byte(composePayload))
	require.NoError(t, err, "upload failures do not fail the report")
	assert.FileExists(t, out.ReportPath)
	assert.Equal(t, "https://fallback.example/r", out.ReportURL)
	assert.False(t, out.Published)
	assert.Contains(t, out.LineSummary, "https://fallback.example/r")

	out, err = (&Composer{ReportsDir: t.TempDir()}).Compose(context.Background(), []byte(composePayload))
	require.NoError(t, err)
	assert.Empty(t, out.ReportURL)
	assert.NotContains(t, out.LineSummary, "完整戰報")
}

func TestComposer_InvalidPayload(t *testing.T) {
	composer := &Composer{ReportsDir: t.TempDir()}

	_, err := composer.Compose(context.Background(), []byte(`{"analyzed_posts": []}`))
	require.Error(t, err)

	var composeErr *ComposeError
	require.True(t, errors.As(err, &composeErr))
	assert.Equal(t, StageValidate, composeErr.Stage)

	var validationErr *schemas.ValidationError
	assert.True(t, errors.As(err, &validationErr))

	entries, err := os.ReadDir(composer.ReportsDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is saved for invalid payloads")
}

func TestComposer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Composer{ReportsDir: t.TempDir()}).Compose(ctx, []byte(composePayload))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewView(t *testing.T) {
	view := NewView(sampleData())
	assert.Len(t, view.AnalyzedPosts, 3)
	assert.Equal(t, []string{"1"}, ids(view.BigFish))
	require.NotEmpty(t, view.CategoryStats)
	assert.Equal(t, "政治", view.CategoryStats[0].Name)

	empty := NewView(&types.MonitoringData{})
	assert.NotNil(t, empty.AnalyzedPosts)
	assert.NotNil(t, empty.BigFish)
	assert.NotNil(t, empty.CategoryStats)
}
