package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/lzrong0203/memo-run/internal/schemas"
	"github.com/lzrong0203/memo-run/internal/scoring"
	"github.com/lzrong0203/memo-run/internal/types"
)

// DefaultReportsDir is where Markdown reports are written by default.
const DefaultReportsDir = "data/reports"

// Compose stages, reported in ComposeError.
const (
	StageValidate = "validate"
	StageDecode   = "decode"
	StageSave     = "save"
)

// ComposeError reports the stage at which composing a report failed.
type ComposeError struct {
	Stage string
	Cause error
}

func (e *ComposeError) Error() string {
	return fmt.Sprintf("report %s failed: %v", e.Stage, e.Cause)
}

func (e *ComposeError) Unwrap() error {
	return e.Cause
}

// Publisher uploads a Markdown report and returns its public URL.
type Publisher interface {
	PublishReport(ctx context.Context, filename, description, content string) (string, error)
}

// Outputs holds every artifact produced for one payload.
type Outputs struct {
	ReportPath string
	// ReportURL is the link used in the summaries, empty when there is none.
	ReportURL string
	// Published is set when ReportURL came from the Publisher.
	Published       bool
	Markdown        string
	LineSummary     string
	TelegramSummary string
	// Data is the payload after scoring.
	Data *types.MonitoringData
}

// Composer turns a raw monitoring payload into a saved report and summaries.
type Composer struct {
	ReportsDir string
	Scoring    scoring.Config
	// ReportURL, when set, is linked from the summaries.
	ReportURL string
	// Publisher, when set, uploads each report; its URL replaces ReportURL.
	Publisher Publisher
	Logger    *slog.Logger
}

func (c *Composer) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Prepare validates raw against the monitoring payload schema, decodes it and
// applies the scoring rules when any are configured. Schema violations are
// returned as a *ComposeError wrapping *schemas.ValidationError.
func (c *Composer) Prepare(raw []byte) (*types.MonitoringData, error) {
	if err := schemas.ValidateMonitoringData(raw); err != nil {
		return nil, &ComposeError{Stage: StageValidate, Cause: err}
	}

	var data types.MonitoringData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &ComposeError{Stage: StageDecode, Cause: err}
	}

	if c.Scoring.HasRules() {
		data.AnalyzedPosts = scoring.ApplyAll(data.AnalyzedPosts, c.Scoring)
		c.logger().Info("applied scoring rules", "rules", len(c.Scoring.Rules), "posts", len(data.AnalyzedPosts))
	}
	return &data, nil
}

// Compose prepares raw, renders and saves the Markdown report, and renders
// both chat summaries.
func (c *Composer) Compose(ctx context.Context, raw []byte) (*Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := c.Prepare(raw)
	if err != nil {
		return nil, err
	}

	markdown := MarkdownReport(data)

	dir := c.ReportsDir
	if dir == "" {
		dir = DefaultReportsDir
	}
	path, err := SaveReport(markdown, dir, data.Timestamp)
	if err != nil {
		return nil, &ComposeError{Stage: StageSave, Cause: err}
	}
	c.logger().Info("report saved", "path", path)

	url, published := c.Publish(ctx, data, markdown, filepath.Base(path))
	return &Outputs{
		ReportPath:      path,
		ReportURL:       url,
		Published:       published,
		Markdown:        markdown,
		LineSummary:     LineSummary(data, url),
		TelegramSummary: TelegramSummary(data, url),
		Data:            data,
	}, nil
}

// PublishDescription is the description of an uploaded report:
// "Threads 輿情戰報 - keywords (YYYY-MM-DD)".
func PublishDescription(data *types.MonitoringData) string {
	date := data.Timestamp
	if len(date) > 10 {
		date = date[:10]
	}
	return fmt.Sprintf("Threads 輿情戰報 - %s (%s)", strings.Join(data.Keywords, ", "), date)
}

// Publish uploads markdown through the Publisher and returns the URL the
// summaries should link, reporting whether it is the uploaded one. Without a
// Publisher, or when the upload fails, it returns ReportURL; upload failures
// are logged only.
func (c *Composer) Publish(ctx context.Context, data *types.MonitoringData, markdown, filename string) (string, bool) {
	if c.Publisher == nil {
		return c.ReportURL, false
	}
	url, err := c.Publisher.PublishReport(ctx, filename, PublishDescription(data), markdown)
	if err != nil {
		c.logger().Error("failed to publish report", "error", err)
		return c.ReportURL, false
	}
	c.logger().Info("report published", "url", url)
	return url, true
}

// View is the classified form of a payload served by the reports API.
type View struct {
	AnalyzedPosts []types.Post   `json:"analyzed_posts"`
	BigFish       []types.Post   `json:"big_fish"`
	CategoryStats []CategoryStat `json:"category_stats"`
}

// NewView classifies the posts of a prepared payload.
func NewView(data *types.MonitoringData) View {
	posts := data.AnalyzedPosts
	if posts == nil {
		posts = []types.Post{}
	}
	return View{
		AnalyzedPosts: posts,
		BigFish:       IdentifyBigFish(posts),
		CategoryStats: CategoryStats(ClassifyByCategory(posts)),
	}
}
