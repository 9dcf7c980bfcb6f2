package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lzrong0203/memo-run/internal/types"
)

const notAvailable = "N/A"

func statValue(v *int) string {
	if v == nil {
		return notAvailable
	}
	return strconv.Itoa(*v)
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func summaryOr(p types.Post, contentRunes int) string {
	if s := p.Summary(); s != "" {
		return s
	}
	return truncateRunes(p.Content, contentRunes)
}

func authorOf(p types.Post) string {
	if p.Author == "" {
		return "unknown"
	}
	return p.Author
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

// MarkdownReport renders the full report for a monitoring payload.
func MarkdownReport(data *types.MonitoringData) string {
	posts := data.AnalyzedPosts
	buckets := ClassifyByCategory(posts)
	bigFish := IdentifyBigFish(posts)
	stats := CategoryStats(buckets)

	timestamp := data.Timestamp
	if timestamp == "" {
		timestamp = time.Now().Format(time.RFC3339)
	}

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# Threads 輿情戰報")
	line("")
	line("**生成時間**: %s", timestamp)
	line("**監控關鍵字**: %s", strings.Join(data.Keywords, ", "))
	line("**有效貼文數**: %d 篇", len(posts))
	line("")
	line("---")
	line("")

	line("## 執行摘要")
	line("")
	note := ""
	if len(bigFish) > 0 {
		note = fmt.Sprintf("，發現 %d 個重大議題", len(bigFish))
	}
	line("本次監控週期共掃描 %s 筆貼文，經雙重過濾後篩選出 %d 筆有效內容%s。",
		statValue(data.Stats.TotalSearched), len(posts), note)
	line("")

	valid := strconv.Itoa(len(posts))
	if data.Stats.ValidCount != nil {
		valid = strconv.Itoa(*data.Stats.ValidCount)
	}
	line("| 項目 | 數量 |")
	line("|------|------|")
	line("| 總掃描數 | %s |", statValue(data.Stats.TotalSearched))
	line("| 硬性過濾移除 | %s |", statValue(data.Stats.FilteredByHardRules))
	line("| 去重移除 | %s |", statValue(data.Stats.FilteredByDedup))
	line("| AI 過濾移除 | %s |", statValue(data.Stats.FilteredByAI))
	line("| 有效貼文 | %s |", valid)
	line("")

	if len(stats) > 0 {
		line("### 議題分布")
		line("")
		line("| 類別 | 數量 | 百分比 |")
		line("|------|------|--------|")
		for _, cs := range stats {
			line("| %s | %d | %s%% |", cs.Name, cs.Count, strconv.FormatFloat(cs.Percentage, 'f', 1, 64))
		}
		line("")
	}

	line("---")
	line("")

	if len(bigFish) > 0 {
		line("## 大魚警報（重大議題）")
		line("")
		for i, fish := range bigFish {
			writeBigFish(line, i+1, fish)
		}
		line("---")
		line("")
	}

	line("## 各類別詳情")
	line("")
	byName := make(map[string][]types.Post, len(buckets))
	for _, bucket := range buckets {
		byName[bucket.Name] = bucket.Posts
	}
	for _, cs := range stats {
		catPosts := append([]types.Post(nil), byName[cs.Name]...)
		sortByEffective(catPosts)
		line("### %s（%d 篇）", cs.Name, len(catPosts))
		line("")
		for j, p := range catPosts {
			line("%d. [%d/10] %s", j+1, p.EffectiveImportance(), summaryOr(p, 60))
			line("   - @%s | [原文](%s)", authorOf(p), p.Link)
			line("")
		}
	}

	line("---")
	line("")
	b.WriteString("*報告由 OpenClaw AI Agent 自動產生*")
	return b.String()
}

func writeBigFish(line func(string, ...any), n int, fish types.Post) {
	a := fish.Analysis
	if a == nil {
		a = &types.Analysis{}
	}

	line("### %d. [%s] %s", n, strings.Join(a.Categories, "]["), a.Summary)
	line("")
	if len(a.BonusDetail) > 0 {
		parts := make([]string, 0, len(a.BonusDetail))
		for _, d := range a.BonusDetail {
			parts = append(parts, fmt.Sprintf("%s+%d", d.RuleName, d.Bonus))
		}
		line("- **重要性**: %d/10（原始 %d，加分: %s）", fish.EffectiveImportance(), a.Importance, strings.Join(parts, " + "))
	} else {
		line("- **重要性**: %d/10", fish.EffectiveImportance())
	}
	line("- **作者**: @%s", authorOf(fish))
	line("- **時間**: %s", orNA(fish.Timestamp))
	line("- **摘要**: %s", a.Summary)

	if e := a.Entities; e != nil {
		if len(e.Persons) > 0 {
			line("- **人物**: %s", strings.Join(e.Persons, ", "))
		}
		if len(e.Locations) > 0 {
			line("- **地點**: %s", strings.Join(e.Locations, ", "))
		}
		if len(e.Organizations) > 0 {
			line("- **組織**: %s", strings.Join(e.Organizations, ", "))
		}
		if len(e.Events) > 0 {
			line("- **事件**: %s", strings.Join(e.Events, ", "))
		}
	}

	line("- **原文**: %s", fish.Link)
	line("- **分析**: %s", a.Reasoning)
	line("")
}
