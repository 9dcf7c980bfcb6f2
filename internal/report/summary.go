package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lzrong0203/memo-run/internal/types"
)

// Message budgets in characters, and the headroom kept below each budget
// when adding "other posts" entries.
const (
	MaxLineMessageLength     = 5000
	lineMargin               = 50
	MaxTelegramMessageLength = 4096
	telegramMargin           = 30
)

const (
	lineMoreMarker     = "...更多內容見完整報告"
	telegramMoreMarker = "_...更多內容見完整報告_"
)

func categoryLabel(p types.Post) string {
	cats := p.Categories()
	if len(cats) == 0 {
		return "其他"
	}
	return strings.Join(cats, "/")
}

func runeLen(parts []string) int {
	return utf8.RuneCountInString(strings.Join(parts, "\n"))
}

// LineSummary renders a plain-text digest for LINE-style channels. Big fish
// are always listed; other posts are cut off with a marker once the message
// would come within lineMargin characters of MaxLineMessageLength.
func LineSummary(data *types.MonitoringData, reportURL string) string {
	posts := data.AnalyzedPosts
	bigFish := IdentifyBigFish(posts)

	parts := []string{
		"🔔 Threads 監控通知",
		fmt.Sprintf("📊 掃描 %s 筆 → 有效 %d 筆", statValue(data.Stats.TotalSearched), len(posts)),
		fmt.Sprintf("🔑 關鍵字: %s", strings.Join(data.Keywords, ", ")),
		"",
	}

	if len(bigFish) > 0 {
		parts = append(parts, fmt.Sprintf("🐟 大魚警報（%d 則）:", len(bigFish)))
		for _, fish := range bigFish {
			parts = append(parts,
				fmt.Sprintf("[%d/10] %s", fish.EffectiveImportance(), fish.Summary()),
				"→ "+fish.Link,
			)
		}
		parts = append(parts, "")
	}

	if others := otherPosts(posts, bigFish); len(others) > 0 {
		parts = append(parts, "📋 其他重點:")
		current := runeLen(parts)
		for _, p := range others {
			entry := fmt.Sprintf("• [%s] %s", categoryLabel(p), summaryOr(p, 40))
			urlLine := "  → " + p.Link
			candidate := utf8.RuneCountInString(entry) + 1 + utf8.RuneCountInString(urlLine)
			if current+candidate+2 > MaxLineMessageLength-lineMargin {
				parts = append(parts, lineMoreMarker)
				break
			}
			parts = append(parts, entry, urlLine)
			current = runeLen(parts)
		}
	}

	if reportURL != "" {
		parts = append(parts, "", "📄 完整戰報: "+reportURL)
	}
	return strings.Join(parts, "\n")
}

// TelegramSummary renders a Markdown digest for Telegram with the same
// truncation rule as LineSummary, against MaxTelegramMessageLength.
func TelegramSummary(data *types.MonitoringData, reportURL string) string {
	posts := data.AnalyzedPosts
	bigFish := IdentifyBigFish(posts)

	parts := []string{
		"📊 *Threads 輿情戰報*",
		"",
		fmt.Sprintf("掃描 %s 筆 → 有效 %d 筆", statValue(data.Stats.TotalSearched), len(posts)),
		fmt.Sprintf("關鍵字: %s", strings.Join(data.Keywords, ", ")),
		"",
	}

	if len(bigFish) > 0 {
		parts = append(parts, fmt.Sprintf("🚨 *發現 %d 個重大議題*", len(bigFish)), "")
		for _, fish := range bigFish {
			parts = append(parts,
				fmt.Sprintf("*[%d/10]* %s", fish.EffectiveImportance(), fish.Summary()),
				fmt.Sprintf("[查看原文](%s)", fish.Link),
				"",
			)
		}
	}

	if others := otherPosts(posts, bigFish); len(others) > 0 {
		parts = append(parts, "📋 *其他重點*", "")
		current := runeLen(parts)
		for _, p := range others {
			entry := fmt.Sprintf("• [%s] %s [原文](%s)", categoryLabel(p), summaryOr(p, 40), p.Link)
			if current+utf8.RuneCountInString(entry)+2 > MaxTelegramMessageLength-telegramMargin {
				parts = append(parts, telegramMoreMarker)
				break
			}
			parts = append(parts, entry)
			current = runeLen(parts)
		}
	}

	if reportURL != "" {
		parts = append(parts, "", fmt.Sprintf("📄 [完整戰報](%s)", reportURL))
	}
	return strings.Join(parts, "\n")
}
