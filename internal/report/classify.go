// Package report classifies analyzed posts and renders the Markdown report
// and the chat-sized summaries sent to notification channels.
package report

import (
	"math"
	"sort"

	"github.com/lzrong0203/memo-run/internal/types"
)

// Big-fish thresholds on effective importance.
const (
	BigFishImportance         = 9
	BigFishMultiCatImportance = 8
	BigFishMinCategories      = 3
)

// CategoryBucket groups the posts tagged with one category.
type CategoryBucket struct {
	Name  string       `json:"name"`
	Posts []types.Post `json:"posts"`
}

// CategoryStat is the share of posts carrying a category.
type CategoryStat struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ClassifyByCategory buckets posts by category in first-seen order. A post
// with several categories lands in each of their buckets.
func ClassifyByCategory(posts []types.Post) []CategoryBucket {
	var buckets []CategoryBucket
	index := make(map[string]int)
	for _, p := range posts {
		for _, cat := range p.Categories() {
			i, ok := index[cat]
			if !ok {
				i = len(buckets)
				index[cat] = i
				buckets = append(buckets, CategoryBucket{Name: cat})
			}
			buckets[i].Posts = append(buckets[i].Posts, p)
		}
	}
	return buckets
}

// IsBigFish reports whether a post is a major issue.
func IsBigFish(p types.Post) bool {
	imp := p.EffectiveImportance()
	if imp >= BigFishImportance {
		return true
	}
	return imp >= BigFishMultiCatImportance && len(p.Categories()) >= BigFishMinCategories
}

// IdentifyBigFish returns the big-fish posts ordered by effective importance,
// highest first. Ties keep input order.
func IdentifyBigFish(posts []types.Post) []types.Post {
	fish := []types.Post{}
	for _, p := range posts {
		if IsBigFish(p) {
			fish = append(fish, p)
		}
	}
	sortByEffective(fish)
	return fish
}

// CategoryStats computes per-category counts. Percentages are over the
// distinct posts across all buckets, rounded to one decimal.
func CategoryStats(buckets []CategoryBucket) []CategoryStat {
	stats := []CategoryStat{}
	if len(buckets) == 0 {
		return stats
	}

	distinct := make(map[string]struct{})
	for _, b := range buckets {
		for _, p := range b.Posts {
			distinct[postKey(p)] = struct{}{}
		}
	}
	total := len(distinct)
	if total == 0 {
		total = 1
	}

	for _, b := range buckets {
		count := len(b.Posts)
		pct := float64(count) / float64(total) * 100
		stats = append(stats, CategoryStat{
			Name:       b.Name,
			Count:      count,
			Percentage: math.Round(pct*10) / 10,
		})
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Count > stats[j].Count
	})
	return stats
}

// postKey identifies a post by id, falling back to its link.
func postKey(p types.Post) string {
	if p.ID != "" {
		return string(p.ID)
	}
	return p.Link
}

func sortByEffective(posts []types.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].EffectiveImportance() > posts[j].EffectiveImportance()
	})
}

// otherPosts returns the posts that are not big fish, ordered by raw
// importance, highest first.
func otherPosts(posts, bigFish []types.Post) []types.Post {
	skip := make(map[string]struct{}, len(bigFish))
	for _, f := range bigFish {
		skip[postKey(f)] = struct{}{}
	}
	out := []types.Post{}
	for _, p := range posts {
		if _, ok := skip[postKey(p)]; ok {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance() > out[j].Importance()
	})
	return out
}
