// Package insight derives summary statistics from a crawled comment
// thread. The numbers here feed the report writers and the history
// command, so they are computed once instead of per output format.
package insight

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"loftergrab/internal/model"
)

// topLikedLimit caps how many comments the top-liked ranking keeps.
const topLikedLimit = 5

// previewRunes is the length of the content preview in top-liked
// entries. The cut is by rune since most content is CJK.
const previewRunes = 50

// Analyze computes the statistics for one thread. It is pure and never
// fails; an empty thread yields zeroed stats.
func Analyze(thread model.Thread) *model.Stats {
	stats := &model.Stats{
		TotalComments: len(thread.All),
		HotComments:   len(thread.Hot),
	}

	quotes := make(map[string]bool)
	locations := make(map[string]int)

	for _, c := range thread.All {
		stats.TotalReplies += len(c.Replies)
		stats.ExpectedReplies += c.ExpectedReplyCount
		if c.ExpectedReplyCount > len(c.Replies) {
			stats.ReplyShortfalls++
		}

		stats.TotalLikes += c.LikeCount
		for _, r := range c.Replies {
			stats.TotalLikes += r.LikeCount
		}

		// Quotes are keyed the same way the grouped formatter buckets
		// them: trimmed and NFC-normalized, so visually identical
		// quotes in different composition forms count once.
		if q := norm.NFC.String(strings.TrimSpace(c.Quote)); q != "" {
			quotes[q] = true
		}

		if c.IPLocation != "" {
			locations[c.IPLocation]++
		}
	}

	stats.QuoteClusters = len(quotes)
	if len(locations) > 0 {
		stats.IPLocations = locations
	}
	stats.TopLiked = topLiked(thread.All)

	return stats
}

// topLiked ranks comments by like count, highest first. Ties keep their
// page-arrival order. Comments nobody liked do not make the list.
func topLiked(comments []model.Comment) []model.TopComment {
	liked := make([]model.Comment, 0, len(comments))
	for _, c := range comments {
		if c.LikeCount > 0 {
			liked = append(liked, c)
		}
	}
	if len(liked) == 0 {
		return nil
	}

	sort.SliceStable(liked, func(i, j int) bool {
		return liked[i].LikeCount > liked[j].LikeCount
	})

	if len(liked) > topLikedLimit {
		liked = liked[:topLikedLimit]
	}

	top := make([]model.TopComment, 0, len(liked))
	for _, c := range liked {
		top = append(top, model.TopComment{
			ID:        c.ID,
			Author:    c.Author.DisplayName,
			Preview:   preview(c.Content),
			LikeCount: c.LikeCount,
		})
	}
	return top
}

// preview shortens content to a single line of at most previewRunes
// runes, appending an ellipsis when cut.
func preview(content string) string {
	s := strings.Join(strings.Fields(content), " ")
	runes := []rune(s)
	if len(runes) <= previewRunes {
		return s
	}
	return string(runes[:previewRunes]) + "..."
}
