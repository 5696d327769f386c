package crawler

import (
	"strings"

	"loftergrab/internal/lofter"
	"loftergrab/internal/model"
)

// normalizeComment converts one raw API record into the canonical form.
// Embedded replies are not resolved here; the fetcher handles those so
// that deduplication sees the full reply set.
//
// Records with an empty ID must be filtered out before calling this;
// normalizeComment itself does not reject them.
func normalizeComment(raw lofter.RawComment, kind model.Kind) model.Comment {
	c := model.Comment{
		ID:                 raw.ID.String(),
		Content:            strings.TrimSpace(raw.Content),
		PublishedAtMillis:  raw.PublishTime,
		PublishedAt:        model.FormatPublishTime(raw.PublishTime),
		LikeCount:          raw.LikeCount,
		IPLocation:         raw.IPLocation,
		Quote:              raw.Quote,
		Kind:               kind,
		ExpectedReplyCount: raw.L2Count,
	}
	if raw.Publisher != nil {
		c.Author = model.Author{
			DisplayName: raw.Publisher.BlogNickName,
			ID:          raw.Publisher.BlogID.String(),
			BlogName:    raw.Publisher.BlogName,
			AvatarURL:   raw.Publisher.SmallLogo,
		}
	}
	if hasRawValue(raw.Emotes) {
		c.Emotes = raw.Emotes
	}
	if kind == model.KindL2 && hasRawValue(raw.ReplyTo) {
		c.ReplyTo = raw.ReplyTo
	}
	return c
}

// hasRawValue reports whether a raw JSON fragment carries anything worth
// keeping. Absent fields, JSON null and empty arrays all count as empty
// so they stay out of serialized output.
func hasRawValue(raw []byte) bool {
	s := string(raw)
	return len(raw) > 0 && s != "null" && s != "[]"
}

// rawID returns the record's ID as a string, or "" when absent.
// The API emits IDs as JSON numbers; json.Number keeps the textual form
// so wide IDs survive untouched.
func rawID(raw lofter.RawComment) string {
	return raw.ID.String()
}
