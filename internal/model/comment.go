package model

import (
	"encoding/json"
	"time"
)

// Kind identifies the nesting level of a comment.
// The Lofter comment tree is exactly two levels deep: top-level comments
// (L1) and their replies (L2). Replies never carry replies of their own.
type Kind string

const (
	// KindL1 is a top-level comment attached directly to a post.
	KindL1 Kind = "L1"

	// KindL2 is a reply attached to an L1 comment.
	KindL2 Kind = "L2"
)

// TimeLayout is the display format for comment timestamps.
// It matches the format Lofter's own clients show (local time, no zone).
const TimeLayout = "2006-01-02 15:04:05"

// Author holds the commenter identity as reported by the API.
// All fields are optional; absent values stay empty strings.
type Author struct {
	// DisplayName is the commenter's nickname shown in the UI.
	DisplayName string `json:"display_name,omitempty"`

	// ID is the commenter's numeric blog ID, kept as a string because
	// the API is inconsistent about number width.
	ID string `json:"id,omitempty"`

	// BlogName is the commenter's blog subdomain name.
	BlogName string `json:"blog_name,omitempty"`

	// AvatarURL is the small avatar image URL.
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Comment is the canonical comment record.
// Every raw API record, whatever shape it arrived in, is normalized into
// this structure before anything else touches it.
//
// Design decision: We use one struct for both L1 and L2 comments with a
// Kind discriminator rather than two types because:
//  1. The fields are identical; only Replies/Hot are meaningful for L1
//  2. It keeps the formatter and persister free of type switches
//  3. It matches how the upstream API models the records
type Comment struct {
	// ID is the comment's identifier, unique within one thread.
	// Records without an ID are discarded during normalization.
	ID string `json:"id"`

	// Content is the comment text, trimmed of surrounding whitespace.
	Content string `json:"content"`

	// PublishedAtMillis is the raw publish timestamp in epoch milliseconds.
	PublishedAtMillis int64 `json:"published_at_millis,omitempty"`

	// PublishedAt is the display form of the publish timestamp.
	// Empty when the raw timestamp is zero or absent.
	PublishedAt string `json:"published_at,omitempty"`

	// LikeCount is the number of likes. Never negative.
	LikeCount int `json:"like_count"`

	// IPLocation is the coarse location label the API attaches, if any.
	IPLocation string `json:"ip_location,omitempty"`

	// Quote is the text this comment quotes, used for grouping in reports.
	Quote string `json:"quote,omitempty"`

	// Author identifies the commenter.
	Author Author `json:"author"`

	// Kind is L1 for top-level comments and L2 for replies.
	Kind Kind `json:"kind"`

	// Hot is true when the API promoted this comment to the hot list.
	// Only meaningful for L1 comments.
	Hot bool `json:"hot,omitempty"`

	// Replies holds the resolved L2 replies in arrival order.
	// Always empty for L2 comments.
	Replies []Comment `json:"replies,omitempty"`

	// ExpectedReplyCount is the API's hint for how many replies exist.
	// When it exceeds len(Replies) after fetching, the shortfall is
	// logged but not treated as an error.
	ExpectedReplyCount int `json:"expected_reply_count,omitempty"`

	// Emotes carries sticker descriptors verbatim. It is set only when
	// the raw record had a non-empty emotes field, so an absent field
	// stays absent in serialized output.
	Emotes json.RawMessage `json:"emotes,omitempty"`

	// ReplyTo carries the replied-to user object verbatim for L2 comments.
	ReplyTo json.RawMessage `json:"reply_to,omitempty"`
}

// FormatPublishTime converts epoch milliseconds to the display format.
// A zero or negative value yields the empty string.
func FormatPublishTime(millis int64) string {
	if millis <= 0 {
		return ""
	}
	return time.UnixMilli(millis).Format(TimeLayout)
}

// Thread is the aggregated two-list result of one comment fetch.
// Hot is always a subset of All: every hot comment appears in both lists
// with identical content. Within All, IDs are unique.
//
// A Thread lives for a single crawl. It is handed to the formatter and
// persister by value and never mutated after aggregation.
type Thread struct {
	// Hot contains the comments the API flagged as promoted, in the
	// order their pages arrived.
	Hot []Comment `json:"hot_list"`

	// All contains every comment, hot and normal, in page-arrival order.
	All []Comment `json:"all_list"`
}

// Empty reports whether the thread contains no comments at all.
// An empty thread is also the sentinel for a fetch that failed after
// exhausting retries.
func (t Thread) Empty() bool {
	return len(t.All) == 0
}

// ReplyCount returns the total number of L2 replies across all comments.
func (t Thread) ReplyCount() int {
	n := 0
	for _, c := range t.All {
		n += len(c.Replies)
	}
	return n
}
