package model

// Stats summarizes one crawled thread.
// It groups the derived numbers the report writers and the history
// command present, so they are computed once rather than per writer.
type Stats struct {
	// === Counts ===

	// TotalComments is the number of L1 comments in the all list.
	TotalComments int `json:"total_comments"`

	// HotComments is the number of comments in the hot list.
	HotComments int `json:"hot_comments"`

	// TotalReplies is the number of L2 replies across all comments.
	TotalReplies int `json:"total_replies"`

	// ExpectedReplies is the sum of the API's l2Count hints.
	ExpectedReplies int `json:"expected_replies"`

	// ReplyShortfalls is the number of L1 comments that resolved fewer
	// replies than the API promised.
	ReplyShortfalls int `json:"reply_shortfalls"`

	// === Engagement ===

	// TotalLikes is the like count summed over L1 comments and replies.
	TotalLikes int `json:"total_likes"`

	// TopLiked holds the most-liked comments, highest first.
	TopLiked []TopComment `json:"top_liked,omitempty"`

	// === Structure ===

	// QuoteClusters is the number of distinct non-empty quotes among
	// L1 comments, the group count the formatter's grouped mode shows.
	QuoteClusters int `json:"quote_clusters"`

	// IPLocations counts comments per reported location label.
	IPLocations map[string]int `json:"ip_locations,omitempty"`
}

// TopComment is a compact reference to a highly-liked comment.
type TopComment struct {
	// ID is the comment ID.
	ID string `json:"id"`

	// Author is the commenter's display name.
	Author string `json:"author,omitempty"`

	// Preview is a shortened form of the comment content.
	Preview string `json:"preview"`

	// LikeCount is the comment's like count.
	LikeCount int `json:"like_count"`
}
