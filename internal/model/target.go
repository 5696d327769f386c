package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Target identification errors.
var (
	// ErrEmptyTarget is returned when the target string is empty.
	ErrEmptyTarget = errors.New("empty target")

	// ErrInvalidTarget is returned when the target is neither a
	// postId:blogId pair nor a recognized Lofter URL.
	ErrInvalidTarget = errors.New("invalid target: expected postId:blogId or a lofter.com view URL")

	// ErrInvalidPostID is returned when the post ID part is malformed.
	ErrInvalidPostID = errors.New("invalid post id")

	// ErrInvalidBlogID is returned when the blog ID part is malformed.
	// Blog IDs are numeric in every API the crawler talks to.
	ErrInvalidBlogID = errors.New("invalid blog id: must be numeric")
)

// Target identifies one post whose comment thread should be crawled.
type Target struct {
	// PostID is the post identifier used by the comment API.
	PostID string `json:"post_id"`

	// BlogID is the numeric blog identifier that owns the post.
	BlogID string `json:"blog_id"`
}

// String returns the canonical postId:blogId form.
func (t Target) String() string {
	return t.PostID + ":" + t.BlogID
}

// ParseTarget parses a crawl target from user input.
//
// Two forms are accepted:
//
//	postId:blogId              (e.g. "1069536298:507745")
//	https://www.lofter.com/front/blog/view.do?blogId=...&postId=...
//
// The post permalink form (name.lofter.com/post/xxx) is not accepted
// because it carries the blog name, not the numeric blog ID, and
// resolving names is outside this tool's job.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(strings.Trim(s, `"'`))
	if s == "" {
		return Target{}, ErrEmptyTarget
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return parseTargetURL(s)
	}

	postID, blogID, ok := strings.Cut(s, ":")
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, s)
	}
	return newTarget(postID, blogID)
}

// parseTargetURL extracts postId and blogId from a view.do style URL.
func parseTargetURL(s string) (Target, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if !strings.HasSuffix(u.Hostname(), ".lofter.com") && u.Hostname() != "lofter.com" {
		return Target{}, fmt.Errorf("%w: not a lofter.com URL", ErrInvalidTarget)
	}

	q := u.Query()
	postID := q.Get("postId")
	blogID := q.Get("blogId")
	if postID == "" || blogID == "" {
		return Target{}, fmt.Errorf("%w: URL is missing postId or blogId", ErrInvalidTarget)
	}
	return newTarget(postID, blogID)
}

// newTarget validates the two ID parts and builds a Target.
func newTarget(postID, blogID string) (Target, error) {
	postID = strings.TrimSpace(postID)
	blogID = strings.TrimSpace(blogID)

	if postID == "" || !isIDString(postID) {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidPostID, postID)
	}
	if blogID == "" || !isDigits(blogID) {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidBlogID, blogID)
	}
	return Target{PostID: postID, BlogID: blogID}, nil
}

// isIDString reports whether s looks like a Lofter identifier.
// Post IDs are digits in API form but may contain lowercase hex and
// underscores when copied out of permalinks.
func isIDString(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

// isDigits reports whether s consists only of ASCII digits.
func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
