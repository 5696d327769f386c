package report

import (
	"fmt"
	"strings"

	"loftergrab/internal/model"
)

// Transcript renders the lossy line-oriented listing of a thread: each
// comment's id and content, with replies indented beneath it. It walks
// the all list only; hot comments appear there too.
//
// The layout is intentionally minimal. The full data lives in the JSON
// artifact; this file exists for quick human scanning and diffing.
func Transcript(thread model.Thread) string {
	var sb strings.Builder

	for _, c := range thread.All {
		id := c.ID
		if id == "" {
			id = "unknown"
		}
		fmt.Fprintf(&sb, "[l1 %s]\n", id)
		fmt.Fprintf(&sb, "%s\n", c.Content)

		for _, r := range c.Replies {
			replyID := r.ID
			if replyID == "" {
				replyID = "unknown"
			}
			fmt.Fprintf(&sb, "   [l2 %s]\n", replyID)
			fmt.Fprintf(&sb, "    %s\n", r.Content)
		}

		sb.WriteString("\n")
	}

	return sb.String()
}
