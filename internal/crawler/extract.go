package crawler

import (
	"encoding/json"

	"loftergrab/internal/lofter"
)

// replyExtractor is one known shape of the reply-batch response body.
type replyExtractor struct {
	name    string
	extract func(env *lofter.Envelope) []lofter.RawComment
}

// replyExtractors lists every observed response layout of the reply
// endpoint, in the order they should be tried. The endpoint is behind
// an A/B test and answers with one of three shapes depending on the
// bucket the requesting device lands in.
//
// Design decision: The extractors run in a fixed order and the first
// one that yields comments wins because:
//  1. The shapes are mutually exclusive in practice, so order only
//     matters as a tiebreak
//  2. A single pass keeps the caller free of shape knowledge
//  3. New layouts slot in as one more entry without touching callers
var replyExtractors = []replyExtractor{
	{
		name: "data.list",
		extract: func(env *lofter.Envelope) []lofter.RawComment {
			if !env.HasData() {
				return nil
			}
			var data struct {
				List []lofter.RawComment `json:"list"`
			}
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return nil
			}
			return data.List
		},
	},
	{
		name: "top-level list",
		extract: func(env *lofter.Envelope) []lofter.RawComment {
			if len(env.List) == 0 {
				return nil
			}
			var list []lofter.RawComment
			if err := json.Unmarshal(env.List, &list); err != nil {
				return nil
			}
			return list
		},
	},
	{
		name: "data as array",
		extract: func(env *lofter.Envelope) []lofter.RawComment {
			if !env.HasData() {
				return nil
			}
			var list []lofter.RawComment
			if err := json.Unmarshal(env.Data, &list); err != nil {
				return nil
			}
			return list
		},
	},
}

// extractReplies pulls the reply list out of a reply-batch envelope,
// trying each known response shape in turn. It returns the extracted
// comments and the name of the shape that matched, or (nil, "") when
// no shape yields anything.
func extractReplies(env *lofter.Envelope) ([]lofter.RawComment, string) {
	if env == nil {
		return nil, ""
	}
	for _, e := range replyExtractors {
		if replies := e.extract(env); len(replies) > 0 {
			return replies, e.name
		}
	}
	return nil, ""
}
