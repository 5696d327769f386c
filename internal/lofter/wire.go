package lofter

import "encoding/json"

// Envelope is the outer JSON wrapper every comment API response uses.
// A zero Code means success. The payload under Data differs between the
// L1 and L2 endpoints (and between L2 endpoint versions), so it is kept
// raw here; List covers the L2 variant that skips the envelope and puts
// the reply batch at the top level.
type Envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
	List json.RawMessage `json:"list"`
}

// HasData reports whether the envelope carries a usable data payload.
// An absent field and an explicit null both count as missing.
func (e *Envelope) HasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

// RawBlogInfo is the author object nested in a raw comment record.
type RawBlogInfo struct {
	BlogNickName string      `json:"blogNickName"`
	BlogID       json.Number `json:"blogId"`
	BlogName     string      `json:"blogName"`
	SmallLogo    string      `json:"smallLogo"`
}

// RawComment is a comment record exactly as the API ships it.
// Identifiers are json.Number because the API emits them as bare
// integers while older payloads quoted them. Fields the crawler does
// not interpret (emotes, replyTo) stay raw and are passed through.
type RawComment struct {
	ID          json.Number     `json:"id"`
	Content     string          `json:"content"`
	PublishTime int64           `json:"publishTime"`
	LikeCount   int             `json:"likeCount"`
	IPLocation  string          `json:"ipLocation"`
	Quote       string          `json:"quote"`
	L2Count     int             `json:"l2Count"`
	L2Comments  []RawComment    `json:"l2Comments"`
	Emotes      json.RawMessage `json:"emotes"`
	ReplyTo     json.RawMessage `json:"replyTo"`
	Publisher   *RawBlogInfo    `json:"publisherBlogInfo"`
}

// L1Page is one decoded page of first-level comments.
type L1Page struct {
	// List holds the page's normal comments.
	List []RawComment

	// HotList holds the promoted comments the API surfaces separately.
	// Entries here usually repeat in List on some page.
	HotList []RawComment

	// NextOffset is the cursor for the following page. NoMorePages means
	// this was the last one.
	NextOffset int
}

// NoMorePages is the cursor value the API returns when pagination is done.
const NoMorePages = -1

// l1Data is the data payload of an L1 page response. Offset is a pointer
// because an absent cursor also means the end of pagination and must not
// be confused with a literal zero.
type l1Data struct {
	List    []RawComment `json:"list"`
	HotList []RawComment `json:"hotList"`
	Offset  *int         `json:"offset"`
}
