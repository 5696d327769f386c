package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFormatPublishTime(t *testing.T) {
	t.Parallel()

	t.Run("zero yields empty string", func(t *testing.T) {
		t.Parallel()
		if got := FormatPublishTime(0); got != "" {
			t.Errorf("FormatPublishTime(0) = %q, want empty", got)
		}
	})

	t.Run("negative yields empty string", func(t *testing.T) {
		t.Parallel()
		if got := FormatPublishTime(-1); got != "" {
			t.Errorf("FormatPublishTime(-1) = %q, want empty", got)
		}
	})

	t.Run("millis round trip", func(t *testing.T) {
		t.Parallel()
		ts := time.Date(2023, 6, 15, 10, 30, 0, 0, time.Local)
		got := FormatPublishTime(ts.UnixMilli())
		if got != "2023-06-15 10:30:00" {
			t.Errorf("FormatPublishTime() = %q, want %q", got, "2023-06-15 10:30:00")
		}
	})
}

func TestThreadEmpty(t *testing.T) {
	t.Parallel()

	var empty Thread
	if !empty.Empty() {
		t.Error("zero Thread should be empty")
	}

	filled := Thread{All: []Comment{{ID: "1"}}}
	if filled.Empty() {
		t.Error("Thread with comments should not be empty")
	}
}

func TestThreadReplyCount(t *testing.T) {
	t.Parallel()

	thread := Thread{
		All: []Comment{
			{ID: "1", Replies: []Comment{{ID: "2", Kind: KindL2}, {ID: "3", Kind: KindL2}}},
			{ID: "4"},
			{ID: "5", Replies: []Comment{{ID: "6", Kind: KindL2}}},
		},
	}
	if got := thread.ReplyCount(); got != 3 {
		t.Errorf("ReplyCount() = %d, want 3", got)
	}
}

// Absent emotes must stay absent in serialized output, preserving the
// upstream distinction between "no emotes field" and "empty emotes".
func TestCommentEmotesOmittedWhenAbsent(t *testing.T) {
	t.Parallel()

	withEmotes := Comment{ID: "1", Kind: KindL1, Emotes: json.RawMessage(`[{"name":"cat"}]`)}
	withoutEmotes := Comment{ID: "2", Kind: KindL1}

	data, err := json.Marshal(withEmotes)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"emotes"`) {
		t.Errorf("comment with emotes should serialize them: %s", data)
	}

	data, err = json.Marshal(withoutEmotes)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"emotes"`) {
		t.Errorf("comment without emotes should omit the field: %s", data)
	}
}

func TestThreadJSONKeys(t *testing.T) {
	t.Parallel()

	thread := Thread{
		Hot: []Comment{{ID: "1", Kind: KindL1, Hot: true}},
		All: []Comment{{ID: "1", Kind: KindL1, Hot: true}},
	}
	data, err := json.Marshal(thread)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"hot_list"`, `"all_list"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("serialized thread missing %s: %s", key, data)
		}
	}
}
