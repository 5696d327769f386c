package lofter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loftergrab/internal/config"
	"loftergrab/internal/model"
)

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

func testTarget() model.Target {
	return model.Target{PostID: "1069536298", BlogID: "507745"}
}

func TestClientL1Page(t *testing.T) {
	t.Parallel()

	var gotQuery map[string]string
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		gotHeaders = r.Header.Clone()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": 0,
			"data": {
				"list": [{"id": 100, "content": "first"}],
				"hotList": [{"id": 100, "content": "first"}],
				"offset": 20
			}
		}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Cookie = "LOFTER-PHONE-LOGIN-AUTH=testvalue"
	client, err := NewClient(cfg, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	page, err := client.L1Page(context.Background(), testTarget(), 0)
	if err != nil {
		t.Fatalf("L1Page() error: %v", err)
	}

	if len(page.List) != 1 || page.List[0].ID.String() != "100" {
		t.Errorf("List = %+v, want one comment with id 100", page.List)
	}
	if len(page.HotList) != 1 {
		t.Errorf("HotList has %d entries, want 1", len(page.HotList))
	}
	if page.NextOffset != 20 {
		t.Errorf("NextOffset = %d, want 20", page.NextOffset)
	}

	// Query parameters the endpoint requires.
	wantQuery := map[string]string{
		"postId":          "1069536298",
		"blogId":          "507745",
		"offset":          "0",
		"product":         "lofter-android-8.2.18",
		"needGift":        "0",
		"openFansVipPlan": "0",
		"dunType":         "1",
	}
	for key, want := range wantQuery {
		if gotQuery[key] != want {
			t.Errorf("query %s = %q, want %q", key, gotQuery[key], want)
		}
	}

	// App-imitating headers and the configured cookie must be injected.
	if got := gotHeaders.Get("deviceid"); got != "3451efd56bgg6h47" {
		t.Errorf("deviceid header = %q", got)
	}
	if got := gotHeaders.Get("lofproduct"); got != "lofter-android-8.0.12" {
		t.Errorf("lofproduct header = %q", got)
	}
	if got := gotHeaders.Get("User-Agent"); got != "LOFTER-Android 8.0.12 (LM-V409N; Android 15; null) WIFI" {
		t.Errorf("user-agent header = %q", got)
	}
	if got := gotHeaders.Get("Cookie"); got != "LOFTER-PHONE-LOGIN-AUTH=testvalue" {
		t.Errorf("cookie header = %q", got)
	}
}

func TestClientL1PageMissingOffset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code": 0, "data": {"list": []}}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	page, err := client.L1Page(context.Background(), testTarget(), 0)
	if err != nil {
		t.Fatalf("L1Page() error: %v", err)
	}
	if page.NextOffset != NoMorePages {
		t.Errorf("NextOffset = %d, want NoMorePages when cursor is absent", page.NextOffset)
	}
}

func TestClientL1PageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{
			name:    "api error code",
			body:    `{"code": 500, "msg": "internal error"}`,
			wantErr: ErrAPIError,
		},
		{
			name:    "missing data",
			body:    `{"code": 0}`,
			wantErr: ErrMissingData,
		},
		{
			name:    "null data",
			body:    `{"code": 0, "data": null}`,
			wantErr: ErrMissingData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := NewClient(testConfig(), WithBaseURL(srv.URL))
			if err != nil {
				t.Fatal(err)
			}

			_, err = client.L1Page(context.Background(), testTarget(), 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("L1Page() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClientRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"code": 0, "data": {"list": [{"id": 1}], "offset": -1}}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	page, err := client.L1Page(context.Background(), testTarget(), 0)
	if err != nil {
		t.Fatalf("L1Page() should succeed on second attempt, got: %v", err)
	}
	if requests != 2 {
		t.Errorf("server saw %d requests, want 2", requests)
	}
	if page.NextOffset != NoMorePages {
		t.Errorf("NextOffset = %d, want -1", page.NextOffset)
	}
}

func TestClientRetriesExhausted(t *testing.T) {
	t.Parallel()

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.L1Page(context.Background(), testTarget(), 0)
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("L1Page() error = %v, want ErrRequestFailed", err)
	}
	if requests != config.DefaultMaxRetries {
		t.Errorf("server saw %d requests, want %d", requests, config.DefaultMaxRetries)
	}
}

func TestClientRetriesUndecodableBody(t *testing.T) {
	t.Parallel()

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.L1Page(context.Background(), testTarget(), 0)
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("L1Page() error = %v, want ErrRequestFailed", err)
	}
	if requests != config.DefaultMaxRetries {
		t.Errorf("server saw %d requests, want %d", requests, config.DefaultMaxRetries)
	}
}

func TestClientReplyBatchReturnsErrorEnvelope(t *testing.T) {
	t.Parallel()

	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		_, _ = w.Write([]byte(`{"code": 500, "msg": "busy"}`))
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	env, err := client.ReplyBatch(context.Background(), testTarget(), "250813233")
	if err != nil {
		t.Fatalf("ReplyBatch() should return error envelopes without failing, got: %v", err)
	}
	if env.Code != 500 {
		t.Errorf("Code = %d, want 500", env.Code)
	}

	wantQuery := map[string]string{
		"postId":  "1069536298",
		"blogId":  "507745",
		"id":      "250813233",
		"offset":  "0",
		"fromSrc": "",
		"fromId":  "",
	}
	for key, want := range wantQuery {
		got, ok := gotQuery[key]
		if !ok {
			t.Errorf("query %s missing", key)
			continue
		}
		if got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestClientContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RetryBaseDelay = time.Minute // retry wait must be interruptible
	client, err := NewClient(cfg, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = client.L1Page(ctx, testTarget(), 0)
	if err == nil {
		t.Fatal("L1Page() should fail when context is cancelled")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, should be prompt", elapsed)
	}
}

func TestClientUserAgentOverride(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"code": 0, "data": {"offset": -1}}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.UserAgent = "custom-agent/1.0"
	client, err := NewClient(cfg, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := client.L1Page(context.Background(), testTarget(), 0); err != nil {
		t.Fatal(err)
	}
	if gotUA != "custom-agent/1.0" {
		t.Errorf("user-agent = %q, want override", gotUA)
	}
}

func TestNewClientInvalidProxy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Proxy = "not-an-address"

	if _, err := NewClient(cfg); !errors.Is(err, ErrInvalidProxyAddress) {
		t.Errorf("NewClient() error = %v, want ErrInvalidProxyAddress", err)
	}
}

func TestIsValidProxyAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address string
		want    bool
	}{
		{"127.0.0.1:1080", true},
		{"localhost:9050", true},
		{"127.0.0.1", false},
		{"127.0.0.1:", false},
		{":1080", false},
		{"127.0.0.1:abc", false},
		{"127.0.0.1:70000", false},
		{"127.0.0.1:0", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			t.Parallel()

			if got := isValidProxyAddress(tt.address); got != tt.want {
				t.Errorf("isValidProxyAddress(%q) = %v, want %v", tt.address, got, tt.want)
			}
		})
	}
}

func TestHeaderInjectingTransportAppendsCookie(t *testing.T) {
	t.Parallel()

	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	transport := &headerInjectingTransport{
		base:    http.DefaultTransport,
		cookie:  "auth=secret",
		headers: map[string]string{"x-custom": "1"},
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Cookie", "existing=1")

	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if gotCookie != "existing=1; auth=secret" {
		t.Errorf("cookie = %q, want existing cookie preserved", gotCookie)
	}

	// The original request must not be mutated.
	if req.Header.Get("x-custom") != "" {
		t.Error("original request gained injected header")
	}
}
