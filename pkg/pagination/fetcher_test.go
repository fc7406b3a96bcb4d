package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/timeline-collector/internal/testutil"
)

const testBaseURL = "https://api.example.com/1.1/"

func TestNewFetchers_EmptySubject(t *testing.T) {
	if _, err := NewSearchFetcher(testBaseURL, ""); !errors.Is(err, ErrEmptySubject) {
		t.Errorf("NewSearchFetcher(\"\") error = %v, want ErrEmptySubject", err)
	}
	if _, err := NewUserFetcher(testBaseURL, ""); !errors.Is(err, ErrEmptySubject) {
		t.Errorf("NewUserFetcher(\"\") error = %v, want ErrEmptySubject", err)
	}
	if _, err := NewUserFetcher(testBaseURL, "@"); !errors.Is(err, ErrEmptySubject) {
		t.Errorf("NewUserFetcher(\"@\") error = %v, want ErrEmptySubject", err)
	}
}

func TestBuildRequest(t *testing.T) {
	search, err := NewSearchFetcher(testBaseURL, `"マジカルラブリー" AND -filter:retweets`)
	if err != nil {
		t.Fatalf("NewSearchFetcher() error = %v", err)
	}
	user, err := NewUserFetcher(testBaseURL, "@AbeShinzo")
	if err != nil {
		t.Fatalf("NewUserFetcher() error = %v", err)
	}

	tests := []struct {
		name       string
		fetcher    PageFetcher
		wantURL    string
		wantParams map[string]string
	}{
		{
			name:    "search",
			fetcher: search,
			wantURL: "https://api.example.com/1.1/search/tweets.json",
			wantParams: map[string]string{
				"q":     `"マジカルラブリー" AND -filter:retweets`,
				"count": "100",
				"lang":  "ja",
			},
		},
		{
			name:    "user",
			fetcher: user,
			wantURL: "https://api.example.com/1.1/statuses/user_timeline.json",
			wantParams: map[string]string{
				"screen_name": "AbeShinzo",
				"count":       "200",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.fetcher.BuildRequest()
			if err != nil {
				t.Fatalf("BuildRequest() error = %v", err)
			}
			if req.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", req.URL, tt.wantURL)
			}
			if len(req.Params) != len(tt.wantParams) {
				t.Errorf("Params = %v, want %d keys", req.Params, len(tt.wantParams))
			}
			for key, want := range tt.wantParams {
				if got := req.Params.Get(key); got != want {
					t.Errorf("Params[%q] = %q, want %q", key, got, want)
				}
			}
		})
	}
}

func TestRequestClone(t *testing.T) {
	search, _ := NewSearchFetcher(testBaseURL, "q")
	req, _ := search.BuildRequest()

	clone := req.Clone()
	clone.Params.Set("max_id", "10")

	if req.Params.Get("max_id") != "" {
		t.Error("mutating the clone changed the original params")
	}
}

func TestExtractItems_Search(t *testing.T) {
	search, _ := NewSearchFetcher(testBaseURL, "q")
	body := testutil.SearchPayload(
		testutil.Post{ID: 105, Text: "first", Author: "alice"},
		testutil.Post{ID: 104, Text: "second", Reshare: true},
	)

	items, err := search.ExtractItems([]byte(body))
	if err != nil {
		t.Fatalf("ExtractItems() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].ID != 105 || items[0].Text != "first" || items[0].Author != "alice" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[0].Reshare {
		t.Error("items[0] should not be a reshare")
	}
	if !items[1].Reshare {
		t.Error("items[1] should be a reshare")
	}
	want := time.Date(2018, 12, 31, 12, 0, 0, 0, time.UTC)
	if !items[0].CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", items[0].CreatedAt, want)
	}
	if len(items[0].Raw) == 0 {
		t.Error("Raw payload should be kept")
	}
}

func TestExtractItems_User(t *testing.T) {
	user, _ := NewUserFetcher(testBaseURL, "someone")
	body := testutil.TimelinePayload(
		testutil.Post{ID: 3, Text: "c"},
		testutil.Post{ID: 2, Text: "b"},
		testutil.Post{ID: 1, Text: "a"},
	)

	items, err := user.ExtractItems([]byte(body))
	if err != nil {
		t.Fatalf("ExtractItems() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	for i, wantID := range []int64{3, 2, 1} {
		if items[i].ID != wantID {
			t.Errorf("items[%d].ID = %d, want %d", i, items[i].ID, wantID)
		}
	}
}

func TestExtractItems_Empty(t *testing.T) {
	search, _ := NewSearchFetcher(testBaseURL, "q")
	user, _ := NewUserFetcher(testBaseURL, "someone")

	tests := []struct {
		name    string
		fetcher PageFetcher
		body    string
	}{
		{"search empty statuses", search, `{"statuses":[]}`},
		{"search missing statuses", search, `{"search_metadata":{}}`},
		{"user empty list", user, `[]`},
		{"user object payload", user, `{"errors":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := tt.fetcher.ExtractItems([]byte(tt.body))
			if err != nil {
				t.Fatalf("ExtractItems() error = %v", err)
			}
			if items == nil || len(items) != 0 {
				t.Errorf("items = %v, want empty non-nil slice", items)
			}
		})
	}
}

func TestExtractItems_InvalidJSON(t *testing.T) {
	search, _ := NewSearchFetcher(testBaseURL, "q")
	if _, err := search.ExtractItems([]byte(`{"statuses":[`)); !errors.Is(err, ErrMalformedPage) {
		t.Errorf("ExtractItems() error = %v, want ErrMalformedPage", err)
	}
}

func TestExtractItems_BadCreatedAt(t *testing.T) {
	search, _ := NewSearchFetcher(testBaseURL, "q")

	tests := []struct {
		name string
		body string
	}{
		{"unparsable date", `{"statuses":[{"id":7,"created_at":"yesterday","text":"x","user":{"screen_name":"a"}}]}`},
		{"missing date", `{"statuses":[{"id":7,"text":"x","user":{"screen_name":"a"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := search.ExtractItems([]byte(tt.body))
			if !errors.Is(err, ErrMalformedPage) {
				t.Errorf("ExtractItems() error = %v, want ErrMalformedPage", err)
			}
			if items != nil {
				t.Errorf("items = %v, want nil", items)
			}
		})
	}
}

func TestExtractQuota(t *testing.T) {
	search, _ := NewSearchFetcher(testBaseURL, "q")
	user, _ := NewUserFetcher(testBaseURL, "someone")
	reset := time.Unix(1403602426, 0)

	tests := []struct {
		name    string
		fetcher PageFetcher
		body    string
		want    int
		wantErr bool
	}{
		{
			name:    "search entry",
			fetcher: search,
			body:    testutil.QuotaPayload("search", "/search/tweets", 180, reset),
			want:    180,
		},
		{
			name:    "user entry",
			fetcher: user,
			body:    testutil.QuotaPayload("statuses", "/statuses/user_timeline", 0, reset),
			want:    0,
		},
		{
			name:    "search reading user payload",
			fetcher: search,
			body:    testutil.QuotaPayload("statuses", "/statuses/user_timeline", 10, reset),
			wantErr: true,
		},
		{
			name:    "missing resources",
			fetcher: user,
			body:    `{}`,
			wantErr: true,
		},
		{
			name:    "entry without remaining",
			fetcher: search,
			body:    `{"resources":{"search":{"/search/tweets":{"reset":1403602426}}}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remaining, resetAt, err := tt.fetcher.ExtractQuota([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedQuota) {
					t.Errorf("ExtractQuota() error = %v, want ErrMalformedQuota", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractQuota() error = %v", err)
			}
			if remaining != tt.want {
				t.Errorf("remaining = %d, want %d", remaining, tt.want)
			}
			if !resetAt.Equal(reset) {
				t.Errorf("resetAt = %v, want %v", resetAt, reset)
			}
		})
	}
}

func TestQuotaEntry(t *testing.T) {
	reset := time.Unix(1403602426, 0)

	tests := []struct {
		name     string
		entry    QuotaEntry
		fetcher  func() (PageFetcher, error)
		resource string
	}{
		{
			name:     "search",
			entry:    SearchQuota,
			fetcher:  func() (PageFetcher, error) { return NewSearchFetcher(testBaseURL, "q") },
			resource: "/search/tweets",
		},
		{
			name:     "user",
			entry:    UserQuota,
			fetcher:  func() (PageFetcher, error) { return NewUserFetcher(testBaseURL, "someone") },
			resource: "/statuses/user_timeline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.entry.QuotaResource() != tt.resource {
				t.Errorf("QuotaResource() = %q, want %q", tt.entry.QuotaResource(), tt.resource)
			}

			fetcher, err := tt.fetcher()
			if err != nil {
				t.Fatalf("fetcher error = %v", err)
			}
			if fetcher.QuotaResource() != tt.entry.QuotaResource() {
				t.Errorf("fetcher resource = %q, entry resource = %q", fetcher.QuotaResource(), tt.entry.QuotaResource())
			}

			body := []byte(testutil.QuotaPayload(tt.entry.Family, tt.entry.Path, 42, reset))
			remaining, resetAt, err := tt.entry.ExtractQuota(body)
			if err != nil {
				t.Fatalf("ExtractQuota() error = %v", err)
			}
			if remaining != 42 || !resetAt.Equal(reset) {
				t.Errorf("ExtractQuota() = %d, %v", remaining, resetAt)
			}
		})
	}
}
