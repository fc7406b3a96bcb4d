package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptySubject is returned when a fetcher has no query or handle.
	ErrEmptySubject = errors.New("empty collection subject")

	// ErrMalformedQuota is returned when the rate limit status payload lacks
	// the fetcher's endpoint entry.
	ErrMalformedQuota = errors.New("malformed quota response")

	// ErrMalformedPage is returned when a page body is not valid JSON.
	ErrMalformedPage = errors.New("malformed page response")
)

// Page sizes are provider maximums, not guarantees.
const (
	SearchPageSize = 100
	UserPageSize   = 200

	// SearchLanguage restricts search results.
	SearchLanguage = "ja"
)

// Request is the URL and static parameters of one collection run.
type Request struct {
	URL    string
	Params url.Values
}

// Clone returns a copy whose Params can be mutated independently.
func (r Request) Clone() Request {
	params := make(url.Values, len(r.Params))
	for key, values := range r.Params {
		params[key] = append([]string(nil), values...)
	}
	return Request{URL: r.URL, Params: params}
}

// QuotaEntry locates one endpoint's entry in the rate_limit_status payload,
// resources.<Family>.<Path>. It reads quota without needing a subject.
type QuotaEntry struct {
	Family string
	Path   string
}

// Quota entries of the two collection endpoints.
var (
	SearchQuota = QuotaEntry{Family: "search", Path: "/search/tweets"}
	UserQuota   = QuotaEntry{Family: "statuses", Path: "/statuses/user_timeline"}
)

// QuotaResource is the endpoint path the quota applies to.
func (q QuotaEntry) QuotaResource() string { return q.Path }

// ExtractQuota reads the entry's remaining count and reset time.
func (q QuotaEntry) ExtractQuota(body []byte) (int, time.Time, error) {
	return extractQuota(body, q.Family, q.Path)
}

// PageFetcher knows how to build requests for one endpoint and how to read
// its pages and its rate limit entry. The set of fetchers is closed:
// SearchFetcher and UserFetcher.
type PageFetcher interface {
	// Name identifies the fetcher in logs and metrics.
	Name() string

	// BuildRequest returns the first request of a run.
	BuildRequest() (Request, error)

	// ExtractItems returns the items of a page in provider order. A page
	// without items yields an empty slice and no error.
	ExtractItems(body []byte) ([]Item, error)

	// ExtractQuota reads the endpoint's entry of a rate_limit_status payload.
	ExtractQuota(body []byte) (remaining int, resetAt time.Time, err error)

	// QuotaResource is the endpoint path the quota applies to.
	QuotaResource() string

	pageFetcher()
}

// SearchFetcher pages through search results for a query.
type SearchFetcher struct {
	baseURL string
	query   string
}

// NewSearchFetcher creates a fetcher for the search endpoint. The query is
// passed through untouched.
func NewSearchFetcher(baseURL, query string) (*SearchFetcher, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query", ErrEmptySubject)
	}
	return &SearchFetcher{baseURL: strings.TrimRight(baseURL, "/"), query: query}, nil
}

func (f *SearchFetcher) Name() string { return "search" }

func (f *SearchFetcher) QuotaResource() string { return SearchQuota.QuotaResource() }

func (f *SearchFetcher) BuildRequest() (Request, error) {
	if f.query == "" {
		return Request{}, fmt.Errorf("%w: search query", ErrEmptySubject)
	}
	params := url.Values{}
	params.Set("q", f.query)
	params.Set("count", strconv.Itoa(SearchPageSize))
	params.Set("lang", SearchLanguage)
	return Request{URL: f.baseURL + "/search/tweets.json", Params: params}, nil
}

func (f *SearchFetcher) ExtractItems(body []byte) ([]Item, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedPage
	}
	return decodeItems(gjson.GetBytes(body, "statuses"))
}

func (f *SearchFetcher) ExtractQuota(body []byte) (int, time.Time, error) {
	return SearchQuota.ExtractQuota(body)
}

func (f *SearchFetcher) pageFetcher() {}

// UserFetcher pages through one user's timeline.
type UserFetcher struct {
	baseURL string
	handle  string
}

// NewUserFetcher creates a fetcher for a user timeline. A leading '@' is
// stripped from the handle.
func NewUserFetcher(baseURL, handle string) (*UserFetcher, error) {
	handle = strings.TrimPrefix(handle, "@")
	if handle == "" {
		return nil, fmt.Errorf("%w: user handle", ErrEmptySubject)
	}
	return &UserFetcher{baseURL: strings.TrimRight(baseURL, "/"), handle: handle}, nil
}

func (f *UserFetcher) Name() string { return "user" }

func (f *UserFetcher) QuotaResource() string { return UserQuota.QuotaResource() }

func (f *UserFetcher) BuildRequest() (Request, error) {
	if f.handle == "" {
		return Request{}, fmt.Errorf("%w: user handle", ErrEmptySubject)
	}
	params := url.Values{}
	params.Set("screen_name", f.handle)
	params.Set("count", strconv.Itoa(UserPageSize))
	return Request{URL: f.baseURL + "/statuses/user_timeline.json", Params: params}, nil
}

func (f *UserFetcher) ExtractItems(body []byte) ([]Item, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedPage
	}
	return decodeItems(gjson.ParseBytes(body))
}

func (f *UserFetcher) ExtractQuota(body []byte) (int, time.Time, error) {
	return UserQuota.ExtractQuota(body)
}

func (f *UserFetcher) pageFetcher() {}

// decodeItems decodes an array of item objects. Anything that is not an
// array counts as a page without items.
func decodeItems(list gjson.Result) ([]Item, error) {
	if !list.IsArray() {
		return []Item{}, nil
	}

	elems := list.Array()
	items := make([]Item, 0, len(elems))
	for i, elem := range elems {
		item, err := decodeItem([]byte(elem.Raw))
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrMalformedPage, i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// extractQuota reads resources.<family>.<path>.{remaining,reset}.
func extractQuota(body []byte, family, path string) (int, time.Time, error) {
	entryPath := "resources." + family + "." + path
	entry := gjson.GetBytes(body, entryPath)
	if !entry.IsObject() {
		return 0, time.Time{}, fmt.Errorf("%w: %s not found", ErrMalformedQuota, entryPath)
	}

	remaining := entry.Get("remaining")
	reset := entry.Get("reset")
	if remaining.Type != gjson.Number || reset.Type != gjson.Number {
		return 0, time.Time{}, fmt.Errorf("%w: %s lacks remaining/reset", ErrMalformedQuota, entryPath)
	}

	n := int(remaining.Int())
	if n < 0 {
		n = 0
	}
	return n, time.Unix(reset.Int(), 0), nil
}
