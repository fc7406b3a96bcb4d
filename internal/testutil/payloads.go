package testutil

import (
	"encoding/json"
	"time"
)

// Post describes a fixture item.
type Post struct {
	ID      int64
	Text    string
	Author  string
	Reshare bool
}

// CreatedAtLayout is the provider's created_at format.
const CreatedAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

func postObject(p Post) map[string]any {
	author := p.Author
	if author == "" {
		author = "tester"
	}
	obj := map[string]any{
		"id":         p.ID,
		"id_str":     jsonID(p.ID),
		"created_at": time.Date(2018, 12, 31, 12, 0, 0, 0, time.UTC).Format(CreatedAtLayout),
		"text":       p.Text,
		"user":       map[string]any{"screen_name": author},
	}
	if p.Reshare {
		obj["retweeted_status"] = map[string]any{"id": p.ID + 1000000, "text": p.Text}
	}
	return obj
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

// SearchPayload renders a search response body.
func SearchPayload(posts ...Post) string {
	statuses := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		statuses = append(statuses, postObject(p))
	}
	b, _ := json.Marshal(map[string]any{
		"statuses":        statuses,
		"search_metadata": map[string]any{"count": len(posts)},
	})
	return string(b)
}

// TimelinePayload renders a user timeline response body.
func TimelinePayload(posts ...Post) string {
	items := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		items = append(items, postObject(p))
	}
	b, _ := json.Marshal(items)
	return string(b)
}

// QuotaPayload renders a rate_limit_status body with a single endpoint entry.
func QuotaPayload(family, path string, remaining int, resetAt time.Time) string {
	b, _ := json.Marshal(map[string]any{
		"rate_limit_context": map[string]any{"access_token": "token"},
		"resources": map[string]any{
			family: map[string]any{
				path: map[string]any{
					"limit":     180,
					"remaining": remaining,
					"reset":     resetAt.Unix(),
				},
			},
		},
	})
	return string(b)
}
