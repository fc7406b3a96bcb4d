package pagination

import (
	"encoding/json"
	"fmt"
	"time"
)

// CreatedAtLayout is the provider's created_at timestamp format.
const CreatedAtLayout = time.RubyDate

// Item is one retrieved post. Items are immutable once extracted.
type Item struct {
	// ID is the provider's numeric id; it decreases when paging backwards.
	ID int64 `json:"id"`

	// CreatedAt keeps the zone offset reported by the provider.
	CreatedAt time.Time `json:"created_at"`

	// Author is the author's handle without the leading '@'.
	Author string `json:"author"`

	Text string `json:"text"`

	// Reshare is true when the item reshares another item.
	Reshare bool `json:"reshare"`

	// Raw is the original item payload.
	Raw json.RawMessage `json:"-"`
}

type wireItem struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	Text      string `json:"text"`
	FullText  string `json:"full_text"`
	User      struct {
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	RetweetedStatus json.RawMessage `json:"retweeted_status"`
}

func decodeItem(raw []byte) (Item, error) {
	var w wireItem
	if err := json.Unmarshal(raw, &w); err != nil {
		return Item{}, err
	}

	text := w.Text
	if text == "" {
		text = w.FullText
	}

	created, err := time.Parse(CreatedAtLayout, w.CreatedAt)
	if err != nil {
		return Item{}, fmt.Errorf("id %d: created_at %q: %w", w.ID, w.CreatedAt, err)
	}

	item := Item{
		ID:        w.ID,
		CreatedAt: created,
		Author:    w.User.ScreenName,
		Text:      text,
		Reshare:   len(w.RetweetedStatus) > 0 && string(w.RetweetedStatus) != "null",
		Raw:       append(json.RawMessage(nil), raw...),
	}
	return item, nil
}
