package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrCursorRegressed is returned when a page would move the cursor forward.
var ErrCursorRegressed = errors.New("pagination cursor did not decrease")

// ParamMaxID is the request parameter carrying the cursor.
const ParamMaxID = "max_id"

// Cursor is the "items with id at most MaxID" bound. The zero value is unset
// and requests the newest page.
type Cursor struct {
	maxID int64
	set   bool
}

// MaxID returns the current bound and whether it has been set.
func (c *Cursor) MaxID() (int64, bool) {
	return c.maxID, c.set
}

// Advance moves the bound below the smallest id in items. The bound must
// strictly decrease; an empty page leaves the cursor untouched.
func (c *Cursor) Advance(items []Item) error {
	if len(items) == 0 {
		return nil
	}

	minID := items[0].ID
	for _, item := range items[1:] {
		if item.ID < minID {
			minID = item.ID
		}
	}

	next := minID - 1
	if c.set && next >= c.maxID {
		return fmt.Errorf("%w: %d >= %d", ErrCursorRegressed, next, c.maxID)
	}

	c.maxID = next
	c.set = true
	return nil
}

// Apply merges the bound into request parameters.
func (c *Cursor) Apply(params url.Values) {
	if !c.set {
		return
	}
	params.Set(ParamMaxID, strconv.FormatInt(c.maxID, 10))
}
