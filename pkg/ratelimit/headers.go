package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Response headers carrying the quota of the endpoint that was called.
const (
	HeaderRemaining = "X-Rate-Limit-Remaining"
	HeaderReset     = "X-Rate-Limit-Reset"
)

// ParseHeaders reads the quota headers. ok is false when either header is
// missing, which the provider does intermittently. The reset header is an
// absolute Unix timestamp.
func ParseHeaders(headers http.Header, resource string, now time.Time) (state QuotaState, ok bool, err error) {
	remainStr := headers.Get(HeaderRemaining)
	resetStr := headers.Get(HeaderReset)
	if remainStr == "" || resetStr == "" {
		return QuotaState{}, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return QuotaState{}, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return QuotaState{}, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	if remain < 0 {
		remain = 0
	}

	return QuotaState{
		Resource:   resource,
		Remaining:  remain,
		ResetAt:    time.Unix(reset, 0),
		LastUpdate: now,
	}, true, nil
}
