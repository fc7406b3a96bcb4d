package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/timeline-collector/pkg/collector"
	"github.com/Sternrassler/timeline-collector/pkg/pagination"
	"github.com/Sternrassler/timeline-collector/pkg/ratelimit"
	"github.com/spf13/cobra"
)

// DefaultQuotaMaxAge is one provider rate limit window.
const DefaultQuotaMaxAge = 15 * time.Minute

var quotaEntries = map[string]pagination.QuotaEntry{
	"search": pagination.SearchQuota,
	"user":   pagination.UserQuota,
}

// quotaReport is what the quota command prints.
type quotaReport struct {
	ratelimit.QuotaState
	Cached bool `json:"cached"`
	Stale  bool `json:"stale"`
}

func newQuotaCmd(a *app) *cobra.Command {
	var (
		cached bool
		maxAge time.Duration
	)

	cmd := &cobra.Command{
		Use:   "quota <search|user>",
		Short: "Show the remaining quota of an endpoint",
		Long: `Looks up the remaining quota of an endpoint at the provider. With --cached
the last snapshot shared through Redis is printed instead, without any
provider request; "stale" marks snapshots older than --max-age.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"search", "user"},
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, ok := quotaEntries[args[0]]
			if !ok {
				return fmt.Errorf("unknown endpoint %q", args[0])
			}

			if cached {
				if a.store == nil {
					return errors.New("--cached needs a shared quota store (set redis.addr)")
				}
				return runCachedQuota(cmd.Context(), cmd.OutOrStdout(), a.store, entry, maxAge, time.Now())
			}

			gov := collector.NewGovernor(a.session, entry, a.collectorConfig())
			state, err := gov.Status(cmd.Context())
			if err != nil {
				return err
			}
			return writeQuota(cmd.OutOrStdout(), quotaReport{QuotaState: state})
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "Read the last shared snapshot instead of asking the provider")
	cmd.Flags().DurationVar(&maxAge, "max-age", DefaultQuotaMaxAge, "Age after which a cached snapshot is reported stale")

	return cmd
}

// runCachedQuota prints the stored snapshot for entry. It never contacts the
// provider.
func runCachedQuota(ctx context.Context, out io.Writer, store ratelimit.Store, entry pagination.QuotaEntry, maxAge time.Duration, now time.Time) error {
	state, err := store.Load(ctx, entry.QuotaResource())
	if err != nil {
		return fmt.Errorf("load cached quota for %s: %w", entry.QuotaResource(), err)
	}
	return writeQuota(out, quotaReport{
		QuotaState: *state,
		Cached:     true,
		Stale:      state.IsStale(maxAge, now),
	})
}

func writeQuota(out io.Writer, report quotaReport) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
