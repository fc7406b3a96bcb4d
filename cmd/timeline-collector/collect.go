package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/timeline-collector/pkg/collector"
	"github.com/spf13/cobra"
)

// collectFlags are shared by the search and user commands.
type collectFlags struct {
	total           int
	textOnly        bool
	includeReshares bool
}

func (f *collectFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.total, "total", "n", -1, "Stop after this many posts (<= 0 collects until the provider runs out)")
	cmd.Flags().BoolVar(&f.textOnly, "text-only", false, "Write post texts instead of JSON objects")
	cmd.Flags().BoolVar(&f.includeReshares, "include-reshares", false, "Keep reshared posts")
}

func (f *collectFlags) options() collector.Options {
	return collector.Options{Total: f.total, IncludeReshares: f.includeReshares}
}

func newSearchCmd(a *app) *cobra.Command {
	flags := &collectFlags{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Collect posts matching a search query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := collector.BySearch(a.session, args[0], a.collectorConfig())
			if err != nil {
				return err
			}
			return runCollect(cmd.Context(), cmd.OutOrStdout(), c, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newUserCmd(a *app) *cobra.Command {
	flags := &collectFlags{}
	cmd := &cobra.Command{
		Use:   "user <handle>",
		Short: "Collect posts from a user's timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := collector.ByUser(a.session, args[0], a.collectorConfig())
			if err != nil {
				return err
			}
			return runCollect(cmd.Context(), cmd.OutOrStdout(), c, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

// runCollect writes one line per post to out.
func runCollect(ctx context.Context, out io.Writer, c *collector.Collector, flags *collectFlags) error {
	if flags.textOnly {
		for text, err := range c.Texts(ctx, flags.options()) {
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(out, text); err != nil {
				return fmt.Errorf("write text: %w", err)
			}
		}
		return nil
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	for item, err := range c.Collect(ctx, flags.options()) {
		if err != nil {
			return err
		}
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("write item %d: %w", item.ID, err)
		}
	}
	return nil
}
