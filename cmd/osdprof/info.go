package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"osdprof/internal/storage"
)

func newInfoCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <db>",
		Short: "Show per-tag sample counts and time ranges of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.OpenReadOnly(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			summary, err := store.Summary()
			if err != nil {
				return err
			}

			tags := make([]string, 0, len(summary))
			for tag := range summary {
				tags = append(tags, tag)
			}
			sort.Strings(tags)

			out := cmd.OutOrStdout()
			for _, tag := range tags {
				s := summary[tag]
				fmt.Fprintf(out, "%-24s %6d samples  %s .. %s\n",
					tag, s.Count,
					time.UnixMilli(s.First).Format(time.RFC3339),
					time.UnixMilli(s.Last).Format(time.RFC3339))
			}
			return nil
		},
	}
}
