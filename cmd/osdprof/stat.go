package main

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"osdprof/internal/stats"
	"osdprof/internal/storage"
)

func newStatCmd(root *rootOptions) *cobra.Command {
	var osdID string

	cmd := &cobra.Command{
		Use:   "stat {ops|historic} <db>",
		Short: "Report mean per-phase latencies over a collected database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			class := args[0]
			if class != "ops" && class != "historic" {
				return errors.Newf("type must be ops or historic, got %q", class)
			}

			log, err := root.newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			store, err := storage.OpenReadOnly(args[1])
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			means, err := stats.NewEngine(store, log).Compute(class, osdID)
			if err != nil {
				return err
			}
			return stats.Render(cmd.OutOrStdout(), means)
		},
	}
	cmd.Flags().StringVarP(&osdID, "osd-id", "i", "", "restrict to events from one OSD")
	return cmd
}
