package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"osdprof/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "osdprof",
		Short:         "Sample Ceph OSD internals and break down request latencies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to configuration file (YAML)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newCollectCmd(opts))
	cmd.AddCommand(newStatCmd(opts))
	cmd.AddCommand(newInfoCmd(opts))
	return cmd
}

// newLogger builds the logger handed to every component. There is no
// package-level logger anywhere in this program.
func (o *rootOptions) newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if o.verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	return config.Load(o.configPath)
}
