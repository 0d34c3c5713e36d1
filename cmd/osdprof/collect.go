package main

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"osdprof/internal/cluster"
	"osdprof/internal/collector"
	"osdprof/internal/metrics"
	"osdprof/internal/models"
	"osdprof/internal/server"
	"osdprof/internal/storage"
)

type collectOptions struct {
	clusterName     string
	dbPath          string
	listen          string
	runSeconds      int
	intervalMS      int
	prepareHistoric bool
}

func newCollectCmd(root *rootOptions) *cobra.Command {
	opts := &collectOptions{}

	cmd := &cobra.Command{
		Use:   "collect [osd-id... | '*']",
		Short: "Sample OSD internals for a fixed wall-clock window",
		Long: `Collect runs one bounded-duration poller per source (in-flight ops,
historic ops, perf counters per OSD, plus host diskstats) and persists every
sample to the store, or prints samples when no store is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, root, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.clusterName, "cluster", "c", "", "Ceph cluster name")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "store samples in this database instead of printing them")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "serve the live feed, reports and metrics on this address")
	cmd.Flags().IntVarP(&opts.runSeconds, "run-time", "r", 0, "collection window in seconds")
	cmd.Flags().IntVarP(&opts.intervalMS, "timeout", "t", 0, "poll interval in milliseconds")
	cmd.Flags().BoolVarP(&opts.prepareHistoric, "prepare-for-historic", "p", false,
		"prepare OSDs for reliable historic ops collection")
	return cmd
}

func runCollect(cmd *cobra.Command, root *rootOptions, opts *collectOptions, args []string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if opts.clusterName != "" {
		cfg.Cluster = opts.clusterName
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	if opts.runSeconds > 0 {
		cfg.RunSeconds = opts.runSeconds
	}
	if opts.intervalMS > 0 {
		cfg.PollIntervalMS = opts.intervalMS
	}

	log, err := root.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	client := cluster.NewClient(cfg.Cluster, cfg.SocketDir, log)
	osdIDs, err := resolveOSDs(client, args, cfg.OSDs)
	if err != nil {
		return err
	}
	log.Info("collecting", zap.Strings("osds", osdIDs), zap.String("cluster", cfg.Cluster))

	// The retention scope is restored exactly once on every exit path,
	// including a failed run.
	var scope *cluster.RetentionScope
	if opts.prepareHistoric {
		scope, err = client.PrepareHistoric(osdIDs, cfg.HistoricDurationSec, cfg.HistoricSize)
		if err != nil {
			return err
		}
		defer func() {
			if err := scope.Restore(); err != nil {
				log.Error("restoring historic retention failed", zap.Error(err))
			}
		}()
	}

	pipeline := metrics.NewPipeline()

	var sinks collector.MultiSink
	var store *storage.Store
	if cfg.DBPath != "" {
		store, err = storage.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		sinks = append(sinks, store)
	} else {
		sinks = append(sinks, collector.PrintSink{W: cmd.OutOrStdout()})
	}

	var srv *server.Server
	if cfg.Listen != "" {
		srv = server.New(cfg.Listen, store, pipeline, log)
		sinks = append(sinks, srv.Feed())
		go func() {
			if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("live server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("live server shutdown", zap.Error(err))
			}
		}()
	}

	coll := collector.New(log, pipeline)
	for _, id := range osdIDs {
		coll.Add(models.Tag(models.KindOps, id), client.InFlightOps(id))
	}
	for _, id := range osdIDs {
		coll.Add(models.Tag(models.KindHistoric, id), client.HistoricOps(id))
	}
	coll.Add(models.KindDiskStats, cluster.DiskStats)
	for _, id := range osdIDs {
		coll.Add(models.Tag(models.KindPerf, id), client.PerfCounters(id))
	}

	return coll.Run(
		time.Duration(cfg.PollIntervalMS)*time.Millisecond,
		time.Duration(cfg.RunSeconds)*time.Second,
		sinks,
	)
}

// resolveOSDs picks the OSD set from command arguments, falling back to the
// configured list and then to socket discovery. A lone "*" means every OSD
// with an admin socket on this host.
func resolveOSDs(client *cluster.Client, args, configured []string) ([]string, error) {
	ids := args
	if len(ids) == 0 {
		ids = configured
	}
	for _, id := range ids {
		if id == "*" && len(ids) != 1 {
			return nil, errors.New("'*' must be the only osd id")
		}
	}
	if len(ids) == 0 || (len(ids) == 1 && ids[0] == "*") {
		discovered, err := client.DiscoverOSDs()
		if err != nil {
			return nil, err
		}
		if len(discovered) == 0 {
			return nil, errors.New("no OSD admin sockets found")
		}
		return discovered, nil
	}
	for _, id := range ids {
		if id == "" {
			return nil, errors.New("empty osd id")
		}
	}
	return ids, nil
}
