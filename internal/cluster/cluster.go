package cluster

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	defaultSocketDir = "/var/run/ceph"
	commandTimeout   = 30 * time.Second
	diskStatsPath    = "/proc/diskstats"
)

// Client talks to the OSD daemons of one Ceph cluster through their admin
// sockets. The transport is the `ceph daemon <asok> ...` administration
// command; its output is treated as opaque bytes here.
type Client struct {
	cluster   string
	socketDir string
	cephBin   string
	log       *zap.Logger
}

// NewClient creates a client for the named cluster. Empty arguments fall
// back to the conventional defaults ("ceph", /var/run/ceph).
func NewClient(cluster, socketDir string, log *zap.Logger) *Client {
	if cluster == "" {
		cluster = "ceph"
	}
	if socketDir == "" {
		socketDir = defaultSocketDir
	}
	return &Client{
		cluster:   cluster,
		socketDir: socketDir,
		cephBin:   "ceph",
		log:       log,
	}
}

func (c *Client) socketPath(osdID string) string {
	return filepath.Join(c.socketDir, c.cluster+"-osd."+osdID+".asok")
}

// Exec runs one admin-socket command against an OSD and returns its raw
// output.
func (c *Client) Exec(osdID string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	argv := append([]string{"daemon", c.socketPath(osdID)}, args...)
	out, err := exec.CommandContext(ctx, c.cephBin, argv...).Output()
	if err != nil {
		return nil, errors.Wrapf(err, "osd.%s: %s", osdID, strings.Join(args, " "))
	}
	return out, nil
}

// DiscoverOSDs lists the ids of all OSDs of this cluster that expose an
// admin socket on this host.
func (c *Client) DiscoverOSDs() ([]string, error) {
	pattern := filepath.Join(c.socketDir, c.cluster+"-osd.*.asok")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "glob %q", pattern)
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		parts := strings.Split(filepath.Base(p), ".")
		if len(parts) < 3 {
			continue
		}
		ids = append(ids, parts[1])
	}
	return ids, nil
}

// InFlightOps returns a sampling function for the OSD's in-flight requests.
func (c *Client) InFlightOps(osdID string) func() ([]byte, error) {
	return func() ([]byte, error) { return c.Exec(osdID, "dump_ops_in_flight") }
}

// HistoricOps returns a sampling function for the OSD's recent completed
// request traces.
func (c *Client) HistoricOps(osdID string) func() ([]byte, error) {
	return func() ([]byte, error) { return c.Exec(osdID, "dump_historic_ops") }
}

// PerfCounters returns a sampling function for the OSD's performance
// counters.
func (c *Client) PerfCounters(osdID string) func() ([]byte, error) {
	return func() ([]byte, error) { return c.Exec(osdID, "perf", "dump") }
}

// DiskStats samples the host's block-device statistics.
func DiskStats() ([]byte, error) {
	data, err := os.ReadFile(diskStatsPath)
	if err != nil {
		return nil, errors.Wrap(err, "read diskstats")
	}
	return data, nil
}

// HistoricSettings are an OSD's trace retention knobs.
type HistoricSettings struct {
	Duration int `json:"duration to keep"`
	Size     int `json:"num to keep"`
}

// RetentionScope remembers the retention settings that were in effect before
// a collection run so they can be restored exactly once afterwards.
type RetentionScope struct {
	client   *Client
	previous map[string]HistoricSettings
	restored bool
}

// PrepareHistoric raises the historic-op retention on each OSD for the
// collection window and returns a scope that restores the prior settings.
// OSDs already adjusted are restored even when a later OSD fails.
func (c *Client) PrepareHistoric(osdIDs []string, duration, size int) (*RetentionScope, error) {
	scope := &RetentionScope{client: c, previous: make(map[string]HistoricSettings)}
	for _, id := range osdIDs {
		prev, err := c.setHistoric(id, duration, size)
		if err != nil {
			restoreErr := scope.Restore()
			return nil, errors.CombineErrors(errors.Wrapf(err, "prepare osd.%s", id), restoreErr)
		}
		scope.previous[id] = prev
	}
	return scope, nil
}

// Restore puts the remembered retention settings back. Safe to call more
// than once; only the first call acts.
func (s *RetentionScope) Restore() error {
	if s == nil || s.restored {
		return nil
	}
	s.restored = true
	var combined error
	for id, prev := range s.previous {
		if _, err := s.client.setHistoric(id, prev.Duration, prev.Size); err != nil {
			combined = errors.CombineErrors(combined, errors.Wrapf(err, "restore osd.%s", id))
		}
	}
	return combined
}

// setHistoric applies new retention settings and returns the ones that were
// in effect, as reported by a historic dump.
func (c *Client) setHistoric(osdID string, duration, size int) (HistoricSettings, error) {
	out, err := c.Exec(osdID, "dump_historic_ops")
	if err != nil {
		return HistoricSettings{}, err
	}
	var prev HistoricSettings
	if err := json.Unmarshal(out, &prev); err != nil {
		return HistoricSettings{}, errors.Wrapf(err, "osd.%s: decode retention settings", osdID)
	}
	if _, err := c.Exec(osdID, "config", "set", "osd_op_history_duration", strconv.Itoa(duration)); err != nil {
		return HistoricSettings{}, err
	}
	if _, err := c.Exec(osdID, "config", "set", "osd_op_history_size", strconv.Itoa(size)); err != nil {
		return HistoricSettings{}, err
	}
	c.log.Debug("historic retention set",
		zap.String("osd", osdID),
		zap.Int("duration", duration),
		zap.Int("size", size),
		zap.Int("prev_duration", prev.Duration),
		zap.Int("prev_size", prev.Size))
	return prev, nil
}
