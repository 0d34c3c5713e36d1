package cluster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeCeph writes a stand-in ceph binary that answers dump_historic_ops with
// fixed retention settings and records every config set invocation.
func fakeCeph(t *testing.T) (binPath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	binPath = filepath.Join(dir, "ceph")

	script := `#!/bin/sh
if [ "$3" = "dump_historic_ops" ]; then
  echo '{"duration to keep": 600, "num to keep": 20, "Ops": []}'
else
  echo "$@" >> ` + logPath + `
  echo '{}'
fi
`
	require.NoError(t, os.WriteFile(binPath, []byte(script), 0o755))
	return binPath, logPath
}

func testClient(t *testing.T) (*Client, string) {
	t.Helper()
	c := NewClient("ceph", t.TempDir(), zaptest.NewLogger(t))
	bin, logPath := fakeCeph(t)
	c.cephBin = bin
	return c, logPath
}

func configSetLines(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestDiscoverOSDs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"ceph-osd.0.asok",
		"ceph-osd.12.asok",
		"ceph-mon.a.asok",
		"other-osd.3.asok",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	c := NewClient("ceph", dir, zaptest.NewLogger(t))
	ids, err := c.DiscoverOSDs()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"0", "12"}, ids)
}

func TestPrepareHistoricAndRestoreOnce(t *testing.T) {
	c, logPath := testClient(t)

	scope, err := c.PrepareHistoric([]string{"1", "2"}, 2, 200)
	require.NoError(t, err)
	require.Equal(t, HistoricSettings{Duration: 600, Size: 20}, scope.previous["1"])

	lines := configSetLines(t, logPath)
	require.Len(t, lines, 4) // duration+size per OSD
	require.Contains(t, lines[0], "config set osd_op_history_duration 2")

	require.NoError(t, scope.Restore())
	lines = configSetLines(t, logPath)
	require.Len(t, lines, 8)
	restored := strings.Join(lines[4:], "\n")
	require.Contains(t, restored, "osd_op_history_duration 600")
	require.Contains(t, restored, "osd_op_history_size 20")

	// A second restore must not touch the daemons again.
	require.NoError(t, scope.Restore())
	require.Len(t, configSetLines(t, logPath), 8)
}

func TestSamplingFunctions(t *testing.T) {
	c, _ := testClient(t)

	out, err := c.HistoricOps("5")()
	require.NoError(t, err)
	require.Contains(t, string(out), "duration to keep")

	out, err = c.InFlightOps("5")()
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestExecReportsFailure(t *testing.T) {
	c := NewClient("ceph", t.TempDir(), zaptest.NewLogger(t))
	c.cephBin = "/nonexistent/ceph"

	_, err := c.Exec("1", "perf", "dump")
	require.Error(t, err)
	require.Contains(t, err.Error(), "osd.1")
}
