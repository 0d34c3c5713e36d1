package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"osdprof/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := testStore(t)

	payload := []byte(`{"ops": [{"description": "osd_op(...)"}]}`)
	sample := models.Sample{Timestamp: 1441190096123, Tag: "historic.osd-3", Payload: payload}
	require.NoError(t, store.Put(sample))

	got, err := store.Get("historic.osd-3::1441190096123")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestPutOverwritesSameKey(t *testing.T) {
	store := testStore(t)

	sample := models.Sample{Timestamp: 7, Tag: "perf.osd-1", Payload: []byte("first")}
	require.NoError(t, store.Put(sample))
	sample.Payload = []byte("second")
	require.NoError(t, store.Put(sample))

	got, err := store.Get(sample.Key())
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func TestScanPrefixSelectsExactly(t *testing.T) {
	store := testStore(t)

	for _, s := range []models.Sample{
		{Timestamp: 1, Tag: "ops.osd-1", Payload: []byte("a")},
		{Timestamp: 2, Tag: "ops.osd-1", Payload: []byte("b")},
		{Timestamp: 1, Tag: "ops.osd-10", Payload: []byte("c")},
		{Timestamp: 1, Tag: "historic.osd-1", Payload: []byte("d")},
	} {
		require.NoError(t, store.Put(s))
	}

	records, err := store.ScanPrefix("ops.osd-1::")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "ops.osd-1::1", records[0].Key)
	require.Equal(t, "ops.osd-1::2", records[1].Key)

	records, err = store.ScanPrefix("ops.osd-")
	require.NoError(t, err)
	require.Len(t, records, 3)

	records, err = store.ScanPrefix("diskstats")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSummary(t *testing.T) {
	store := testStore(t)

	for _, s := range []models.Sample{
		{Timestamp: 100, Tag: "ops.osd-1", Payload: []byte("a")},
		{Timestamp: 300, Tag: "ops.osd-1", Payload: []byte("b")},
		{Timestamp: 200, Tag: "diskstats", Payload: []byte("c")},
	} {
		require.NoError(t, store.Put(s))
	}

	summary, err := store.Summary()
	require.NoError(t, err)
	require.Equal(t, map[string]TagSummary{
		"ops.osd-1": {Count: 2, First: 100, Last: 300},
		"diskstats": {Count: 1, First: 200, Last: 200},
	}, summary)
}
