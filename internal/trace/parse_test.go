package trace

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testDescription = "osd_op(client.4267.0:867 10.2ea5a25c rbd_data.1048e2ae8944a.0000000000000375 " +
	"[set-alloc-hint object_size 4194304,write 2269184+4096] snapc 0=[] ondisk+write e20)"

var testBase = time.Date(2015, 9, 2, 12, 34, 56, 0, time.Local)

func cephTime(offsetUS int64) string {
	return testBase.Add(time.Duration(offsetUS) * time.Microsecond).Format("2006-01-02 15:04:05.000000")
}

// rawRecord builds the JSON for one traced operation with the given
// (event, offset-in-microseconds) pairs.
func rawRecord(t *testing.T, description string, events [][2]any) RawOp {
	t.Helper()

	stages := make([]map[string]string, 0, len(events)+1)
	stages = append(stages, map[string]string{"time": cephTime(0), "event": "initiated_at"})
	for _, ev := range events {
		stages = append(stages, map[string]string{
			"time":  cephTime(int64(ev[1].(int))),
			"event": ev[0].(string),
		})
	}

	payload, err := json.Marshal(map[string]any{
		"description":  description,
		"initiated_at": cephTime(0),
		"type_data":    []any{"commit sent", map[string]any{"client": "client.4267"}, stages},
	})
	require.NoError(t, err)

	var raw RawOp
	require.NoError(t, json.Unmarshal(payload, &raw))
	return raw
}

func TestParseOpUnrecognizedDescriptor(t *testing.T) {
	for _, descr := range []string{
		"osd_repop(client.4267.0:871 10.74636c1d 22acb13a/rbd_data.1)",
		"osd_sub_op(unknown)",
		"",
		"osd_op(no grammar here)",
	} {
		raw := rawRecord(t, descr, [][2]any{{"started", 100}})
		op, err := ParseOp(raw)
		require.NoError(t, err, "descriptor %q", descr)
		require.Nil(t, op, "descriptor %q", descr)
	}
}

func TestParseOpFields(t *testing.T) {
	raw := rawRecord(t, testDescription, [][2]any{
		{"queued_for_pg", 10},
		{"reached_pg", 25},
		{"started", 100},
		{"waiting for subops from 1,2", 150},
		{"sub_op_commit_rec from 2", 400},
		{"commit_sent", 500},
	})

	op, err := ParseOp(raw)
	require.NoError(t, err)
	require.NotNil(t, op)

	require.Equal(t, "client.4267.0:867", op.Client)
	require.Equal(t, "rbd_data.1048e2ae8944a.0000000000000375", op.Object)
	require.Equal(t, []string{"ondisk", "write"}, op.Kinds)
	require.Equal(t, testBase.UnixMicro(), op.StartTime)

	// The synthetic initiated_at entry is dropped.
	require.Len(t, op.Events, 6)

	require.Equal(t, Event{Name: MilestoneQueuedForPG, Kind: KindMilestone, Offset: 10}, op.Events[0])
	require.Equal(t, Event{Name: MilestoneReplicaWait, Kind: KindMilestone, Offset: 150}, op.Events[3])
	require.Equal(t, Event{
		Name: "sub_op_commit_rec from 2", Kind: KindReplicaAck, Replica: 2, Offset: 400,
	}, op.Events[4])
	require.Equal(t, Event{Name: "commit_sent", Kind: KindExtra, Offset: 500}, op.Events[5])
}

func TestParseOpMixedRecords(t *testing.T) {
	records := []RawOp{
		rawRecord(t, "osd_repop(client.4267.0:871 10.74636c1d 22acb13a)", [][2]any{{"started", 5}}),
		rawRecord(t, testDescription, [][2]any{{"started", 100}}),
	}

	var ops []*Op
	for _, raw := range records {
		op, err := ParseOp(raw)
		require.NoError(t, err)
		if op != nil {
			ops = append(ops, op)
		}
	}
	require.Len(t, ops, 1)
	require.Equal(t, "client.4267.0:867", ops[0].Client)
}

func TestParseOpMalformedTimestamp(t *testing.T) {
	raw := rawRecord(t, testDescription, [][2]any{{"started", 100}})
	raw.InitiatedAt = "not a timestamp"

	_, err := ParseOp(raw)
	require.Error(t, err)
}

func TestParseOpMalformedTypeData(t *testing.T) {
	raw := rawRecord(t, testDescription, [][2]any{{"started", 100}})
	raw.TypeData = raw.TypeData[:1]

	_, err := ParseOp(raw)
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw     string
		kind    EventKind
		name    string
		replica int
	}{
		{"started", KindMilestone, "started", 0},
		{"waiting for subops from 1,2", KindMilestone, MilestoneReplicaWait, 0},
		{"waiting for subops from 3", KindMilestone, MilestoneReplicaWait, 0},
		{"sub_op_commit_rec from 1", KindReplicaAck, "sub_op_commit_rec from 1", 1},
		{"sub_op_commit_rec from 12", KindReplicaAck, "sub_op_commit_rec from 12", 12},
		{"commit_sent", KindExtra, "commit_sent", 0},
		{"journaled_completion_queued", KindExtra, "journaled_completion_queued", 0},
		{"never_seen_before", KindMilestone, "never_seen_before", 0},
	}
	for _, tc := range tests {
		kind, name, replica := classify(tc.raw)
		require.Equal(t, tc.kind, kind, tc.raw)
		require.Equal(t, tc.name, name, tc.raw)
		require.Equal(t, tc.replica, replica, tc.raw)
	}
}

func TestReplicaPhaseNames(t *testing.T) {
	for n, want := range map[int]string{
		1:  "1st replica done",
		2:  "2nd replica done",
		3:  "3rd replica done",
		4:  "4th replica done",
		11: "11th replica done",
		12: "12th replica done",
		21: "21st replica done",
	} {
		require.Equal(t, want, replicaPhase(n), fmt.Sprintf("ordinal %d", n))
	}
}
