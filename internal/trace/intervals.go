package trace

import (
	"regexp"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Report maps phase names to elapsed microseconds for one operation. Phases
// whose optional branch did not occur are simply absent.
type Report map[string]int64

// Derived phase names that are not milestones themselves.
const (
	PhasePGWait        = "pg_wait"
	PhaseSendToReplica = "send_to_replica"
	PhaseSendCommitAck = "send_commit_ack"
	PhaseJournalCommit = "journal_commit"
)

// Intervals reconstructs the per-phase latency breakdown of one operation.
//
// Milestones present in the trace must occur in canonical order; a violation
// means the live trace vocabulary has drifted from this package and is
// reported as an assertion failure rather than a skewed report. Operations
// with fewer than 3 events carry too little signal and yield an empty report.
func Intervals(op *Op) (Report, error) {
	last := -1
	for _, ev := range op.Events {
		if ev.Kind != KindMilestone {
			continue
		}
		idx, ok := milestoneIndex[ev.Name]
		if !ok {
			return nil, errors.AssertionFailedf("unknown milestone %q", ev.Name)
		}
		if idx <= last {
			return nil, errors.AssertionFailedf(
				"milestone %q out of order (after %q)", ev.Name, milestoneOrder[last])
		}
		last = idx
	}

	if len(op.Events) < 3 {
		return Report{}, nil
	}

	offsets := make(map[string]int64, len(op.Events))
	for _, ev := range op.Events {
		offsets[ev.Name] = ev.Offset
	}

	res := Report{}
	started, haveStarted := offsets[MilestoneStarted]
	if haveStarted {
		res[PhasePGWait] = started
	}

	if wait, ok := offsets[MilestoneReplicaWait]; ok && haveStarted {
		res[PhaseSendToReplica] = wait - started

		for _, ev := range op.Events {
			if ev.Kind == KindReplicaAck {
				res[replicaPhase(ev.Replica)] = ev.Offset - wait
			}
		}

		// Walk the milestones past the replica wait; each one present is
		// charged against the previous one, and the walk halts at the first
		// gap rather than synthesizing anything across it.
		prev := wait
		for _, name := range milestoneOrder[milestoneIndex[MilestoneReplicaWait]+1:] {
			at, ok := offsets[name]
			if !ok {
				break
			}
			res[name] = at - prev
			prev = at
		}
	}

	if sent, ok := offsets[eventCommitSent]; ok {
		if commit, ok := offsets[MilestoneOpCommit]; ok {
			d := commit - sent
			if d < 0 {
				return nil, errors.AssertionFailedf(
					"commit acknowledged %dus before op_commit", -d)
			}
			res[PhaseSendCommitAck] = d
		}
	}
	if queued, ok := offsets[eventJournaledQueued]; ok {
		if buffered, ok := offsets[MilestoneJournalBuffer]; ok {
			d := queued - buffered
			if d < 0 {
				return nil, errors.AssertionFailedf(
					"journal completion queued %dus before the journal write", -d)
			}
			res[PhaseJournalCommit] = d
		}
	}

	return res, nil
}

// Phase ranks for the canonical report order. Replica phases sort between
// send_to_replica and the post-replica milestones, by ordinal.
const (
	rankReplicaBase = 200
	rankUnknown     = 1 << 30
)

var phaseRanks = map[string]int{
	PhasePGWait:            0,
	PhaseSendToReplica:     100,
	MilestoneCommitQueued:  1000,
	MilestoneJournalBuffer: 1100,
	PhaseJournalCommit:     1200,
	PhaseSendCommitAck:     1300,
	MilestoneOpCommit:      1400,
	MilestoneOpApplied:     1500,
	MilestoneDone:          1600,
}

var replicaPhaseRe = regexp.MustCompile(`^(\d+)(?:st|nd|rd|th) replica done$`)

// PhaseRank orders phase names for display. Lower ranks print first.
func PhaseRank(name string) int {
	if r, ok := phaseRanks[name]; ok {
		return r
	}
	if m := replicaPhaseRe.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return rankReplicaBase + n
	}
	return rankUnknown
}
