package trace

import (
	"fmt"
	"regexp"
	"strconv"
)

// EventKind classifies a lifecycle event once, at parse time. Later stages
// dispatch on the kind instead of re-inspecting event names.
type EventKind int

const (
	// KindMilestone is a member of the strictly ordered lifecycle sequence.
	KindMilestone EventKind = iota
	// KindExtra is a free-floating journal acknowledgement marker.
	KindExtra
	// KindReplicaAck is an ordinally numbered replica commit acknowledgement.
	KindReplicaAck
)

// Event is one named point in an operation's lifecycle, with its offset in
// microseconds relative to the operation's initiation.
type Event struct {
	Name    string
	Kind    EventKind
	Replica int // ordinal, set only for KindReplicaAck
	Offset  int64
}

// Canonical milestone names, in the only order they may occur.
const (
	MilestoneInitiated     = "initiated"
	MilestoneQueuedForPG   = "queued_for_pg"
	MilestoneReachedPG     = "reached_pg"
	MilestoneStarted       = "started"
	MilestoneReplicaWait   = "waiting_for_replica_ack"
	MilestoneCommitQueued  = "commit_queued_for_journal_write"
	MilestoneJournalBuffer = "write_thread_in_journal_buffer"
	MilestoneOpCommit      = "op_commit"
	MilestoneOpApplied     = "op_applied"
	MilestoneDone          = "done"
)

// Extra event names (journal acknowledgement markers).
const (
	eventCommitSent      = "commit_sent"
	eventJournaledQueued = "journaled_completion_queued"
)

// milestoneOrder is the canonical lifecycle sequence. Milestones present in a
// trace must form an in-order subsequence of this list.
var milestoneOrder = []string{
	MilestoneInitiated,
	MilestoneQueuedForPG,
	MilestoneReachedPG,
	MilestoneStarted,
	MilestoneReplicaWait,
	MilestoneCommitQueued,
	MilestoneJournalBuffer,
	MilestoneOpCommit,
	MilestoneOpApplied,
	MilestoneDone,
}

var milestoneIndex = func() map[string]int {
	m := make(map[string]int, len(milestoneOrder))
	for i, name := range milestoneOrder {
		m[name] = i
	}
	return m
}()

var (
	replicaAckRe  = regexp.MustCompile(`^sub_op_commit_rec from (\d+)$`)
	replicaWaitRe = regexp.MustCompile(`^waiting for subops from [\d, ]+$`)
)

// classify resolves a raw event name into its kind, canonical name and
// replica ordinal. Unknown names are treated as milestones so that the
// reconstructor's order check catches vocabulary drift loudly.
func classify(raw string) (EventKind, string, int) {
	if raw == eventCommitSent || raw == eventJournaledQueued {
		return KindExtra, raw, 0
	}
	if m := replicaAckRe.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		return KindReplicaAck, raw, n
	}
	if replicaWaitRe.MatchString(raw) {
		return KindMilestone, MilestoneReplicaWait, 0
	}
	return KindMilestone, raw, 0
}

// replicaPhase names the report phase for the n-th replica acknowledgement.
func replicaPhase(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s replica done", n, suffix)
}
