package trace

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// RawOp is the wire shape of one traced operation as emitted by an OSD's
// dump_ops_in_flight / dump_historic_ops admin command.
type RawOp struct {
	Description string            `json:"description"`
	InitiatedAt string            `json:"initiated_at"`
	TypeData    []json.RawMessage `json:"type_data"`
}

type rawStage struct {
	Time  string `json:"time"`
	Event string `json:"event"`
}

// Op is one parsed client write, immutable once built. Events carry offsets
// in microseconds relative to StartTime and are classified at parse time.
type Op struct {
	Client    string
	Object    string
	Kinds     []string
	StartTime int64 // microseconds since epoch
	Events    []Event
}

const descrPrefix = "osd_op"

// The operation descriptor grammar: client id, pool.pg, object name, two
// bracketed segments, then the '+'-joined operation kinds.
var descrRe = regexp.MustCompile(
	`^osd_op\((?P<client>client[^\t ]*?)\s+` +
		`(?P<pool>\d+)\.(?P<pg>[a-f0-9]+)` +
		`\s+(?P<object>.*?)\s+` +
		`\[[^\]]*\][^\[]*\[[^\]]*\]` +
		`\s+(?P<kinds>[a-z+_]*)\s+.*?\)`)

const cephTimeLayout = "2006-01-02 15:04:05"

// parseCephTime converts an OSD timestamp ("YYYY-MM-DD HH:MM:SS.ffffff",
// local time) to microseconds since epoch.
func parseCephTime(s string) (int64, error) {
	t, err := time.ParseInLocation(cephTimeLayout, s, time.Local)
	if err != nil {
		return 0, errors.Wrapf(err, "timestamp %q", s)
	}
	return t.UnixMicro(), nil
}

// ParseOp converts one raw traced operation into an Op. Records whose
// descriptor is not a recognized client write return (nil, nil): traces are
// heterogeneous and unrecognized kinds are expected. An error is returned
// only for records that match the grammar but carry malformed timestamps or
// a malformed event structure.
func ParseOp(raw RawOp) (*Op, error) {
	if !strings.HasPrefix(raw.Description, descrPrefix) {
		return nil, nil
	}
	m := descrRe.FindStringSubmatch(raw.Description)
	if m == nil {
		return nil, nil
	}

	start, err := parseCephTime(raw.InitiatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "initiated_at")
	}

	if len(raw.TypeData) < 3 {
		return nil, errors.Newf("type_data has %d elements, want 3", len(raw.TypeData))
	}
	var stages []rawStage
	if err := json.Unmarshal(raw.TypeData[2], &stages); err != nil {
		return nil, errors.Wrap(err, "decode event list")
	}

	op := &Op{
		Client:    m[descrRe.SubexpIndex("client")],
		Object:    m[descrRe.SubexpIndex("object")],
		Kinds:     strings.Split(m[descrRe.SubexpIndex("kinds")], "+"),
		StartTime: start,
		Events:    make([]Event, 0, len(stages)),
	}
	for _, st := range stages {
		if st.Event == "initiated_at" {
			// Synthetic bookkeeping entry, redundant with StartTime.
			continue
		}
		at, err := parseCephTime(st.Time)
		if err != nil {
			return nil, errors.Wrapf(err, "event %q", st.Event)
		}
		kind, name, replica := classify(st.Event)
		op.Events = append(op.Events, Event{
			Name:    name,
			Kind:    kind,
			Replica: replica,
			Offset:  at - start,
		})
	}
	return op, nil
}
