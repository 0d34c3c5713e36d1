package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"osdprof/internal/models"
	"osdprof/internal/storage"
	"osdprof/internal/trace"
)

// PhaseMean is the mean duration of one lifecycle phase across every
// operation in which the phase occurred.
type PhaseMean struct {
	Phase string `json:"phase"`
	Mean  int64  `json:"mean_us"`
	Count int    `json:"ops"`
}

// opDump is the envelope around traced operations in an admin-socket dump.
// Historic dumps spell the field "Ops", in-flight dumps "ops"; the decoder's
// case-insensitive match covers both.
type opDump struct {
	Ops []trace.RawOp `json:"ops"`
}

// opIdentity dedupes the same operation appearing in overlapping historic
// dumps from consecutive polls.
type opIdentity struct {
	client string
	object string
	start  int64
}

// Engine computes phase statistics over persisted samples.
type Engine struct {
	store *storage.Store
	log   *zap.Logger
}

// NewEngine creates a stats engine over an open store.
func NewEngine(store *storage.Store, log *zap.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Prefix builds the key prefix selecting one sample class, optionally
// narrowed to one daemon.
func Prefix(class, osdID string) string {
	if osdID == "" {
		return class + ".osd-"
	}
	return models.Tag(class, osdID) + "::"
}

// Compute scans the store for samples of the given class (and daemon, when
// osdID is non-empty), reconstructs every recognized operation's intervals
// and returns the per-phase means in canonical report order.
//
// Unrecognized records are skipped. An out-of-order trace aborts the whole
// scan: it means the reconstructor's vocabulary no longer matches the live
// format, and partial numbers would be misleading.
func (e *Engine) Compute(class, osdID string) ([]PhaseMean, error) {
	records, err := e.store.ScanPrefix(Prefix(class, osdID))
	if err != nil {
		return nil, err
	}

	sums := make(map[string]int64)
	counts := make(map[string]int)
	seen := make(map[opIdentity]struct{})

	for _, rec := range records {
		var dump opDump
		if err := json.Unmarshal(rec.Payload, &dump); err != nil {
			return nil, errors.Wrapf(err, "decode sample %s", rec.Key)
		}
		for _, raw := range dump.Ops {
			op, err := trace.ParseOp(raw)
			if err != nil {
				e.log.Debug("skipping malformed operation",
					zap.String("key", rec.Key), zap.Error(err))
				continue
			}
			if op == nil {
				continue
			}
			id := opIdentity{client: op.Client, object: op.Object, start: op.StartTime}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			report, err := trace.Intervals(op)
			if err != nil {
				return nil, errors.Wrapf(err, "sample %s", rec.Key)
			}
			for phase, d := range report {
				sums[phase] += d
				counts[phase]++
			}
		}
	}

	means := make([]PhaseMean, 0, len(sums))
	for phase, sum := range sums {
		means = append(means, PhaseMean{
			Phase: phase,
			Mean:  sum / int64(counts[phase]),
			Count: counts[phase],
		})
	}
	sort.Slice(means, func(i, j int) bool {
		ri, rj := trace.PhaseRank(means[i].Phase), trace.PhaseRank(means[j].Phase)
		if ri != rj {
			return ri < rj
		}
		return means[i].Phase < means[j].Phase
	})
	return means, nil
}

// Render prints one "phase, mean microseconds" line per phase.
func Render(w io.Writer, means []PhaseMean) error {
	for _, m := range means {
		if _, err := fmt.Fprintf(w, "%-40s %10d\n", m.Phase, m.Mean); err != nil {
			return err
		}
	}
	return nil
}
