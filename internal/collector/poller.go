package collector

import (
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"osdprof/internal/metrics"
	"osdprof/internal/models"
)

// SampleFunc fetches one raw payload from a single source. It blocks for the
// duration of the underlying admin-socket call.
type SampleFunc func() ([]byte, error)

// Poller repeatedly invokes one sampling function at a fixed cadence until
// an absolute deadline, pushing every result onto the shared bus. It owns no
// state shared with its siblings; the bus is its only outward channel.
type poller struct {
	tag      string
	fn       SampleFunc
	interval time.Duration
	deadline time.Time
	log      *zap.Logger
	metrics  *metrics.Pipeline
}

// busItem is the tagged variant carried on the sample bus: either one sample
// or a completion signal. A completion with a non-nil err means the poller
// stopped on a sampling error rather than at its deadline.
type busItem struct {
	sample   models.Sample
	complete bool
	err      error
}

// run executes the polling loop. The cadence is self-correcting: each cycle
// sleeps for whatever remains of the interval after the sampling call, so a
// slow call does not push every later cycle out.
//
// Exactly one completion item is pushed, always last.
func (p *poller) run(bus chan<- busItem) {
	now := time.Now()
	for now.Before(p.deadline) {
		payload, err := p.fn()
		p.metrics.ObservePoll(p.tag, time.Since(now))
		if err != nil {
			p.log.Warn("sampler failed, stopping poller",
				zap.String("tag", p.tag), zap.Error(err))
			p.metrics.PollerFailed(p.tag)
			bus <- busItem{complete: true, err: errors.Wrapf(err, "poller %s", p.tag)}
			return
		}

		bus <- busItem{sample: models.Sample{
			Timestamp: now.UnixMilli(),
			Tag:       p.tag,
			Payload:   payload,
		}}

		if sleep := p.interval - time.Since(now); sleep > 0 {
			time.Sleep(sleep)
		}
		now = time.Now()
	}
	bus <- busItem{complete: true}
}
