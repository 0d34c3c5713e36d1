package collector

import (
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"osdprof/internal/metrics"
)

// Collector runs a set of pollers against a shared sample bus and drains the
// bus into a sink until every poller has signalled completion.
type Collector struct {
	log     *zap.Logger
	metrics *metrics.Pipeline

	sources []source
}

type source struct {
	tag string
	fn  SampleFunc
}

// busDepth bounds the sample bus. Pollers block on a full bus rather than
// dropping samples.
const busDepth = 64

// New creates an empty collector. Metrics may be nil.
func New(log *zap.Logger, m *metrics.Pipeline) *Collector {
	return &Collector{log: log, metrics: m}
}

// Add registers one source to be polled under the given tag.
func (c *Collector) Add(tag string, fn SampleFunc) {
	c.sources = append(c.sources, source{tag: tag, fn: fn})
}

// Sources returns the number of registered sources.
func (c *Collector) Sources() int {
	return len(c.sources)
}

// Run starts one poller per source, all sharing a deadline of now+window,
// and consumes the bus until every poller has completed. Samples are handed
// to the sink in arrival order.
//
// A poller that fails stops alone; its siblings run to their deadline. Run
// returns the combined poller failures (nil if all succeeded). A sink
// failure stops persistence but the bus is still drained so that no poller
// blocks forever.
func (c *Collector) Run(interval time.Duration, window time.Duration, sink Sink) error {
	if len(c.sources) == 0 {
		return errors.New("no sources registered")
	}

	deadline := time.Now().Add(window)
	bus := make(chan busItem, busDepth)

	for _, src := range c.sources {
		p := &poller{
			tag:      src.tag,
			fn:       src.fn,
			interval: interval,
			deadline: deadline,
			log:      c.log,
			metrics:  c.metrics,
		}
		go p.run(bus)
	}
	c.log.Info("collection started",
		zap.Int("pollers", len(c.sources)),
		zap.Duration("interval", interval),
		zap.Duration("window", window))

	remaining := len(c.sources)
	var failures error
	var sinkErr error
	stored := 0
	for remaining > 0 {
		item := <-bus
		if item.complete {
			remaining--
			if item.err != nil {
				failures = errors.CombineErrors(failures, item.err)
			}
			continue
		}
		c.metrics.ObserveSample(item.sample.Tag, len(item.sample.Payload))
		if sinkErr != nil {
			continue
		}
		if err := sink.Put(item.sample); err != nil {
			sinkErr = errors.Wrap(err, "sink")
			c.log.Error("sink failed, draining remaining samples", zap.Error(sinkErr))
			continue
		}
		stored++
	}

	c.log.Info("collection finished", zap.Int("samples", stored))
	return errors.CombineErrors(sinkErr, failures)
}
