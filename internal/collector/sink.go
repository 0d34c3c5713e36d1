package collector

import (
	"fmt"
	"io"

	"osdprof/internal/models"
)

// Sink consumes samples drained from the bus.
type Sink interface {
	Put(models.Sample) error
}

// PrintSink writes each sample as one line, for running without a store.
type PrintSink struct {
	W io.Writer
}

// Put implements Sink.
func (s PrintSink) Put(sample models.Sample) error {
	_, err := fmt.Fprintf(s.W, "%d - %s - %s\n",
		sample.Timestamp, sample.Tag, sample.Payload)
	return err
}

// MultiSink fans each sample out to every sink in order.
type MultiSink []Sink

// Put implements Sink. The first error stops the fan-out.
func (m MultiSink) Put(sample models.Sample) error {
	for _, s := range m {
		if err := s.Put(sample); err != nil {
			return err
		}
	}
	return nil
}
