package ingest

import (
	"context"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/cognicore/grounding/pkg/grounding/store"
)

// Filter decides whether a finalized record is kept
type Filter interface {
	Accept(rec store.Record) bool
}

// AcceptAll keeps every record
type AcceptAll struct{}

// Accept implements Filter
func (AcceptAll) Accept(store.Record) bool { return true }

// Sink receives finalized records from a record builder. Close is called
// once the source document ended and must not return before every accepted
// record has been written.
type Sink interface {
	Consume(rec store.Record) error
	Close() error
}

// Pipeline is the Sink an orchestrator hands to a parser for one run:
// records pass the filter and are offered to the dispatcher.
type Pipeline struct {
	ctx        context.Context
	ns         string
	filter     Filter
	dispatcher *Dispatcher

	built    atomic.Int64
	accepted atomic.Int64
}

// NewPipeline wires filter and dispatcher for records of namespace ns
func NewPipeline(ctx context.Context, ns string, filter Filter, d *Dispatcher) *Pipeline {
	if filter == nil {
		filter = AcceptAll{}
	}
	return &Pipeline{ctx: ctx, ns: ns, filter: filter, dispatcher: d}
}

// Consume implements Sink. Records without an id cannot be stored and are
// dropped like filtered ones.
func (p *Pipeline) Consume(rec store.Record) error {
	p.built.Add(1)
	metrics.recordsBuilt.WithLabelValues(p.ns).Inc()

	if rec.ID == "" {
		metrics.recordsRejected.WithLabelValues(p.ns).Inc()
		log.WithFields(log.Fields{"namespace": p.ns, "name": rec.Name}).Debug("Dropping record without id")
		return nil
	}
	if !p.filter.Accept(rec) {
		metrics.recordsRejected.WithLabelValues(p.ns).Inc()
		return nil
	}
	p.accepted.Add(1)
	metrics.recordsAccepted.WithLabelValues(p.ns).Inc()
	return p.dispatcher.Offer(p.ctx, rec)
}

// Close implements Sink by flushing the dispatcher
func (p *Pipeline) Close() error {
	return p.dispatcher.Flush(p.ctx)
}

// Built returns how many records reached the pipeline
func (p *Pipeline) Built() int64 { return p.built.Load() }

// Accepted returns how many records passed the filter
func (p *Pipeline) Accepted() int64 { return p.accepted.Load() }

// Dispatcher returns the pipeline's dispatcher
func (p *Pipeline) Dispatcher() *Dispatcher { return p.dispatcher }
