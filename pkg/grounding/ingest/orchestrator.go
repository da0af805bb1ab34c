// Package ingest moves finalized records from a parser into the store: an
// Orchestrator prepares the index for one namespace, a Pipeline filters the
// records and a Dispatcher writes them in ordered batches.
package ingest

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"

	"github.com/cognicore/grounding/pkg/grounding/store"
)

// Indexer is the part of store.Store an ingestion run needs
type Indexer interface {
	Inserter
	EnsureIndex(ctx context.Context) error
	ClearNamespace(ctx context.Context, ns string) error
	DisableAutoRefresh(ctx context.Context) error
	EnableAutoRefresh(ctx context.Context) error
	RefreshIndex(ctx context.Context) error
	RecordRun(ctx context.Context, r store.Run) error
}

// ParseFunc reads a source document and feeds every finalized record to
// sink, closing it when the document ends.
type ParseFunc func(ctx context.Context, sink Sink) error

// Report summarizes one ingestion run
type Report struct {
	RunID     string    `json:"runId"`
	Namespace string    `json:"namespace"`
	Built     int64     `json:"built"`
	Accepted  int64     `json:"accepted"`
	Inserted  int64     `json:"inserted"`
	Batches   int64     `json:"batches"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

// Duration returns how long the run took
func (r Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

func (r Report) run(err error) store.Run {
	out := store.Run{
		ID:        r.RunID,
		Namespace: r.Namespace,
		Built:     r.Built,
		Accepted:  r.Accepted,
		Batches:   r.Batches,
		Started:   r.Started,
		Finished:  r.Finished,
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// Orchestrator runs the index preparation and ingestion sequence for a
// namespace
type Orchestrator struct {
	idx    Indexer
	filter Filter
	opts   DispatcherOptions

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewOrchestrator creates an orchestrator writing to idx. A nil filter keeps
// every record.
func NewOrchestrator(idx Indexer, filter Filter, opts DispatcherOptions) *Orchestrator {
	return &Orchestrator{
		idx:     idx,
		filter:  filter,
		opts:    opts,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (o *Orchestrator) newRunID(t time.Time) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), o.entropy).String()
}

// Run replaces the records of namespace ns with the ones parse produces.
//
// The index is created if needed, the namespace cleared and auto refresh
// disabled before parsing. Once every batch is written, auto refresh is
// enabled again and the index refreshed. A failure at any step stops the
// run; batches already inserted stay in the store and auto refresh is left
// disabled until the next successful run.
func (o *Orchestrator) Run(ctx context.Context, ns string, parse ParseFunc) (Report, error) {
	started := o.now()
	rep := Report{
		RunID:     o.newRunID(started),
		Namespace: ns,
		Started:   started,
	}
	logger := log.WithFields(log.Fields{"runId": rep.RunID, "namespace": ns})
	logger.Info("Starting ingestion")

	d := NewDispatcher(o.idx, o.opts)
	p := NewPipeline(ctx, ns, o.filter, d)

	err := o.run(ctx, ns, parse, p)

	rep.Built = p.Built()
	rep.Accepted = p.Accepted()
	rep.Inserted = d.Records()
	rep.Batches = d.Batches()
	rep.Finished = o.now()

	if rerr := o.idx.RecordRun(context.WithoutCancel(ctx), rep.run(err)); rerr != nil {
		logger.WithError(rerr).Warn("Unable to record ingestion run")
	}

	fields := log.Fields{
		"built":    rep.Built,
		"accepted": rep.Accepted,
		"batches":  rep.Batches,
		"took":     rep.Duration().Round(time.Millisecond),
	}
	if err != nil {
		metrics.runsTotal.WithLabelValues(ns, "failed").Inc()
		logger.WithFields(fields).WithError(err).Error("Ingestion failed")
		return rep, err
	}
	metrics.runsTotal.WithLabelValues(ns, "ok").Inc()
	logger.WithFields(fields).Info("Finished ingestion")
	return rep, nil
}

func (o *Orchestrator) run(ctx context.Context, ns string, parse ParseFunc, p *Pipeline) error {
	if err := o.idx.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	if err := o.idx.ClearNamespace(ctx, ns); err != nil {
		return fmt.Errorf("clear namespace %s: %w", ns, err)
	}
	if err := o.idx.DisableAutoRefresh(ctx); err != nil {
		return fmt.Errorf("disable auto refresh: %w", err)
	}

	if err := parse(ctx, p); err != nil {
		// let queued inserts settle so none outlives the run
		_ = p.Dispatcher().Wait(ctx)
		return fmt.Errorf("parse %s: %w", ns, err)
	}
	// a parser that never closed its sink still gets its remainder written
	if err := p.Close(); err != nil {
		return fmt.Errorf("flush %s: %w", ns, err)
	}

	log.WithField("namespace", ns).Info("Updating index with processed data")
	if err := o.idx.EnableAutoRefresh(ctx); err != nil {
		return fmt.Errorf("enable auto refresh: %w", err)
	}
	if err := o.idx.RefreshIndex(ctx); err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	return nil
}

// Clear removes every record of namespace ns and refreshes the index
func (o *Orchestrator) Clear(ctx context.Context, ns string) error {
	if err := o.idx.ClearNamespace(ctx, ns); err != nil {
		return fmt.Errorf("clear namespace %s: %w", ns, err)
	}
	if err := o.idx.RefreshIndex(ctx); err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	return nil
}
