package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cognicore/grounding/pkg/grounding/store"
)

// DefaultBatchSize is the number of records per insert
const DefaultBatchSize = 100

// Inserter writes one batch of records to the store
type Inserter interface {
	InsertRecords(ctx context.Context, recs []store.Record, refreshAfter bool) error
}

// DispatcherOptions configures batching
type DispatcherOptions struct {
	// BatchSize is the number of records per insert. Zero means
	// DefaultBatchSize.
	BatchSize int
	// MaxPendingBatches caps how many batches may be queued or in flight.
	// Zero leaves the queue unbounded and Offer never waits on the store.
	MaxPendingBatches int
}

// insertOp is one queued batch insert. done is closed once the insert
// finished or was skipped; err is set before done closes.
type insertOp struct {
	done chan struct{}
	err  error
}

// Dispatcher groups records into fixed-size batches and inserts them one at a
// time, in the order the batches were formed. A Dispatcher has a single
// producer; Offer and Flush must not be called concurrently.
type Dispatcher struct {
	ins   Inserter
	size  int
	slots chan struct{}

	batch []store.Record
	last  *insertOp
	seq   int

	mu       sync.Mutex
	err      error
	inserted int64
	records  int64
}

// NewDispatcher creates a dispatcher writing to ins
func NewDispatcher(ins Inserter, opts DispatcherOptions) *Dispatcher {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	d := &Dispatcher{
		ins:   ins,
		size:  size,
		batch: make([]store.Record, 0, size),
	}
	if opts.MaxPendingBatches > 0 {
		d.slots = make(chan struct{}, opts.MaxPendingBatches)
	}
	return d
}

// Offer appends rec to the current batch and submits the batch once it is
// full. It returns the error of an earlier failed insert, after which no
// further batches are submitted.
func (d *Dispatcher) Offer(ctx context.Context, rec store.Record) error {
	if err := d.Err(); err != nil {
		return err
	}
	d.batch = append(d.batch, rec)
	if len(d.batch) < d.size {
		return nil
	}
	full := d.batch
	d.batch = make([]store.Record, 0, d.size)
	return d.submit(ctx, full)
}

// Flush submits the partial batch, if any, and waits for every submitted
// insert to complete. It returns the first insert error.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if len(d.batch) > 0 && d.Err() == nil {
		rest := d.batch
		d.batch = make([]store.Record, 0, d.size)
		if err := d.submit(ctx, rest); err != nil {
			return err
		}
	}
	return d.Wait(ctx)
}

// Wait blocks until every submitted insert completed, without submitting the
// partial batch.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d.last == nil {
		return d.Err()
	}
	select {
	case <-d.last.done:
		return d.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the first insert error, if any
func (d *Dispatcher) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Batches returns how many batches were inserted successfully
func (d *Dispatcher) Batches() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inserted
}

// Records returns how many records were inserted successfully
func (d *Dispatcher) Records() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.records
}

func (d *Dispatcher) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
	}
}

// submit chains batch behind the previously submitted insert
func (d *Dispatcher) submit(ctx context.Context, batch []store.Record) error {
	if d.slots != nil {
		select {
		case d.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.seq++
	seq := d.seq
	op := &insertOp{done: make(chan struct{})}
	prev := d.last
	d.last = op
	metrics.pendingBatches.Inc()

	go func() {
		defer func() {
			metrics.pendingBatches.Dec()
			if d.slots != nil {
				<-d.slots
			}
			close(op.done)
		}()

		if prev != nil {
			<-prev.done
			if prev.err != nil {
				op.err = prev.err
				return
			}
		}

		start := time.Now()
		err := d.ins.InsertRecords(ctx, batch, false)
		metrics.insertDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			op.err = fmt.Errorf("insert batch %d (%d records): %w", seq, len(batch), err)
			d.fail(op.err)
			return
		}

		metrics.batchesInserted.Inc()
		d.mu.Lock()
		d.inserted++
		d.records += int64(len(batch))
		d.mu.Unlock()
	}()
	return nil
}
