// Package batch implements the adaptive micro-batching front-end of
// spec §4.5: a bounded queue, a worker pool draining it into batches
// under an adaptive size/timeout policy, and fast-fail backpressure.
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cortexmem/cortex/internal/cortexerr"
	"github.com/cortexmem/cortex/internal/logging"
)

// Request is one unit of work: a vector to embed/search plus a
// one-shot reply channel (spec §4.5's "payload + one-shot reply
// channel" request shape).
type Request struct {
	Vector []float32
	Reply  chan Reply
}

// Reply carries the per-request result.
type Reply struct {
	Result []float32
	Err    error
}

// Config tunes the processor (spec §6 Batch config).
type Config struct {
	MinBatchSize  int
	MaxBatchSize  int
	WorkerThreads int
	QueueCapacity int
	BatchTimeout  time.Duration
	Adaptive      bool
}

// WorkFunc processes one batch of vectors, returning one result per
// input vector in the same order.
type WorkFunc func(ctx context.Context, vectors [][]float32) ([][]float32, error)

// Metrics are the cumulative counters named in spec §4.5.
type Metrics struct {
	TotalBatches       uint64
	TotalVectors       uint64
	SIMDOps            uint64
	AdaptiveAdjustments uint64
	Overloaded         uint64
}

// Processor is the adaptive batch processor.
type Processor struct {
	cfg     Config
	work    WorkFunc
	queue   chan Request
	closed  chan struct{}
	wg      sync.WaitGroup

	mu           sync.Mutex
	curMaxBatch  int
	lastAdjust   time.Time
	avgLatencyNS int64

	metrics Metrics
}

// New builds and starts a processor with cfg.WorkerThreads workers
// draining a queue of capacity cfg.QueueCapacity.
func New(cfg Config, work WorkFunc) *Processor {
	if cfg.WorkerThreads < 1 {
		cfg.WorkerThreads = 1
	}
	p := &Processor{
		cfg:         cfg,
		work:        work,
		queue:       make(chan Request, cfg.QueueCapacity),
		closed:      make(chan struct{}),
		curMaxBatch: cfg.MaxBatchSize,
	}
	for i := 0; i < cfg.WorkerThreads; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	return p
}

// Submit enqueues a vector for processing and blocks until a reply is
// available or ctx is done. Returns Overloaded immediately if the
// queue is full (spec §4.5 backpressure).
func (p *Processor) Submit(ctx context.Context, vector []float32) ([]float32, error) {
	req := Request{Vector: vector, Reply: make(chan Reply, 1)}
	select {
	case p.queue <- req:
	default:
		atomic.AddUint64(&p.metrics.Overloaded, 1)
		return nil, cortexerr.New(cortexerr.Overloaded, "batch.Submit", nil)
	}
	select {
	case rep := <-req.Reply:
		return rep.Result, rep.Err
	case <-ctx.Done():
		return nil, cortexerr.New(cortexerr.Timeout, "batch.Submit", ctx.Err())
	}
}

// Close stops accepting new batches and waits for in-flight workers to
// drain the queue.
func (p *Processor) Close() {
	close(p.closed)
	close(p.queue)
	p.wg.Wait()
}

func (p *Processor) currentMaxBatch() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curMaxBatch
}

func (p *Processor) workerLoop() {
	defer p.wg.Done()
	timer := time.NewTimer(p.cfg.BatchTimeout)
	defer timer.Stop()

	for {
		batch := make([]Request, 0, p.currentMaxBatch())
		timer.Reset(p.cfg.BatchTimeout)
		// emptied is true when the collect loop broke on the batch
		// timeout rather than filling to curMaxBatch — i.e. the queue
		// ran dry before a full batch was available.
		emptied := false

	collect:
		for len(batch) < p.currentMaxBatch() {
			select {
			case req, ok := <-p.queue:
				if !ok {
					if len(batch) > 0 {
						p.runBatch(batch, emptied)
					}
					return
				}
				batch = append(batch, req)
				if len(batch) >= p.cfg.MinBatchSize {
					select {
					case <-timer.C:
						emptied = true
						break collect
					default:
					}
				}
			case <-timer.C:
				emptied = true
				break collect
			}
		}
		if len(batch) > 0 {
			p.runBatch(batch, emptied)
		}
	}
}

func (p *Processor) runBatch(batch []Request, queueEmptied bool) {
	start := time.Now()
	timerLog := logging.StartTimer(logging.CategoryBatch, "run_batch")
	defer timerLog.Stop()

	vectors := make([][]float32, len(batch))
	for i, r := range batch {
		vectors[i] = r.Vector
	}

	g, ctx := errgroup.WithContext(context.Background())
	var results [][]float32
	var err error
	g.Go(func() error {
		results, err = p.work(ctx, vectors)
		return err
	})
	_ = g.Wait()

	for i, r := range batch {
		if err != nil {
			r.Reply <- Reply{Err: err}
			continue
		}
		r.Reply <- Reply{Result: results[i]}
	}

	atomic.AddUint64(&p.metrics.TotalBatches, 1)
	atomic.AddUint64(&p.metrics.TotalVectors, uint64(len(batch)))
	if len(vectors) >= 8 {
		atomic.AddUint64(&p.metrics.SIMDOps, 1)
	}

	p.adjust(time.Since(start), queueEmptied)
}

// adjust grows curMaxBatch when average in-flight latency exceeds
// target (bigger batches amortize per-batch overhead better under
// load) and shrinks it when the queue empties before filling a batch
// (there's no backlog to justify the current size), rate-limited to
// once per BatchTimeout*4 (spec §4.5: "Adjustments are rate-limited").
func (p *Processor) adjust(latency time.Duration, queueEmptied bool) {
	if !p.cfg.Adaptive {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	const targetLatency = 5 * time.Millisecond
	minInterval := p.cfg.BatchTimeout * 4
	if time.Since(p.lastAdjust) < minInterval {
		return
	}

	prevAvg := time.Duration(atomic.LoadInt64(&p.avgLatencyNS))
	newAvg := (prevAvg + latency) / 2
	atomic.StoreInt64(&p.avgLatencyNS, int64(newAvg))

	changed := false
	if newAvg > targetLatency && p.curMaxBatch < p.cfg.MaxBatchSize {
		p.curMaxBatch++
		changed = true
	} else if queueEmptied && p.curMaxBatch > p.cfg.MinBatchSize {
		p.curMaxBatch--
		changed = true
	}
	if changed {
		p.lastAdjust = time.Now()
		atomic.AddUint64(&p.metrics.AdaptiveAdjustments, 1)
	}
}

// Snapshot returns a copy of the cumulative metrics.
func (p *Processor) Snapshot() Metrics {
	return Metrics{
		TotalBatches:        atomic.LoadUint64(&p.metrics.TotalBatches),
		TotalVectors:        atomic.LoadUint64(&p.metrics.TotalVectors),
		SIMDOps:             atomic.LoadUint64(&p.metrics.SIMDOps),
		AdaptiveAdjustments: atomic.LoadUint64(&p.metrics.AdaptiveAdjustments),
		Overloaded:          atomic.LoadUint64(&p.metrics.Overloaded),
	}
}
