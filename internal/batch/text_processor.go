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

// TextRequest is one embedding request: raw text plus a one-shot reply
// channel. TextProcessor is the text-keyed sibling of Processor,
// fronting the external embedding model service (spec §4.10) with the
// same adaptive micro-batching policy as the vector Processor fronts
// HNSW (spec §4.5) — the two sit on either side of the embedding
// boundary and so batch different payload shapes.
type TextRequest struct {
	Text  string
	Reply chan TextReply
}

// TextReply carries the per-request embedding result.
type TextReply struct {
	Vector []float32
	Err    error
}

// TextWorkFunc calls the embedding model service for a batch of texts,
// returning one vector per input in the same order.
type TextWorkFunc func(ctx context.Context, texts []string) ([][]float32, error)

// TextProcessor is the adaptive batch processor for embedding
// computation requests.
type TextProcessor struct {
	cfg  Config
	work TextWorkFunc

	queue  chan TextRequest
	closed chan struct{}
	wg     sync.WaitGroup

	mu           sync.Mutex
	curMaxBatch  int
	lastAdjust   time.Time
	avgLatencyNS int64

	metrics Metrics
}

// NewTextProcessor builds and starts a text-batching processor.
func NewTextProcessor(cfg Config, work TextWorkFunc) *TextProcessor {
	if cfg.WorkerThreads < 1 {
		cfg.WorkerThreads = 1
	}
	p := &TextProcessor{
		cfg:         cfg,
		work:        work,
		queue:       make(chan TextRequest, cfg.QueueCapacity),
		closed:      make(chan struct{}),
		curMaxBatch: cfg.MaxBatchSize,
	}
	for i := 0; i < cfg.WorkerThreads; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	return p
}

// Submit enqueues text for embedding, fast-failing with Overloaded if
// the queue is full (spec §4.5 backpressure, reused for §4.10).
func (p *TextProcessor) Submit(ctx context.Context, text string) ([]float32, error) {
	req := TextRequest{Text: text, Reply: make(chan TextReply, 1)}
	select {
	case p.queue <- req:
	default:
		atomic.AddUint64(&p.metrics.Overloaded, 1)
		return nil, cortexerr.New(cortexerr.Overloaded, "batch.TextProcessor.Submit", nil)
	}
	select {
	case rep := <-req.Reply:
		return rep.Vector, rep.Err
	case <-ctx.Done():
		return nil, cortexerr.New(cortexerr.Timeout, "batch.TextProcessor.Submit", ctx.Err())
	}
}

// Close stops accepting new batches and drains in-flight work.
func (p *TextProcessor) Close() {
	close(p.closed)
	close(p.queue)
	p.wg.Wait()
}

func (p *TextProcessor) currentMaxBatch() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curMaxBatch
}

func (p *TextProcessor) workerLoop() {
	defer p.wg.Done()
	timer := time.NewTimer(p.cfg.BatchTimeout)
	defer timer.Stop()

	for {
		batch := make([]TextRequest, 0, p.currentMaxBatch())
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

func (p *TextProcessor) runBatch(batch []TextRequest, queueEmptied bool) {
	start := time.Now()
	timerLog := logging.StartTimer(logging.CategoryBatch, "run_text_batch")
	defer timerLog.Stop()

	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.Text
	}

	g, ctx := errgroup.WithContext(context.Background())
	var results [][]float32
	var err error
	g.Go(func() error {
		results, err = p.work(ctx, texts)
		return err
	})
	_ = g.Wait()

	for i, r := range batch {
		if err != nil {
			r.Reply <- TextReply{Err: err}
			continue
		}
		r.Reply <- TextReply{Vector: results[i]}
	}

	atomic.AddUint64(&p.metrics.TotalBatches, 1)
	atomic.AddUint64(&p.metrics.TotalVectors, uint64(len(batch)))

	p.adjust(time.Since(start), queueEmptied)
}

// adjust mirrors Processor.adjust: grow curMaxBatch when average
// in-flight latency exceeds target, shrink it when the queue empties
// before filling a batch (spec §4.5).
func (p *TextProcessor) adjust(latency time.Duration, queueEmptied bool) {
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
func (p *TextProcessor) Snapshot() Metrics {
	return Metrics{
		TotalBatches:        atomic.LoadUint64(&p.metrics.TotalBatches),
		TotalVectors:        atomic.LoadUint64(&p.metrics.TotalVectors),
		AdaptiveAdjustments: atomic.LoadUint64(&p.metrics.AdaptiveAdjustments),
		Overloaded:          atomic.LoadUint64(&p.metrics.Overloaded),
	}
}
