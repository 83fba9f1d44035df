package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/cortexerr"
)

func echoWork(_ context.Context, vectors [][]float32) ([][]float32, error) {
	out := make([][]float32, len(vectors))
	copy(out, vectors)
	return out, nil
}

func TestSubmitEchoesVector(t *testing.T) {
	p := New(Config{
		MinBatchSize: 1, MaxBatchSize: 4, WorkerThreads: 1,
		QueueCapacity: 8, BatchTimeout: 5 * time.Millisecond,
	}, echoWork)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := p.Submit(ctx, []float32{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, out)
}

func TestSubmitOverloadedWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	slow := func(ctx context.Context, vectors [][]float32) ([][]float32, error) {
		<-block
		return make([][]float32, len(vectors)), nil
	}
	p := New(Config{
		MinBatchSize: 1, MaxBatchSize: 1, WorkerThreads: 1,
		QueueCapacity: 1, BatchTimeout: time.Second,
	}, slow)
	defer func() {
		close(block)
		p.Close()
	}()

	ctx := context.Background()
	// First request occupies the sole worker.
	go func() { _, _ = p.Submit(ctx, []float32{1}) }()
	time.Sleep(10 * time.Millisecond)
	// Second fills the queue capacity of 1.
	go func() { _, _ = p.Submit(ctx, []float32{2}) }()
	time.Sleep(10 * time.Millisecond)

	_, err := p.Submit(ctx, []float32{3})
	require.Error(t, err)
	require.True(t, cortexerr.Is(err, cortexerr.Overloaded))
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3, 4, 5}
	require.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	require.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
}
