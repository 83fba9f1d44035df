package batch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func upperCaseWork(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(strings.ToUpper(t)))}
	}
	return out, nil
}

func TestTextProcessorSubmit(t *testing.T) {
	p := NewTextProcessor(Config{
		MinBatchSize: 1, MaxBatchSize: 4, WorkerThreads: 1,
		QueueCapacity: 8, BatchTimeout: 5 * time.Millisecond,
	}, upperCaseWork)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := p.Submit(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{5}, out)
}

func TestTextProcessorOverloaded(t *testing.T) {
	block := make(chan struct{})
	slow := func(ctx context.Context, texts []string) ([][]float32, error) {
		<-block
		return make([][]float32, len(texts)), nil
	}
	p := NewTextProcessor(Config{
		MinBatchSize: 1, MaxBatchSize: 1, WorkerThreads: 1,
		QueueCapacity: 1, BatchTimeout: time.Second,
	}, slow)
	defer func() {
		close(block)
		p.Close()
	}()

	ctx := context.Background()
	go func() { _, _ = p.Submit(ctx, "a") }()
	time.Sleep(10 * time.Millisecond)
	go func() { _, _ = p.Submit(ctx, "b") }()
	time.Sleep(10 * time.Millisecond)

	_, err := p.Submit(ctx, "c")
	require.Error(t, err)
}
