package orchestrator

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/rcliao/monologue/internal/llm"
	"github.com/rcliao/monologue/internal/metrics"
)

// DefaultConcurrency is the default bound on in-flight service calls.
const DefaultConcurrency = 8

// gate bounds the number of concurrent Complete calls. Callers beyond the
// bound wait for a slot.
type gate struct {
	next    llm.Completer
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
}

func newGate(next llm.Completer, n int, m *metrics.Metrics) *gate {
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &gate{next: next, sem: semaphore.NewWeighted(int64(n)), metrics: m}
}

func (g *gate) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, llm.NewFatalError(err)
	}
	g.metrics.Acquire()
	defer func() {
		g.metrics.Release()
		g.sem.Release(1)
	}()
	return g.next.Complete(ctx, req)
}
