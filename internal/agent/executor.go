package agent

import (
	"context"
	"sync"

	"github.com/haasonsaas/dragonchat/pkg/models"
)

// Executor runs the tool calls of one assistant message. Calls within a
// turn are independent, each closing over its own config and performing a
// single outbound request, so they run concurrently up to Concurrency with
// no extra synchronization.
type Executor struct {
	// Concurrency is the maximum number of concurrent tool executions.
	// Default: 4.
	Concurrency int
}

// ExecuteAll executes calls through the middleware and returns one
// tool-result message per call, in input order. Every outcome, including a
// cancelled context, yields a result message; the slice always has
// len(calls) entries.
func (e *Executor) ExecuteAll(ctx context.Context, m *Middleware, rc *RuntimeContext, calls []models.ToolCall, next ToolHandler) []models.Message {
	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]models.Message, len(calls))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = models.ErrorToolMessage(call.ID, call.Name, "context canceled")
				return
			}

			results[idx] = m.WrapToolCall(ctx, ToolCallRequest{Call: call, Context: rc}, next)
		}(i, call)
	}
	wg.Wait()
	return results
}
