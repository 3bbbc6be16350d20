package agent

import (
	"context"

	"github.com/haasonsaas/dragonchat/pkg/models"
)

// DefaultMaxIterations bounds how many model calls one turn may make while
// the model keeps requesting tools.
const DefaultMaxIterations = 10

// RunTurn drives one full turn: it dispatches the enriched request to the
// model and, while the response carries tool calls, executes them and
// re-dispatches with the results appended. The final model response is
// returned along with the full message state produced by the turn.
func RunTurn(ctx context.Context, m *Middleware, model ModelHandler, exec *Executor, req ModelRequest, maxIterations int) (*models.ModelResponse, []models.Message, error) {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if exec == nil {
		exec = &Executor{}
	}

	messages := req.Messages
	var resp *models.ModelResponse

	for i := 0; i < maxIterations; i++ {
		req.Messages = messages

		var err error
		var dispatched ModelRequest
		resp, err = m.WrapModelCall(ctx, req, func(ctx context.Context, enriched ModelRequest) (*models.ModelResponse, error) {
			dispatched = enriched
			return model(ctx, enriched)
		})
		if err != nil {
			return nil, messages, err
		}

		// The enriched request is the source of truth for state: the
		// middleware may have repaired or trimmed the history.
		messages = append(dispatched.Messages, resp.Message)
		req.Context = dispatched.Context

		if len(resp.Message.ToolCalls) == 0 {
			break
		}
		results := exec.ExecuteAll(ctx, m, dispatched.Context, resp.Message.ToolCalls, nil)
		messages = append(messages, results...)
	}
	return resp, messages, nil
}
