package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/dragonchat/pkg/models"
)

// ErrToolNotFound is returned by handlers when no registered tool matches a
// requested name.
var ErrToolNotFound = errors.New("tool not found")

// Registry manages statically registered tools with thread-safe
// registration and lookup. Dynamic webhook tools never enter the registry;
// they live on the turn's RuntimeContext. The registry is the fallback the
// middleware consults when a requested tool is not dynamic.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]models.Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]models.Tool)}
}

// Register adds a tool by its name, replacing any existing tool with the
// same name.
func (r *Registry) Register(tool models.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (models.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// All returns the registered tools, sorted by name.
func (r *Registry) All() []models.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Handler returns a ToolHandler executing registered tools. Execution
// failures are reported as error tool-result messages; only an unknown tool
// name yields ErrToolNotFound.
func (r *Registry) Handler() ToolHandler {
	return func(ctx context.Context, req ToolCallRequest) (models.Message, error) {
		tool, ok := r.Get(req.Call.Name)
		if !ok {
			return models.Message{}, fmt.Errorf("%w: %s", ErrToolNotFound, req.Call.Name)
		}

		out, err := tool.Execute(ctx, req.Call.Arguments)
		if err != nil {
			return models.ErrorToolMessage(req.Call.ID, req.Call.Name, err.Error()), nil
		}
		status := models.StatusOK
		if out.IsError {
			status = models.StatusError
		}
		return models.Message{
			Role:       models.RoleTool,
			ToolCallID: req.Call.ID,
			Name:       req.Call.Name,
			Content:    out.Content,
			Status:     status,
		}, nil
	}
}
