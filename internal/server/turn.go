package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/haasonsaas/dragonchat/internal/agent"
	"github.com/haasonsaas/dragonchat/internal/providers"
	"github.com/haasonsaas/dragonchat/pkg/models"
)

type turnRequest struct {
	Messages []models.Message `json:"messages"`
	Context  map[string]any   `json:"context,omitempty"`
	Config   map[string]any   `json:"config,omitempty"`
	Model    string           `json:"model,omitempty"`
	Provider string           `json:"provider,omitempty"`
}

type turnResponse struct {
	TurnID       string           `json:"turn_id"`
	Message      models.Message   `json:"message"`
	Messages     []models.Message `json:"messages"`
	Model        string           `json:"model"`
	StopReason   string           `json:"stop_reason,omitempty"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`
}

// handleTurn runs one full conversational turn: request shaping, the model
// call loop, and tool execution.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "messages must not be empty")
		return
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = s.cfg.Provider.Name
	}
	provider, err := s.providers.Get(providerName)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	rc := agent.ContextFromAny(req.Context)
	s.applyAgentConfig(rc)

	turnID := uuid.NewString()
	logger := s.logger.With("turn_id", turnID)
	logger.Info("turn started",
		"messages", len(req.Messages),
		"dynamic_tools", len(rc.Tools),
		"provider", providerName)

	resp, messages, err := agent.RunTurn(r.Context(), s.middleware, providers.Handler(provider), s.executor, agent.ModelRequest{
		Messages: req.Messages,
		Context:  rc,
		Config:   req.Config,
		Model:    req.Model,
	}, s.cfg.Agent.MaxIterations)
	if err != nil {
		logger.Error("turn failed", "error", err)
		writeError(w, http.StatusBadGateway, "model call failed")
		return
	}

	logger.Info("turn completed",
		"model", resp.Model,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens)

	writeJSON(w, http.StatusOK, turnResponse{
		TurnID:       turnID,
		Message:      resp.Message,
		Messages:     messages,
		Model:        resp.Model,
		StopReason:   resp.StopReason,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	})
}

// applyAgentConfig layers server-level agent configuration under the
// per-turn context: configured tools are prepended, the configured prompt
// fills an empty context prompt, and the knowledge flag enables the
// knowledge instructions.
func (s *Server) applyAgentConfig(rc *agent.RuntimeContext) {
	if len(s.cfg.Agent.Tools) > 0 {
		rc.Tools = append(append([]models.ToolConfig{}, s.cfg.Agent.Tools...), rc.Tools...)
	}
	if rc.SystemPrompt == "" {
		rc.SystemPrompt = s.cfg.Agent.SystemPrompt
	}
	if s.cfg.Agent.KnowledgeBase {
		if _, set := rc.Metadata["has_knowledge_base"]; !set {
			rc.Metadata["has_knowledge_base"] = true
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
