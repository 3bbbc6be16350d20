package agent

import (
	"fmt"

	"github.com/haasonsaas/dragonchat/pkg/models"
)

// ValidateMessages repairs a history so every assistant tool call has a
// matching tool-result before the next assistant message. Violations are
// fixed by synthesizing error tool-results immediately after the offending
// assistant message; messages are never deleted or reordered. The returned
// flag reports whether anything was synthesized, so callers can decide
// whether to propagate an updated history.
//
// The repair is idempotent: running it on an already-clean sequence returns
// the input unchanged.
func ValidateMessages(messages []models.Message) ([]models.Message, bool) {
	if len(messages) == 0 {
		return messages, false
	}

	repaired := make([]models.Message, 0, len(messages))
	changed := false

	for i, msg := range messages {
		repaired = append(repaired, msg)
		if msg.Role != models.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}

		pending := make(map[string]models.ToolCall, len(msg.ToolCalls))
		order := make([]string, 0, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			if call.ID == "" {
				continue
			}
			if _, seen := pending[call.ID]; !seen {
				order = append(order, call.ID)
			}
			pending[call.ID] = call
		}

		// Scan forward to the next assistant message for results.
		for j := i + 1; j < len(messages); j++ {
			next := messages[j]
			if next.Role == models.RoleAssistant {
				break
			}
			if next.Role == models.RoleTool {
				delete(pending, next.ToolCallID)
			}
		}

		for _, id := range order {
			call, missing := pending[id]
			if !missing {
				continue
			}
			name := call.Name
			if name == "" {
				name = "unknown"
			}
			repaired = append(repaired, models.ErrorToolMessage(
				id, name,
				fmt.Sprintf("Error calling tool %q: the tool did not return a result.", name),
			))
			changed = true
		}
	}

	if !changed {
		return messages, false
	}
	return repaired, true
}
