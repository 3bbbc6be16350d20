package agent

import "github.com/haasonsaas/dragonchat/pkg/models"

// DefaultMaxMessages is the default conversation window passed to the model.
const DefaultMaxMessages = 20

// TrimMessages bounds the history to the last max messages. It runs after
// validation and before dispatch, so a kept suffix is already pair-clean
// except at the cut itself; when the cut would keep tool-results whose
// issuing assistant message was dropped, the cut moves forward past those
// orphans so the suffix never begins mid-pair. Older unpaired tool calls
// discarded by the cut are an accepted cost of bounding context size.
func TrimMessages(messages []models.Message, max int) ([]models.Message, bool) {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	if len(messages) <= max {
		return messages, false
	}

	cut := len(messages) - max
	for cut < len(messages) && messages[cut].Role == models.RoleTool {
		cut++
	}
	return messages[cut:], true
}
