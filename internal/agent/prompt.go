package agent

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// DefaultSystemPrompt is the fallback base instruction text when neither the
// turn configuration nor the runtime context supplies one.
const DefaultSystemPrompt = `You are a helpful AI assistant that can use tools to help users accomplish their tasks.

You have access to various tools that can make HTTP requests to different endpoints.
When a user asks you to do something, use the available tools to gather information or perform actions.

Always be helpful, accurate, and clear in your responses.`

// knowledgeBaseInstructions directs the model to consult the knowledge
// search tool before answering from general knowledge. Appended only when
// the assistant has an attached knowledge base.
const knowledgeBaseInstructions = `

## Knowledge Base Instructions
IMPORTANT: You have access to an assistant-specific knowledge base through the ` + "`search_knowledge_base`" + ` tool.
- ALWAYS search the knowledge base FIRST when the user asks about products, services, policies, procedures, or any information that may be documented.
- Use the search results as the PRIMARY SOURCE for your answer.
- If the search returns relevant results, you MUST base your answer on that information.
- Only answer from general knowledge when the search finds nothing relevant.
`

// Placeholder tokens recognized in base instructions for in-place datetime
// substitution.
var datetimePlaceholders = []string{"{{current_datetime}}", "{current_datetime}"}

// Identity fields rendered as the labeled user block; everything else in
// metadata goes into the additional-information block.
var identityFields = []struct {
	key   string
	label string
}{
	{"whatsapp_contact_name", "Name"},
	{"whatsapp_contact_number", "Contact number"},
}

// ComposePrompt assembles the final system prompt for a turn. The base
// instructions come from the first non-empty source of: the turn config's
// system_prompt, the runtime context's system prompt, the built-in default.
// Contextual sections (user identity, current UTC time, knowledge-base
// instructions) are appended in fixed order; a recognized datetime
// placeholder in the base is substituted in place instead of appended.
func ComposePrompt(rc *RuntimeContext, config map[string]any, now time.Time, logger *slog.Logger) string {
	base, source := basePrompt(rc, config)
	if logger != nil {
		logger.Debug("prompt.composed", "source", source, "has_kb", rc.HasKnowledgeBase())
	}

	var b strings.Builder
	datetime := ZuluTimestamp(now)

	substituted := false
	for _, placeholder := range datetimePlaceholders {
		if strings.Contains(base, placeholder) {
			base = strings.ReplaceAll(base, placeholder, datetime)
			substituted = true
		}
	}
	b.WriteString(base)

	b.WriteString(userContextSection(rc.Metadata))

	if !substituted {
		b.WriteString("\n\n## Context information:\n- Current date and time: ")
		b.WriteString(datetime)
		b.WriteString("\n")
	}

	if rc.HasKnowledgeBase() {
		b.WriteString(knowledgeBaseInstructions)
	}
	return b.String()
}

func basePrompt(rc *RuntimeContext, config map[string]any) (string, string) {
	if s, ok := config["system_prompt"].(string); ok && strings.TrimSpace(s) != "" {
		return s, "config"
	}
	if strings.TrimSpace(rc.SystemPrompt) != "" {
		return rc.SystemPrompt, "context"
	}
	return DefaultSystemPrompt, "default"
}

// userContextSection renders known identity fields as a labeled block plus
// any remaining metadata as an additional-information block. Empty metadata
// renders nothing.
func userContextSection(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}

	var parts []string
	known := map[string]bool{}

	var identity []string
	for _, f := range identityFields {
		known[f.key] = true
		if v, ok := metadata[f.key]; ok && v != nil && fmt.Sprint(v) != "" {
			identity = append(identity, fmt.Sprintf("  - %s: %v", f.label, v))
		}
	}
	if len(identity) > 0 {
		parts = append(parts, "## User details:")
		parts = append(parts, identity...)
	}

	var rest []string
	for k := range metadata {
		if !known[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	if len(rest) > 0 {
		parts = append(parts, "## Additional information:")
		for _, k := range rest {
			parts = append(parts, fmt.Sprintf("  - %s: %v", k, metadata[k]))
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return "\n\n" + strings.Join(parts, "\n") + "\n"
}

// ZuluTimestamp formats t as YYYYMMDDTHHMMSSZ in UTC.
func ZuluTimestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
