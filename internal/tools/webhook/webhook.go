// Package webhook turns untrusted webhook tool configurations into callable
// tools.
//
// A built tool POSTs its validated arguments to the configured URL and maps
// every outcome, including transport failures, into a uniform JSON payload
// with a "status" field. Callers never see a raised transport error; the
// payload shape is the contract the rest of the pipeline depends on.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/dragonchat/internal/observability"
	"github.com/haasonsaas/dragonchat/internal/tools/argschema"
	"github.com/haasonsaas/dragonchat/internal/tools/naming"
	"github.com/haasonsaas/dragonchat/pkg/models"
)

// ErrInvalidConfig is returned when a tool config cannot be built.
var ErrInvalidConfig = errors.New("invalid tool config")

// Default connect/read timeouts keep webhook issues from looking like a
// missing model response.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

// MaxResponseBody bounds how much of a webhook response is read.
const MaxResponseBody = 4 << 20 // 4MB

// Timeout is the resolved (connect, read) pair for a webhook call.
type Timeout struct {
	Connect time.Duration
	Read    time.Duration
}

func (t Timeout) total() time.Duration {
	return t.Connect + t.Read
}

func (t Timeout) payload() any {
	return map[string]any{
		"connect": t.Connect.Seconds(),
		"read":    t.Read.Seconds(),
	}
}

// Builder constructs webhook tools with shared logging and metrics.
type Builder struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics

	// Client overrides the per-tool HTTP client; used by tests.
	Client *http.Client
}

// Tool is a compiled webhook tool. It satisfies models.Tool.
type Tool struct {
	name         string
	originalName string
	description  string
	url          string
	headers      map[string]string
	timeout      Timeout
	args         *argschema.Model
	schema       json.RawMessage
	client       *http.Client
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// Build compiles a ToolConfig into a Tool. The name is sanitized for
// provider compatibility, the URL must be http(s) with a host, and the
// schema is compiled into an argument model. Failures are wrapped in
// ErrInvalidConfig so a single bad config can be skipped without aborting
// the turn.
func (b *Builder) Build(cfg models.ToolConfig) (*Tool, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	name, changed := naming.Sanitize(cfg.Name)
	logger.Debug("dynamic_tool.build.start",
		"raw_name", cfg.Name,
		"sanitized_name", name,
		"name_changed", changed,
		"url", observability.RedactURL(cfg.URL),
		"has_schema", cfg.Schema != nil,
		"has_headers", len(cfg.Headers) > 0,
	)

	if err := validateURL(cfg.URL); err != nil {
		b.countBuild("error")
		logger.Warn("dynamic_tool.build.failed", "tool", name, "error", err)
		return nil, err
	}

	args, err := argschema.Compile(cfg.Schema)
	if err != nil {
		b.countBuild("error")
		logger.Warn("dynamic_tool.build.failed", "tool", name, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	description := cfg.Description
	if changed {
		// Operator visibility: record what the original name was.
		description = fmt.Sprintf(
			"%s\n\n(Note: original tool name was %q; sanitized to %q for provider compatibility.)",
			cfg.Description, cfg.Name, name,
		)
	}

	timeout := resolveTimeout(cfg.Timeout)

	schema := cfg.Schema
	if schema == nil {
		schema = argschema.EmptyObjectSchema()
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		b.countBuild("error")
		return nil, fmt.Errorf("%w: unserializable schema: %v", ErrInvalidConfig, err)
	}

	client := b.Client
	if client == nil {
		client = &http.Client{
			Timeout: timeout.total(),
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: timeout.Connect}).DialContext,
				ResponseHeaderTimeout: timeout.Read,
			},
		}
	}

	tool := &Tool{
		name:         name,
		originalName: cfg.Name,
		description:  description,
		url:          cfg.URL,
		headers:      cfg.Headers,
		timeout:      timeout,
		args:         args,
		schema:       schemaJSON,
		client:       client,
		logger:       logger,
		metrics:      b.Metrics,
	}

	b.countBuild("success")
	logger.Info("dynamic_tool.build.succeeded",
		"tool", name,
		"raw_name", cfg.Name,
		"url", observability.RedactURL(cfg.URL),
		"properties", len(args.Fields()),
	)
	return tool, nil
}

func (b *Builder) countBuild(status string) {
	if b.Metrics != nil {
		b.Metrics.ToolBuildCounter.WithLabelValues(status).Inc()
	}
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: unparseable url %q", ErrInvalidConfig, raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https, got %q", ErrInvalidConfig, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: url has no host: %q", ErrInvalidConfig, raw)
	}
	return nil
}

// resolveTimeout coerces the config timeout into a (connect, read) pair.
// Accepted forms: a {connect, read} object, a numeric scalar applied as the
// total, or a numeric string. Anything else falls back to the defaults.
func resolveTimeout(v any) Timeout {
	def := Timeout{Connect: DefaultConnectTimeout, Read: DefaultReadTimeout}
	switch t := v.(type) {
	case nil:
		return def
	case map[string]any:
		out := def
		if c, ok := seconds(t["connect"]); ok {
			out.Connect = c
		}
		if r, ok := seconds(t["read"]); ok {
			out.Read = r
		}
		return out
	default:
		if total, ok := seconds(v); ok {
			return splitTotal(total)
		}
		return def
	}
}

func splitTotal(total time.Duration) Timeout {
	// A scalar bounds the whole call. Connect keeps its default share when
	// the budget allows it; the remainder bounds the read.
	if total > DefaultConnectTimeout {
		return Timeout{Connect: DefaultConnectTimeout, Read: total - DefaultConnectTimeout}
	}
	return Timeout{Connect: total, Read: total}
}

func seconds(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second)), n > 0
	case int:
		return time.Duration(n) * time.Second, n > 0
	case int64:
		return time.Duration(n) * time.Second, n > 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || f <= 0 {
			return 0, false
		}
		return time.Duration(f * float64(time.Second)), true
	default:
		return 0, false
	}
}

// Name returns the sanitized provider-safe tool name.
func (t *Tool) Name() string { return t.name }

// OriginalName returns the raw configured name before sanitization.
func (t *Tool) OriginalName() string { return t.originalName }

// Description returns the tool description, including the sanitization note
// when the name was changed.
func (t *Tool) Description() string { return t.description }

// Schema returns the provider-facing parameters schema.
func (t *Tool) Schema() json.RawMessage { return t.schema }

// Timeout returns the resolved (connect, read) pair.
func (t *Tool) Timeout() Timeout { return t.timeout }

// Execute validates params against the compiled argument model and POSTs the
// materialized payload to the webhook. The returned output always carries
// the uniform result payload; the error return is reserved for programming
// errors and is nil for every transport outcome.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolOutput, error) {
	payload, err := t.args.MaterializeJSON(params)
	if err != nil {
		return &models.ToolOutput{
			Content: "invalid arguments: " + err.Error(),
			IsError: true,
		}, nil
	}

	result := t.Post(ctx, payload)
	body, err := json.Marshal(result)
	if err != nil {
		return &models.ToolOutput{Content: "unserializable webhook result", IsError: true}, nil
	}
	status, _ := result["status"].(string)
	return &models.ToolOutput{
		Content: string(body),
		IsError: status == "error",
	}, nil
}

// Post sends payload to the webhook and maps the outcome to the uniform
// result payload. It never returns an error; transport failures, non-2xx
// statuses, and unparseable bodies all become structured results.
func (t *Tool) Post(ctx context.Context, payload map[string]any) map[string]any {
	body, err := json.Marshal(payload)
	if err != nil {
		return map[string]any{
			"status":     "error",
			"error":      err.Error(),
			"error_type": "SerializationError",
			"url":        t.url,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return map[string]any{
			"status":     "error",
			"error":      err.Error(),
			"error_type": "RequestError",
			"url":        t.url,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		elapsed := elapsedMS(started)
		t.observe(started, "error")
		return map[string]any{
			"status":     "error",
			"error":      err.Error(),
			"error_type": transportErrorType(err),
			"url":        t.url,
			"timeout":    t.timeout.payload(),
			"elapsed_ms": elapsed,
		}
	}
	defer resp.Body.Close()

	text, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	elapsed := elapsedMS(started)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.observe(started, "error")
		return map[string]any{
			"status":      "error",
			"error":       fmt.Sprintf("webhook returned status %d", resp.StatusCode),
			"error_type":  "HTTPStatusError",
			"status_code": resp.StatusCode,
			"body":        string(text),
			"url":         t.url,
			"elapsed_ms":  elapsed,
		}
	}
	if readErr != nil {
		t.observe(started, "error")
		return map[string]any{
			"status":     "error",
			"error":      readErr.Error(),
			"error_type": transportErrorType(readErr),
			"url":        t.url,
			"timeout":    t.timeout.payload(),
			"elapsed_ms": elapsed,
		}
	}

	t.observe(started, "ok")

	var data any
	if err := json.Unmarshal(text, &data); err != nil {
		return map[string]any{
			"status":      "ok",
			"status_code": resp.StatusCode,
			"text":        string(text),
		}
	}
	if obj, ok := data.(map[string]any); ok {
		if _, exists := obj["elapsed_ms"]; !exists {
			obj["elapsed_ms"] = elapsed
		}
		return obj
	}
	return map[string]any{
		"status":     "ok",
		"data":       data,
		"elapsed_ms": elapsed,
	}
}

func (t *Tool) observe(started time.Time, status string) {
	if t.metrics == nil {
		return
	}
	t.metrics.ToolInvocationCounter.WithLabelValues(t.name, status).Inc()
	t.metrics.ToolInvocationDuration.WithLabelValues(t.name).Observe(time.Since(started).Seconds())
}

func elapsedMS(started time.Time) int64 {
	return time.Since(started).Milliseconds()
}

func transportErrorType(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	default:
		return "ConnectionError"
	}
}
