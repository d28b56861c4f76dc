// Package analyze provides the AI-analysis unit of work. The inference
// itself happens in an external service; this step only shapes the request
// and relays the structured summary back.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeoutSeconds = 60

type Work struct {
	endpoint string
	model    string
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// NewWork builds an analysis unit from template config. The inference
// endpoint is required.
func NewWork(config map[string]any, logger *slog.Logger) (*Work, error) {
	endpoint, _ := config["endpoint"].(string)
	if endpoint == "" {
		return nil, errors.New("missing required field 'endpoint'")
	}

	model, _ := config["model"].(string)

	timeoutSeconds := defaultTimeoutSeconds
	if timeout, ok := config["timeout"].(float64); ok {
		timeoutSeconds = int(timeout)
	}

	timeout := time.Duration(timeoutSeconds) * time.Second

	return &Work{
		endpoint: endpoint,
		model:    model,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("module", "analyze_step"),
	}, nil
}

func (w *Work) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	content, _ := input["content"].(string)
	if content == "" {
		return nil, errors.New("missing document content in step input")
	}

	requestBody := map[string]any{
		"document": content,
		"task":     "summarize",
	}
	if w.model != "" {
		requestBody["model"] = w.model
	}

	payload, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference request: %w", err)
	}

	w.logger.InfoContext(ctx, "Requesting document analysis", "endpoint", w.endpoint, "size", len(content))

	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build inference request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inference service returned status %d", resp.StatusCode)
	}

	var summary map[string]any

	err = json.Unmarshal(body, &summary)
	if err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}

	// A JSON null decodes into a nil map without error.
	if summary == nil {
		return nil, errors.New("inference response is not a JSON object")
	}

	summary["document_url"] = input["document_url"]

	return summary, nil
}
