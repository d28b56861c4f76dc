// Package deliver provides the external API delivery unit of work: the
// approved summary is POSTed to a downstream endpoint.
package deliver

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

const defaultTimeoutSeconds = 30

type Work struct {
	url     string
	headers map[string]string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewWork builds a delivery unit from template config. The target URL is
// required.
func NewWork(config map[string]any, logger *slog.Logger) (*Work, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	headers := make(map[string]string)
	if headersConfig, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersConfig {
			if strVal, ok := v.(string); ok {
				headers[k] = strVal
			}
		}
	}

	timeoutSeconds := defaultTimeoutSeconds
	if timeout, ok := config["timeout"].(float64); ok {
		timeoutSeconds = int(timeout)
	}

	timeout := time.Duration(timeoutSeconds) * time.Second

	return &Work{
		url:     url,
		headers: headers,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("module", "deliver_step"),
	}, nil
}

func (w *Work) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delivery payload: %w", err)
	}

	w.logger.InfoContext(ctx, "Delivering summary", "url", w.url)

	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build delivery request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("delivery request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("delivery endpoint returned status %d", resp.StatusCode)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"delivered":   true,
	}

	var response map[string]any
	if json.Unmarshal(body, &response) == nil {
		output["response"] = response
	}

	// Pass the summary along for the archive step.
	output["summary"] = input

	return output, nil
}
