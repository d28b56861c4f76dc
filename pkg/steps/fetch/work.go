// Package fetch provides the document-fetch unit of work.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultTimeoutSeconds = 30
	defaultMaxBytes       = 4 << 20
)

// Work downloads the document under analysis. The URL comes from the run
// input; the template config bounds timeout and size.
type Work struct {
	timeout  time.Duration
	maxBytes int64
	client   *http.Client
	logger   *slog.Logger
}

// NewWork builds a fetch unit from template config.
func NewWork(config map[string]any, logger *slog.Logger) (*Work, error) {
	timeoutSeconds := defaultTimeoutSeconds
	if timeout, ok := config["timeout"].(float64); ok {
		timeoutSeconds = int(timeout)
	}

	maxBytes := int64(defaultMaxBytes)
	if limit, ok := config["max_bytes"].(float64); ok {
		maxBytes = int64(limit)
	}

	timeout := time.Duration(timeoutSeconds) * time.Second

	return &Work{
		timeout:  timeout,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("module", "fetch_step"),
	}, nil
}

func (w *Work) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	url, _ := input["document_url"].(string)
	if url == "" {
		return nil, errors.New("missing document_url in step input")
	}

	w.logger.InfoContext(ctx, "Fetching document", "url", url)

	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("document fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read document body: %w", err)
	}

	return map[string]any{
		"document_url": url,
		"content":      string(body),
		"content_type": resp.Header.Get("Content-Type"),
		"size":         len(body),
	}, nil
}
