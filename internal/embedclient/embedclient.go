// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package embedclient is the HTTP client for the external embedding
// service (spec.md §4.D), grounded on the teacher's
// internal/embeddings/openai.go request/response shape and the batching
// posture of jamaly87-codebase-semantic-search-mcp's internal/embeddings
// batcher (fixed batch size, one retry on timeout).
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/the-hive/ragquery/internal/ragerr"
)

const (
	// Dimension is the deployment-fixed embedding vector size (spec.md
	// §4.D). Any other size is a protocol error.
	Dimension = 1024

	batchSize        = 12
	singleTimeout     = 30 * time.Second
	batchTimeout      = 60 * time.Second
	retryDelay        = 1 * time.Second
	healthProbeTTL    = 60 * time.Second
	healthProbeTimeout = 5 * time.Second
)

// Client talks to the embedding service's /embed, /embed/batch and
// /health endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client

	healthMu        sync.RWMutex
	healthy         bool
	lastHealthCheck time.Time
}

// New builds a Client bound to the embedding service at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// ensureHealthy refreshes the cached health flag at most once per
// healthProbeTTL and short-circuits with UnavailableEmbed when the last
// known state is unhealthy (spec.md §4.D).
func (c *Client) ensureHealthy(ctx context.Context) error {
	c.healthMu.RLock()
	age := time.Since(c.lastHealthCheck)
	healthy := c.healthy
	c.healthMu.RUnlock()

	if c.lastHealthCheck.IsZero() || age >= healthProbeTTL {
		healthy = c.probeHealth(ctx)
	}
	if !healthy {
		return ragerr.New(ragerr.UnavailableEmbed, "embedding service unhealthy")
	}
	return nil
}

func (c *Client) probeHealth(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/health", nil)
	ok := false
	if err == nil {
		resp, doErr := c.httpClient.Do(req)
		if doErr == nil {
			ok = resp.StatusCode == http.StatusOK
			resp.Body.Close()
		}
	}

	c.healthMu.Lock()
	c.healthy = ok
	c.lastHealthCheck = time.Now()
	c.healthMu.Unlock()
	return ok
}

// Embed generates an embedding for a single text, with one retry on
// timeout.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embedWithRetry(ctx, []string{text}, singleTimeout, false)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for many texts, splitting into
// fixed-size batches (spec.md §4.D: batch size 12).
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.embedWithRetry(ctx, texts[start:end], batchTimeout, true)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// embedWithRetry performs the health check, then one HTTP call with a
// single retry after retryDelay on timeout (spec.md §4.D, §7).
func (c *Client) embedWithRetry(ctx context.Context, texts []string, timeout time.Duration, batch bool) ([][]float32, error) {
	if err := c.ensureHealthy(ctx); err != nil {
		return nil, err
	}

	vectors, err := c.doEmbed(ctx, texts, timeout, batch)
	if err == nil {
		return vectors, nil
	}
	if ragerr.CodeOf(err) != ragerr.Timeout {
		return nil, err
	}

	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
		return nil, ragerr.Wrap(ragerr.Timeout, "embed retry", ctx.Err())
	}
	return c.doEmbed(ctx, texts, timeout, batch)
}

type embedBatchRequest struct {
	Texts []string `json:"texts"`
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type embedBatchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *Client) doEmbed(ctx context.Context, texts []string, timeout time.Duration, batch bool) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var url string
	var body []byte
	var err error
	if !batch {
		url = c.baseURL + "/embed"
		body, err = json.Marshal(embedRequest{Text: texts[0]})
	} else {
		url = c.baseURL + "/embed/batch"
		body, err = json.Marshal(embedBatchRequest{Texts: texts})
	}
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Internal, "marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Internal, "build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, ragerr.Wrap(ragerr.Timeout, "embed request timed out", err)
		}
		return nil, ragerr.Wrap(ragerr.UnavailableEmbed, "embed request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, ragerr.New(ragerr.UnavailableEmbed, fmt.Sprintf("embed service returned %d: %s", resp.StatusCode, respBody))
	}

	var vectors [][]float32
	if !batch {
		var single embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&single); err != nil {
			return nil, ragerr.Wrap(ragerr.Internal, "decode embed response", err)
		}
		vectors = [][]float32{single.Embedding}
	} else {
		var batch embedBatchResponse
		if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
			return nil, ragerr.Wrap(ragerr.Internal, "decode embed batch response", err)
		}
		vectors = batch.Embeddings
	}

	for _, v := range vectors {
		if len(v) != Dimension {
			return nil, ragerr.New(ragerr.Internal, fmt.Sprintf("embedding has dimension %d, want %d", len(v), Dimension))
		}
	}
	return vectors, nil
}
