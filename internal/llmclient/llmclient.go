// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package llmclient talks to the chat-completion LLM service (spec.md
// §4.E), grounded on the teacher's internal/ai/question.go OpenAI
// chat-completions client: same request/response envelope and
// Authorization header, generalized from a hardcoded yes/no-question
// prompt into a context-grounded answer-synthesis prompt with a
// configurable endpoint instead of the hardcoded OpenAI URL.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/the-hive/ragquery/internal/ragerr"
)

const (
	// DefaultTemperature and DefaultMaxTokens are the answer-synthesis
	// defaults (spec.md §4.E).
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 500

	defaultTimeout = 60 * time.Second

	noContextAnswer = "I don't have any relevant information in your documents to answer that question."

	systemPrompt = "You are a document question-answering assistant. Answer strictly using the provided context. " +
		"Cite the source of every claim using the [Source N] tags exactly as they appear in the context. " +
		"If the context does not contain enough information to answer, say so plainly rather than guessing."
)

// Options tunes a single generateAnswer call.
type Options struct {
	Temperature float64
	MaxTokens   int
	// Metadata carries auxiliary prompt context, e.g. unique filenames
	// the model may reference by name (spec.md §4.G step 7).
	Metadata map[string]string
}

// Client generates grounded answers from a question and assembled
// context.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New builds a Client. baseURL and apiKey are read from
// LLM_API_URL/LLM_API_KEY when empty, generalizing the teacher's
// hardcoded OPENAI_API_KEY lookup to a configurable provider.
func New(baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("LLM_API_URL")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/chat/completions"
	}
	if apiKey == "" {
		apiKey = os.Getenv("LLM_API_KEY")
	}
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateAnswer synthesizes an answer to question from the assembled
// context. An empty context short-circuits with the canned refusal
// without calling the remote service (spec.md §4.E).
func (c *Client) GenerateAnswer(ctx context.Context, question, assembledContext string, opts Options) (string, error) {
	if strings.TrimSpace(assembledContext) == "" {
		return noContextAnswer, nil
	}
	if c.apiKey == "" {
		return "", ragerr.New(ragerr.UnavailableLLM, "LLM API key not configured")
	}

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	userPrompt := buildUserPrompt(question, assembledContext, opts.Metadata)
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", ragerr.Wrap(ragerr.Internal, "marshal llm request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", ragerr.Wrap(ragerr.Internal, "build llm request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ragerr.Wrap(ragerr.Timeout, "llm request timed out", err)
		}
		return "", ragerr.Wrap(ragerr.UnavailableLLM, "llm request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", ragerr.New(ragerr.UnavailableLLM, fmt.Sprintf("llm service returned %d: %s", resp.StatusCode, respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", ragerr.Wrap(ragerr.Internal, "decode llm response", err)
	}
	if len(result.Choices) == 0 {
		return "", ragerr.New(ragerr.UnavailableLLM, "llm service returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// buildUserPrompt frames the question with the verbatim context block
// and any filename metadata the model may reference by name.
func buildUserPrompt(question, assembledContext string, metadata map[string]string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(assembledContext)
	b.WriteString("\n\n")
	if len(metadata) > 0 {
		b.WriteString("Known source files: ")
		first := true
		for _, name := range metadata {
			if !first {
				b.WriteString(", ")
			}
			b.WriteString(name)
			first = false
		}
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
