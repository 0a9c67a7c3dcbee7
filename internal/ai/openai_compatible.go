package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient() *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   false,
	}

	raw, err := c.postJSON(ctx, cfg.BaseURL, cfg.APIKey, "/chat/completions", reqBody, "llm")
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// postJSON sends body to baseURL+path and returns the raw response on a 2xx status.
func (c *OpenAICompatibleClient) postJSON(ctx context.Context, baseURL, apiKey, path string, body interface{}, what string) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request failed: %w", what, err)
	}

	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build %s request failed: %w", what, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", what, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response failed: %w", what, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s response status %d: %s", what, resp.StatusCode, string(raw))
	}
	return raw, nil
}

// OpenAIGenerator sends the rendered prompt as a single user message.
type OpenAIGenerator struct {
	client *OpenAICompatibleClient
	cfg    ChatConfig
}

func NewOpenAIGenerator(client *OpenAICompatibleClient, cfg ChatConfig) *OpenAIGenerator {
	return &OpenAIGenerator{client: client, cfg: cfg}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.client.Complete(ctx, g.cfg, []ChatMessage{{Role: "user", Content: prompt}})
}
