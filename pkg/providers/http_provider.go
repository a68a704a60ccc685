package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/peiban-ai/peiban/pkg/config"
)

const (
	defaultAPIBase = "https://ark.cn-beijing.volces.com/api/v3"
	defaultModel   = "doubao-pro-32k"
)

// HTTPProvider talks to any OpenAI-compatible chat-completions endpoint.
// The default base is the Volcengine Ark gateway.
type HTTPProvider struct {
	apiKey     string
	apiBase    string
	httpClient *http.Client
}

func NewHTTPProvider(apiKey, apiBase, proxy string) *HTTPProvider {
	client := &http.Client{Timeout: 120 * time.Second}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil {
			client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &HTTPProvider{
		apiKey:     apiKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: client,
	}
}

func (p *HTTPProvider) Chat(ctx context.Context, messages []Message, model string, options map[string]interface{}) (*Response, error) {
	if p.apiBase == "" {
		return nil, fmt.Errorf("provider API base not configured")
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = p.GetDefaultModel()
	}

	requestBody := map[string]interface{}{
		"model":    model,
		"messages": messages,
	}

	if maxTokens, ok := options["max_tokens"].(int); ok {
		requestBody["max_tokens"] = maxTokens
	}

	if temperature, ok := options["temperature"].(float64); ok {
		requestBody["temperature"] = temperature
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat API request failed:\n  Status: %d\n  Body:   %s", resp.StatusCode, string(body))
	}

	return parseResponse(body)
}

func parseResponse(body []byte) (*Response, error) {
	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(apiResponse.Choices) == 0 {
		return &Response{Content: "", FinishReason: "stop"}, nil
	}

	choice := apiResponse.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}, nil
}

func (p *HTTPProvider) GetDefaultModel() string {
	return defaultModel
}

// CreateProvider builds the configured provider, validating credentials.
func CreateProvider(cfg *config.Config) (LLMProvider, error) {
	apiKey := strings.TrimSpace(cfg.GetAPIKey())
	if apiKey == "" {
		return nil, fmt.Errorf("provider API key is required (set provider.api_key or PEIBAN_PROVIDER_API_KEY)")
	}

	apiBase := strings.TrimSpace(cfg.GetAPIBase())
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	return NewHTTPProvider(apiKey, apiBase, strings.TrimSpace(cfg.Provider.Proxy)), nil
}
