package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
)

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 512

// OpenAIProvider talks to /chat/completions on the OpenAI API or any
// compatible endpoint. Replies are constrained to classificationSchema via
// structured outputs.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewOpenAIProvider(baseURL, apiKey string, httpClient *http.Client) *OpenAIProvider {
	return &OpenAIProvider{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

type completionRequest struct {
	Model          string           `json:"model"`
	Messages       []message        `json:"messages"`
	Temperature    float64          `json:"temperature"`
	MaxTokens      int              `json:"max_tokens"`
	ResponseFormat structuredFormat `json:"response_format"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type structuredFormat struct {
	Type       string      `json:"type"`
	JSONSchema namedSchema `json:"json_schema"`
}

type namedSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newCompletionRequest(modelName string, prompt Prompt) completionRequest {
	return completionRequest{
		Model: modelName,
		Messages: []message{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		MaxTokens: prompt.MaxTokens,
		ResponseFormat: structuredFormat{
			Type:       "json_schema",
			JSONSchema: namedSchema{Name: "job_classification", Strict: true, Schema: classificationSchema},
		},
	}
}

// Complete returns the raw JSON text of the first choice. Refusals,
// truncated output and empty replies are reported as ErrMalformed so the
// caller can route them to the fallback model.
func (p *OpenAIProvider) Complete(ctx context.Context, modelName string, prompt Prompt) (string, error) {
	raw, err := p.post(ctx, newCompletionRequest(modelName, prompt))
	if err != nil {
		return "", err
	}

	var resp completionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: decode completion: %v", ErrMalformed, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("openai %s: %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion has no choices", ErrMalformed)
	}

	c := resp.Choices[0]
	switch {
	case c.Message.Refusal != "":
		return "", fmt.Errorf("%w: refused: %s", ErrMalformed, c.Message.Refusal)
	case c.FinishReason == "length":
		return "", fmt.Errorf("%w: output cut at %d tokens", ErrMalformed, prompt.MaxTokens)
	}
	return c.Message.Content, nil
}

func (p *OpenAIProvider) post(ctx context.Context, body completionRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read completion: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("openai returned %d: %s", resp.StatusCode, clip(raw, maxErrorBody)),
		}
	}
	return raw, nil
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func clip(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
