package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/amishk599/jobsweep/internal/model"
)

// AnthropicProvider calls the Anthropic Messages API through the official
// SDK. SDK-level retries are disabled; Client owns the retry policy.
type AnthropicProvider struct {
	client sdk.Client
}

// NewAnthropicProvider creates a provider. baseURL may be empty.
func NewAnthropicProvider(apiKey, baseURL string, httpClient *http.Client) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &AnthropicProvider{client: sdk.NewClient(opts...)}
}

func (p *AnthropicProvider) Complete(ctx context.Context, modelName string, prompt Prompt) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelName),
		MaxTokens: int64(prompt.MaxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt.User))},
	}
	if prompt.System != "" {
		params.System = []sdk.TextBlockParam{{Text: prompt.System}}
	}
	params.Temperature = sdk.Float(0)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			httpErr := &model.HTTPError{StatusCode: apiErr.StatusCode, Err: fmt.Errorf("anthropic: create message: %w", err)}
			if apiErr.Response != nil {
				httpErr.RetryAfter = retryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return "", httpErr
		}
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: no text content (stop reason %s)", ErrMalformed, msg.StopReason)
	}
	return b.String(), nil
}
