package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/soundcheck-live/soundcheck/pkg/events"
)

// AnthropicAnalyzer scores statements with a Claude model.
type AnthropicAnalyzer struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicAnalyzer creates a Claude-backed analyzer. An empty apiKey
// falls back to the SDK's environment lookup (ANTHROPIC_API_KEY).
func NewAnthropicAnalyzer(apiKey, model string) *AnthropicAnalyzer {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaude3_5Haiku20241022
	}
	return &AnthropicAnalyzer{
		client: anthropic.NewClient(opts...),
		model:  m,
	}
}

// Analyze sends the statement to the messages API and decodes the result
// contract from the text blocks of the reply.
func (a *AnthropicAnalyzer) Analyze(ctx context.Context, text string) ([]events.Result, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic analyze: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(variant.Text)
		}
	}
	if out.Len() == 0 {
		return nil, &ContractError{Reason: "no text content in reply", Payload: resp.RawJSON()}
	}
	return parseResults(out.String())
}

var _ Analyzer = (*AnthropicAnalyzer)(nil)
