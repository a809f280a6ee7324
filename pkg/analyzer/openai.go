package analyzer

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/soundcheck-live/soundcheck/pkg/events"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIAnalyzer scores statements with an OpenAI chat model.
type OpenAIAnalyzer struct {
	client openai.Client
	model  string
}

// NewOpenAIAnalyzer creates an OpenAI-backed analyzer. An empty apiKey falls
// back to the SDK's environment lookup (OPENAI_API_KEY).
func NewOpenAIAnalyzer(apiKey, model string) *OpenAIAnalyzer {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIAnalyzer{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Analyze sends the statement to the chat completions API and decodes the
// result contract from the reply.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, text string) ([]events.Result, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai analyze: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ContractError{Reason: "no choices in completion", Payload: resp.RawJSON()}
	}
	return parseResults(resp.Choices[0].Message.Content)
}

var _ Analyzer = (*OpenAIAnalyzer)(nil)
