package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/ashureev/careerbot/internal/closesignal"
	"github.com/ashureev/careerbot/internal/domain"
)

// Default endpoints and models.
const (
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
	DefaultOpenAIModel     = "gpt-4.1"
	DefaultOpenAIStream    = "gpt-5"
	DefaultDeepSeekModel   = "deepseek-chat"
)

var errNoChoices = errors.New("no choices in response")

// OpenAIConfig configures an OpenAI-compatible provider.
type OpenAIConfig struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	StreamModel string
	Temperature float32
	// Functions advertises the close_chat function to the model.
	Functions  bool
	HTTPClient *http.Client
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	name        string
	client      *openai.Client
	model       string
	streamModel string
	temperature float32
	tools       []openai.Tool
}

// NewOpenAI builds a provider from cfg.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model is required", cfg.Name)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	p := &OpenAI{
		name:        cfg.Name,
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		streamModel: cfg.StreamModel,
		temperature: cfg.Temperature,
	}
	if p.streamModel == "" {
		p.streamModel = cfg.Model
	}
	if cfg.Functions {
		p.tools = []openai.Tool{CloseChatTool()}
	}
	return p, nil
}

// CloseChatTool describes the function the model calls to end a conversation.
func CloseChatTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        closesignal.FunctionName,
			Description: "Close the chat once every requested detail has been collected and the user has confirmed.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					closesignal.ArgumentName: {
						Type:        jsonschema.String,
						Description: "A polite closing message for the user.",
					},
				},
				Required: []string{closesignal.ArgumentName},
			},
		},
	}
}

// Name returns the registry name of the provider.
func (p *OpenAI) Name() string { return p.name }

// Complete sends a blocking chat completion request.
func (p *OpenAI) Complete(ctx context.Context, turns []domain.Turn) (Completion, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(p.model, turns))
	if err != nil {
		return Completion{}, fmt.Errorf("%s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("%s completion: %w", p.name, errNoChoices)
	}

	msg := resp.Choices[0].Message
	out := Completion{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != "" {
			out.Call = &FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
			break
		}
	}
	if out.Call == nil && msg.FunctionCall != nil {
		out.Call = &FunctionCall{Name: msg.FunctionCall.Name, Arguments: msg.FunctionCall.Arguments}
	}
	return out, nil
}

// Stream sends a streaming chat completion request and yields deltas.
func (p *OpenAI) Stream(ctx context.Context, turns []domain.Turn) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		stream, err := p.client.CreateChatCompletionStream(ctx, p.request(p.streamModel, turns))
		if err != nil {
			yield(Fragment{}, fmt.Errorf("%s stream request: %w", p.name, err))
			return
		}
		defer func() {
			if err := stream.Close(); err != nil {
				slog.Debug("failed to close completion stream", "provider", p.name, "error", err)
			}
		}()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Fragment{}, fmt.Errorf("%s stream: %w", p.name, err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			delta := resp.Choices[0].Delta
			frag := Fragment{Text: delta.Content}
			for _, tc := range delta.ToolCalls {
				if tc.Function.Name != "" {
					frag.FunctionName = tc.Function.Name
				}
				frag.FunctionArgs += tc.Function.Arguments
			}
			if delta.FunctionCall != nil {
				if delta.FunctionCall.Name != "" {
					frag.FunctionName = delta.FunctionCall.Name
				}
				frag.FunctionArgs += delta.FunctionCall.Arguments
			}
			if frag == (Fragment{}) {
				continue
			}
			if !yield(frag, nil) {
				return
			}
		}
	}
}

func (p *OpenAI) request(model string, turns []domain.Turn) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: p.temperature,
		Tools:       p.tools,
	}
}
