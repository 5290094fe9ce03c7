// Package oracle is the request/response seam to the reasoning model. The
// master uses it for task decomposition, robots for next-action selection.
package oracle

import (
	"context"
	"fmt"

	"github.com/botfleet/fleetos/internal/tools"
	"github.com/botfleet/fleetos/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Request is one completion call.
type Request struct {
	System string
	User   string
	Tools  []tools.Info
	Stop   []string
}

// ToolCall is a tool invocation proposed by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Response is the model's answer: free text, tool calls, or both.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Oracle is the completion interface both engines depend on.
type Oracle interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// LangChainOracle backs Oracle with any langchaingo chat model.
type LangChainOracle struct {
	Model llms.Model
}

func NewLangChainOracle(model llms.Model) *LangChainOracle {
	return &LangChainOracle{Model: model}
}

// NewFromConfig builds the oracle for the first enabled provider.
func NewFromConfig(cfg *config.Config) (*LangChainOracle, error) {
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, fmt.Errorf("no enabled provider found in config")
	}

	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return NewLangChainOracle(model), nil
	default:
		return nil, fmt.Errorf("provider %s not supported", pName)
	}
}

func (o *LangChainOracle) Complete(ctx context.Context, req Request) (*Response, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.System)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(req.User)},
	})

	var opts []llms.CallOption
	if len(req.Tools) > 0 {
		var llmTools []llms.Tool
		for _, t := range req.Tools {
			llmTools = append(llmTools, llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}
		opts = append(opts, llms.WithTools(llmTools))
	}
	if len(req.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(req.Stop))
	}

	resp, err := o.Model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("oracle call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("oracle returned no choices")
	}

	choice := resp.Choices[0]
	out := &Response{Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		})
	}
	return out, nil
}
