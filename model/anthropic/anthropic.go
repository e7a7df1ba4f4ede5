// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentloom/core"
	"github.com/hupe1980/agentloom/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: defaultOptions(optFns)}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req *core.ModelRequest) (<-chan *core.ModelResponse, <-chan error) {
	out := make(chan *core.ModelResponse, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)

		if req.Stream {
			stream := m.client.Messages.NewStreaming(ctx, params)
			defer stream.Close()
			message := anthropic.Message{}
			for stream.Next() {
				event := stream.Current()
				if err := message.Accumulate(event); err != nil {
					errCh <- fmt.Errorf("anthropic streaming error: %w", err)
					return
				}
				if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
					if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
						out <- &core.ModelResponse{Partial: true, Content: core.NewTextContent(core.RoleModel, text.Text)}
					}
				}
			}
			if err := stream.Err(); err != nil {
				errCh <- fmt.Errorf("anthropic streaming error: %w", err)
				return
			}
			out <- ConvertMessage(&message)
			return
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}
		out <- ConvertMessage(resp)
	}()

	return out, errCh
}

func (m *Model) buildParams(req *core.ModelRequest) anthropic.MessageNewParams {
	name := m.opts.Model
	if req.Model != "" {
		name = anthropic.Model(req.Model)
	}
	params := anthropic.MessageNewParams{
		Model:       name,
		Messages:    BuildMessages(req.Contents),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

// ConvertMessage maps an Anthropic message to a final model response.
func ConvertMessage(resp *anthropic.Message) *core.ModelResponse {
	var parts []core.Part
	hasCalls := false
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; text != "" {
				parts = append(parts, core.TextPart{Text: text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			parts = append(parts, core.NewFunctionCallPart(toolBlock.ID, toolBlock.Name, decodeToolInput(toolBlock.Input)))
			hasCalls = true
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return &core.ModelResponse{
		Content:      &core.Content{Role: core.RoleModel, Parts: parts},
		FinishReason: finishReason,
		TurnComplete: !hasCalls,
		Usage: &core.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

// BuildMessages converts contents to Anthropic messages. Function responses
// become tool_result blocks of the user turn that follows the tool_use.
func BuildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, c := range contents {
		var blocks []anthropic.ContentBlockParamUnion
		for _, p := range c.Parts {
			switch part := p.(type) {
			case core.TextPart:
				if part.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			case core.FunctionCallPart:
				var input any = part.FunctionCall.Args
				if part.FunctionCall.Args == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(part.FunctionCall.ID, input, part.FunctionCall.Name))
			case core.FunctionResponsePart:
				payload, err := json.Marshal(part.FunctionResponse.Response)
				if err != nil {
					payload = []byte(fmt.Sprintf("%v", part.FunctionResponse.Response))
				}
				_, isErr := part.FunctionResponse.Response["error"]
				blocks = append(blocks, anthropic.NewToolResultBlock(part.FunctionResponse.ID, string(payload), isErr))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if c.Role == core.RoleModel {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return messages
}

// buildTools converts tool declarations to Anthropic tool format
func buildTools(decls []core.ToolDeclaration) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(decls))

	for i, decl := range decls {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := decl.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			switch required := params["required"].(type) {
			case []string:
				inputSchema.Required = required
			case []any:
				for _, r := range required {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}

		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, decl.Name)
		if decl.Description != "" && anthropicTools[i].OfTool != nil {
			anthropicTools[i].OfTool.Description = anthropic.String(decl.Description)
		}
	}

	return anthropicTools
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}

// decodeToolInput turns a tool_use input into call arguments. Input that is
// not a JSON object is kept verbatim under "_raw" so the tool sees what the
// model sent.
func decodeToolInput(input any) map[string]any {
	raw, err := json.Marshal(input)
	if err != nil {
		if rm, ok := input.(json.RawMessage); ok {
			return map[string]any{"_raw": string(rm)}
		}
		return map[string]any{"_raw": fmt.Sprint(input)}
	}
	args := map[string]any{}
	if string(raw) == "null" {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{"_raw": string(raw)}
	}
	return args
}
