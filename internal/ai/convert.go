package ai

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/tapedesk/tape/internal/tools"
	"github.com/tapedesk/tape/internal/types"
)

// buildParams translates a Request into provider params
func buildParams(req *Request, model string, maxTokens int64) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  buildMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

// buildMessages converts transcript messages to provider message params.
// The provider has no in-thread system role, so injected system entries
// (repair notices, context preambles) ride as user messages; tool messages
// become user messages whose tool_result blocks lead any image blocks.
func buildMessages(msgs []types.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for i := range msgs {
		msg := &msgs[i]
		switch msg.Role {
		case types.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, ensureArgs(call.Args), call.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		case types.RoleTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Results))
			var images []anthropic.ContentBlockParamUnion
			for j := range msg.Results {
				res := &msg.Results[j]
				blocks = append(blocks, anthropic.NewToolResultBlock(res.CallID, res.Text(), res.IsError()))
				for _, img := range res.Images {
					images = append(images, imageBlock(img))
				}
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewUserMessage(append(blocks, images...)...))

		default: // user and injected system entries
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.Images))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, img := range msg.Images {
				blocks = append(blocks, imageBlock(img))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

// ensureArgs guarantees a JSON object payload; the wire format rejects null
// tool inputs.
func ensureArgs(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("{}")
	}
	return args
}

func imageBlock(att types.Attachment) anthropic.ContentBlockParamUnion {
	mediaType := att.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(att.Data))
}

// buildTools converts the tool surface to provider tool params
func buildTools(list []tools.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(list))
	for _, tool := range list {
		param := anthropic.ToolParam{
			Name:        tool.Name(),
			Description: anthropic.String(tool.Description()),
			InputSchema: toInputSchema(tool.InputSchema()),
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func toInputSchema(s *tools.Schema) anthropic.ToolInputSchemaParam {
	if s == nil {
		return anthropic.ToolInputSchemaParam{Properties: map[string]interface{}{}}
	}
	return anthropic.ToolInputSchemaParam{
		Properties: s.Properties,
		Required:   s.Required,
	}
}

// parseMessage extracts the completion from a provider response: text
// blocks concatenated, tool_use blocks as proposed calls in block order.
func parseMessage(msg *anthropic.Message) *Completion {
	comp := &Completion{
		StopReason: string(msg.StopReason),
		Usage: types.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			comp.ToolCalls = append(comp.ToolCalls, types.ToolCall{
				ID:   v.ID,
				Name: v.Name,
				Args: json.RawMessage(v.Input),
			})
		}
	}
	comp.Text = text.String()
	return comp
}
