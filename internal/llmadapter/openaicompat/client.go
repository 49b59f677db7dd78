// Package openaicompat implements the "openai-compatible" back-end shape of
// spec §6 (tool calls as tool_calls) on top of the official OpenAI Go SDK,
// adapted from the teacher's pkg/llm/openailm/client.go.
package openaicompat

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"roomkeeper/internal/llmadapter"
)

type Client struct {
	client   *openai.Client
	provider string
	model    string
}

func New(provider, apiKey, model, baseURL string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	return &Client{client: &c, provider: provider, model: model}
}

func (c *Client) Provider() string { return c.provider }

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "429")
}

func (c *Client) StreamChat(ctx context.Context, messages []llmadapter.Message, tools []llmadapter.ToolSpec) (<-chan llmadapter.StreamChunk, error) {
	out := make(chan llmadapter.StreamChunk, 100)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: convertMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	go func() {
		defer close(out)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)

		var lastFinish string
		var lastUsage *llmadapter.LLMUsage

		for stream.Next() {
			event := stream.Current()
			if len(event.Choices) == 0 {
				continue
			}
			choice := event.Choices[0]
			if choice.FinishReason != "" {
				lastFinish = string(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				out <- llmadapter.NewTextChunk(choice.Delta.Content)
			}
			if len(choice.Delta.ToolCalls) > 0 {
				var calls []llmadapter.ToolCall
				for _, tc := range choice.Delta.ToolCalls {
					calls = append(calls, llmadapter.ToolCall{
						ID:   tc.ID,
						Name: tc.Function.Name,
						Function: llmadapter.FunctionCall{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					})
				}
				out <- llmadapter.StreamChunk{ToolCalls: calls}
			}
			if event.Usage.TotalTokens > 0 {
				lastUsage = &llmadapter.LLMUsage{
					PromptTokens:     int(event.Usage.PromptTokens),
					CompletionTokens: int(event.Usage.CompletionTokens),
					TotalTokens:      int(event.Usage.TotalTokens),
				}
			}
		}

		if err := stream.Err(); err != nil {
			out <- llmadapter.NewErrorChunk(fmt.Errorf("openaicompat stream: %w", err))
			return
		}

		reason := llmadapter.StopReasonStop
		if lastFinish != "" {
			reason = normalizeStopReason(lastFinish)
		}
		out <- llmadapter.NewFinalChunk(reason, lastUsage)
	}()

	return out, nil
}

func convertTools(tools []llmadapter.ToolSpec) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters: openai.FunctionParameters{
						"type":       "object",
						"properties": t.Parameters,
						"required":   t.RequiredParameters,
					},
				},
			},
		})
	}
	return out
}

func convertMessages(messages []llmadapter.Message) []openai.ChatCompletionMessageParamUnion {
	var items []openai.ChatCompletionMessageParamUnion

	for _, m := range messages {
		switch m.Role {
		case llmadapter.RoleTool:
			items = append(items, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Role:       "tool",
					ToolCallID: m.ToolCallID,
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(m.GetTextContent()),
					},
				},
			})
		case llmadapter.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				var calls []openai.ChatCompletionMessageToolCallUnionParam
				for _, tc := range m.ToolCalls {
					calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID:   tc.ID,
							Type: "function",
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: tc.Function.Arguments,
							},
						},
					})
				}
				items = append(items, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{Role: "assistant", ToolCalls: calls},
				})
			} else {
				items = append(items, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Role: "assistant",
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: openai.String(m.GetTextContent()),
						},
					},
				})
			}
		case llmadapter.RoleUser:
			if m.HasImages() {
				var parts []openai.ChatCompletionContentPartUnionParam
				for _, block := range m.Content {
					switch block.Type {
					case llmadapter.BlockTypeText:
						if block.Text == "" {
							continue
						}
						parts = append(parts, openai.ChatCompletionContentPartUnionParam{
							OfText: &openai.ChatCompletionContentPartTextParam{Type: "text", Text: block.Text},
						})
					case llmadapter.BlockTypeImage:
						if block.Source == nil {
							continue
						}
						url := block.Source.URL
						if block.Source.Type == "base64" {
							url = fmt.Sprintf("data:%s;base64,%s", block.Source.MediaType, base64.StdEncoding.EncodeToString(block.Source.Data))
						}
						parts = append(parts, openai.ChatCompletionContentPartUnionParam{
							OfImageURL: &openai.ChatCompletionContentPartImageParam{
								Type:     "image_url",
								ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: url},
							},
						})
					}
				}
				items = append(items, openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Role:    "user",
						Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
					},
				})
			} else {
				items = append(items, openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Role:    "user",
						Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(m.GetTextContent())},
					},
				})
			}
		case llmadapter.RoleSystem:
			items = append(items, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Role:    "system",
					Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(m.GetTextContent())},
				},
			})
		}
	}

	return items
}

func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "stop":
		return llmadapter.StopReasonStop
	case "length":
		return llmadapter.StopReasonLength
	default:
		return reason
	}
}
