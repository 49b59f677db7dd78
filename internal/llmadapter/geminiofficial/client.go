// Package geminiofficial implements the "content parts + functionCall" back-end
// shape of spec §6 on top of google.golang.org/genai, adapted from the
// teacher's pkg/llm/gemini/client.go.
package geminiofficial

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"roomkeeper/internal/llmadapter"
)

type Client struct {
	client     *genai.Client
	model      string
	useThought bool
}

func New(ctx context.Context, apiKey, model string, useThought bool) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("geminiofficial: new client: %w", err)
	}
	return &Client{client: client, model: model, useThought: useThought}, nil
}

func (c *Client) Provider() string { return "gemini" }

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"503", "overloaded", "429", "resource exhausted", "500", "internal error", "timeout", "connection refused", "context deadline exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) StreamChat(ctx context.Context, messages []llmadapter.Message, tools []llmadapter.ToolSpec) (<-chan llmadapter.StreamChunk, error) {
	contents, systemInstruction := convertMessages(cleanThoughtSignatures(messages))

	var genaiTools []*genai.Tool
	if len(tools) > 0 {
		var fds []*genai.FunctionDeclaration
		for _, t := range tools {
			fd := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
			if t.Parameters != nil {
				fullSchema := map[string]any{"type": "object", "properties": t.Parameters}
				if len(t.RequiredParameters) > 0 {
					fullSchema["required"] = t.RequiredParameters
				}
				schemaB, _ := json.Marshal(fullSchema)
				var schema genai.Schema
				_ = json.Unmarshal(schemaB, &schema)
				fd.Parameters = &schema
			}
			fds = append(fds, fd)
		}
		genaiTools = append(genaiTools, &genai.Tool{FunctionDeclarations: fds})
	}

	out := make(chan llmadapter.StreamChunk, 100)

	go func() {
		defer close(out)

		var thinkingCfg *genai.ThinkingConfig
		if c.useThought {
			thinkingCfg = &genai.ThinkingConfig{IncludeThoughts: true}
		}
		genConfig := &genai.GenerateContentConfig{
			SystemInstruction: systemInstruction,
			Tools:             genaiTools,
			ThinkingConfig:    thinkingCfg,
		}

		iter := c.client.Models.GenerateContentStream(ctx, c.model, contents, genConfig)

		var lastUsage *llmadapter.LLMUsage

		for resp, err := range iter {
			if err != nil {
				slog.ErrorContext(ctx, "geminiofficial stream error", "error", err)
				out <- llmadapter.NewErrorChunk(fmt.Errorf("geminiofficial stream: %w", err))
				return
			}
			if resp.UsageMetadata != nil {
				u := resp.UsageMetadata
				lastUsage = &llmadapter.LLMUsage{
					PromptTokens:     int(u.PromptTokenCount),
					CompletionTokens: int(u.CandidatesTokenCount),
					TotalTokens:      int(u.TotalTokenCount),
				}
			}

			var finish string
			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" {
					finish = normalizeStopReason(string(candidate.FinishReason))
				}
				if candidate.Content == nil {
					continue
				}

				var blocks []llmadapter.ContentBlock
				var calls []llmadapter.ToolCall

				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						blockType := llmadapter.BlockTypeText
						if part.Thought {
							blockType = llmadapter.BlockTypeThinking
						}
						blocks = append(blocks, llmadapter.ContentBlock{Type: blockType, Text: part.Text})
					}
					if part.FunctionCall != nil {
						argsB, _ := json.Marshal(part.FunctionCall.Args)
						meta := map[string]any{}
						if len(part.ThoughtSignature) > 0 {
							meta["thought_signature"] = part.ThoughtSignature
						}
						calls = append(calls, llmadapter.ToolCall{
							Name: part.FunctionCall.Name,
							Function: llmadapter.FunctionCall{
								Name:      part.FunctionCall.Name,
								Arguments: string(argsB),
							},
							Meta: meta,
						})
					}
				}

				if len(blocks) > 0 || len(calls) > 0 {
					out <- llmadapter.StreamChunk{ContentBlocks: blocks, ToolCalls: calls}
				}
			}

			if finish != "" && lastUsage == nil {
				lastUsage = &llmadapter.LLMUsage{}
			}
		}

		reason := llmadapter.StopReasonStop
		out <- llmadapter.NewFinalChunk(reason, lastUsage)
	}()

	return out, nil
}

// cleanThoughtSignatures drops prior assistant function-call turns that carry
// no thought_signature in Meta, per spec §6: Gemini rejects replayed function
// calls lacking a signature once thinking is enabled for the conversation.
func cleanThoughtSignatures(messages []llmadapter.Message) []llmadapter.Message {
	out := make([]llmadapter.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != llmadapter.RoleAssistant || len(m.ToolCalls) == 0 {
			out = append(out, m)
			continue
		}
		kept := m
		kept.ToolCalls = nil
		for _, tc := range m.ToolCalls {
			if tc.Meta != nil {
				if _, ok := tc.Meta["thought_signature"]; ok {
					kept.ToolCalls = append(kept.ToolCalls, tc)
					continue
				}
			}
		}
		if len(kept.ToolCalls) > 0 || len(kept.Content) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

func convertMessages(messages []llmadapter.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		if msg.Role == llmadapter.RoleSystem {
			var parts []*genai.Part
			for _, block := range msg.Content {
				if block.Type == llmadapter.BlockTypeText && block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text})
				}
			}
			if len(parts) > 0 {
				systemInstruction = &genai.Content{Parts: parts}
			}
			continue
		}

		if msg.Role == llmadapter.RoleTool {
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     msg.ToolCallID,
						Response: map[string]any{"result": msg.GetTextContent()},
					},
				}},
			})
			continue
		}

		role := "user"
		if msg.Role == llmadapter.RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part
		for _, block := range msg.Content {
			switch block.Type {
			case llmadapter.BlockTypeText:
				if block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text})
				}
			case llmadapter.BlockTypeThinking:
				if block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text, Thought: true})
				}
			case llmadapter.BlockTypeImage:
				if block.Source != nil && len(block.Source.Data) > 0 {
					parts = append(parts, &genai.Part{
						InlineData: &genai.Blob{MIMEType: block.Source.MediaType, Data: block.Source.Data},
					})
				}
			}
		}

		for _, tc := range msg.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			fc := &genai.FunctionCall{Name: tc.Function.Name, Args: args}

			var sig []byte
			if tc.Meta != nil {
				if s, ok := tc.Meta["thought_signature"].([]byte); ok {
					sig = s
				}
			}
			parts = append(parts, &genai.Part{FunctionCall: fc, ThoughtSignature: sig})
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents, systemInstruction
}

func normalizeStopReason(reason string) string {
	switch strings.ToUpper(reason) {
	case "STOP", "FINISH_REASON_STOP":
		return llmadapter.StopReasonStop
	case "MAX_TOKENS", "FINISH_REASON_MAX_TOKENS":
		return llmadapter.StopReasonLength
	default:
		return strings.ToLower(reason)
	}
}
