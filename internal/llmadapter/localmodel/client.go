// Package localmodel implements an Intent-only low-latency back end on top
// of github.com/ollama/ollama's api client, adapted from the teacher's
// pkg/llm/ollama/client.go. It is not one of spec §6's two reply-generation
// back-end shapes; it is scoped to Intent's willingness/thought evaluation
// only, which the protocol leaves unconstrained.
package localmodel

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"

	"roomkeeper/internal/llmadapter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Client struct {
	client  *api.Client
	model   string
	options map[string]any
}

func New(model, baseURL string, options map[string]any) (*Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	httpClient := &http.Client{Transport: transport}

	var client *api.Client
	var err error
	if baseURL != "" {
		u, parseErr := url.Parse(baseURL)
		if parseErr != nil {
			return nil, fmt.Errorf("localmodel: invalid base url: %w", parseErr)
		}
		client = api.NewClient(u, httpClient)
	} else {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("localmodel: client from environment: %w", err)
		}
	}

	return &Client{client: client, model: model, options: options}, nil
}

func (c *Client) Provider() string { return "ollama" }

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "overloaded")
}

func (c *Client) StreamChat(ctx context.Context, messages []llmadapter.Message, tools []llmadapter.ToolSpec) (<-chan llmadapter.StreamChunk, error) {
	apiMessages := convertMessages(messages)

	var apiTools []api.Tool
	if len(tools) > 0 {
		rawB, err := json.Marshal(tools)
		if err == nil {
			_ = json.Unmarshal(rawB, &apiTools)
		}
	}

	out := make(chan llmadapter.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	go func() {
		defer close(out)

		streamVal := true
		req := &api.ChatRequest{
			Model:    c.model,
			Messages: apiMessages,
			Options:  c.options,
			Tools:    apiTools,
			Stream:   &streamVal,
		}

		started := false

		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if !started {
				started = true
				select {
				case startResultCh <- nil:
				default:
				}
			}

			if resp.Message.Thinking != "" {
				out <- llmadapter.StreamChunk{ContentBlocks: []llmadapter.ContentBlock{{Type: llmadapter.BlockTypeThinking, Text: resp.Message.Thinking}}}
			}
			if resp.Message.Content != "" {
				out <- llmadapter.NewTextChunk(resp.Message.Content)
			}
			if len(resp.Message.ToolCalls) > 0 {
				var calls []llmadapter.ToolCall
				for _, tc := range resp.Message.ToolCalls {
					argsB, _ := json.Marshal(tc.Function.Arguments)
					calls = append(calls, llmadapter.ToolCall{
						ID:   tc.ID,
						Name: tc.Function.Name,
						Function: llmadapter.FunctionCall{
							Name:      tc.Function.Name,
							Arguments: string(argsB),
						},
					})
				}
				out <- llmadapter.StreamChunk{ToolCalls: calls}
			}
			if resp.Done {
				usage := &llmadapter.LLMUsage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				}
				reason := resp.DoneReason
				if reason == "" {
					reason = llmadapter.StopReasonStop
				}
				out <- llmadapter.NewFinalChunk(reason, usage)
			}
			return nil
		})

		if err != nil {
			if !started {
				select {
				case startResultCh <- err:
				default:
					out <- llmadapter.NewErrorChunk(fmt.Errorf("localmodel chat: %w", err))
				}
			} else {
				out <- llmadapter.NewErrorChunk(fmt.Errorf("localmodel chat: %w", err))
			}
		} else if !started {
			select {
			case startResultCh <- nil:
			default:
			}
		}
	}()

	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func convertMessages(messages []llmadapter.Message) []api.Message {
	var out []api.Message

	for _, m := range messages {
		var content strings.Builder
		var images []api.ImageData

		for _, block := range m.Content {
			switch block.Type {
			case llmadapter.BlockTypeText, llmadapter.BlockTypeThinking:
				content.WriteString(block.Text)
			case llmadapter.BlockTypeImage:
				if block.Source != nil && len(block.Source.Data) > 0 {
					images = append(images, block.Source.Data)
				}
			}
		}

		msg := api.Message{Role: m.Role, Content: content.String()}

		if m.Role == llmadapter.RoleAssistant && len(m.ToolCalls) > 0 {
			var calls []api.ToolCall
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				argBytes, _ := json.Marshal(args)
				var apiArgs api.ToolCallFunctionArguments
				_ = json.Unmarshal(argBytes, &apiArgs)
				calls = append(calls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Function.Name,
						Arguments: apiArgs,
					},
				})
			}
			msg.ToolCalls = calls
		}

		if m.Role == llmadapter.RoleTool {
			msg.Role = "tool"
			msg.ToolCallID = m.ToolCallID
		}

		if len(images) > 0 {
			msg.Images = images
		}

		out = append(out, msg)
	}

	return out
}
