// Package llmadapter is the uniform adapter of spec §6/§9 over the two (plus
// one optional) LLM back-end shapes: a Client interface plus the provider
// registry/factory/loader pattern this package is directly modeled on from
// the teacher's pkg/llm/{llm,registry,loader,messages,constants}.go.
package llmadapter

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Message is the back-end-agnostic chat message shape every adapter
// converts to and from its own wire format.
type Message struct {
	Role      string         `json:"role"` // "user", "assistant", "system", "tool"
	Content   []ContentBlock `json:"content"`
	Timestamp int64          `json:"timestamp,omitempty"`

	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Function FunctionCall `json:"function"`

	// Meta carries provider-specific metadata (e.g. Gemini's
	// thought_signature) that never round-trips through JSON.
	Meta map[string]any `json:"-"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// ContentBlock is a typed piece of message content: text, thinking, or
// image.
type ContentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"` // "base64" | "url"
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
	URL       string `json:"url,omitempty"`
}

func (is *ImageSource) MarshalJSON() ([]byte, error) {
	if is.Type == "base64" && len(is.Data) > 0 {
		return []byte(`{"type":"base64","media_type":"` + is.MediaType + `","data":"` + base64.StdEncoding.EncodeToString(is.Data) + `"}`), nil
	}
	return []byte(`{"type":"` + is.Type + `","media_type":"` + is.MediaType + `","url":"` + is.URL + `"}`), nil
}

func (is *ImageSource) UnmarshalJSON(data []byte) error {
	type alias ImageSource
	aux := &struct {
		DataBase64 string `json:"data"`
		*alias
	}{alias: (*alias)(is)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.DataBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(aux.DataBase64)
		if err != nil {
			return err
		}
		is.Data = decoded
	}
	return nil
}

// StreamChunk is one increment of a streaming LLM response.
type StreamChunk struct {
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`
	IsFinal       bool           `json:"is_final"`
	FinishReason  string         `json:"finish_reason,omitempty"`
	Usage         *LLMUsage      `json:"usage,omitempty"`
	Err           error          `json:"-"`
}

type LLMUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockTypeText, Text: text}}, Timestamp: time.Now().Unix()}
}

func NewSystemMessage(text string) Message    { return NewTextMessage(RoleSystem, text) }
func NewUserMessage(text string) Message      { return NewTextMessage(RoleUser, text) }
func NewAssistantMessage(text string) Message { return NewTextMessage(RoleAssistant, text) }

func (m *Message) AddContentBlock(b ContentBlock) { m.Content = append(m.Content, b) }

func (m *Message) GetTextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockTypeText {
			out += b.Text
		}
	}
	return out
}

func (m *Message) HasImages() bool {
	for _, b := range m.Content {
		if b.Type == BlockTypeImage {
			return true
		}
	}
	return false
}

// StripImages returns a copy of m with every image content block removed,
// used by Reply's single retry-without-images path (spec §4.3 step 10).
func (m Message) StripImages() Message {
	cp := m
	cp.Content = make([]ContentBlock, 0, len(m.Content))
	for _, b := range m.Content {
		if b.Type != BlockTypeImage {
			cp.Content = append(cp.Content, b)
		}
	}
	return cp
}

func NewTextBlock(text string) ContentBlock { return ContentBlock{Type: BlockTypeText, Text: text} }

func NewImageBlockFromURL(url, mime string) ContentBlock {
	return ContentBlock{Type: BlockTypeImage, Source: &ImageSource{Type: "url", MediaType: mime, URL: url}}
}

func NewImageBlockFromBase64(data []byte, mime string) ContentBlock {
	return ContentBlock{Type: BlockTypeImage, Source: &ImageSource{Type: "base64", MediaType: mime, Data: data}}
}

func NewTextChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{{Type: BlockTypeText, Text: text}}}
}

func NewFinalChunk(reason string, usage *LLMUsage) StreamChunk {
	return StreamChunk{IsFinal: true, FinishReason: reason, Usage: usage}
}

func NewErrorChunk(err error) StreamChunk {
	return StreamChunk{IsFinal: true, FinishReason: StopReasonError, Err: err}
}
