// Package gateway is the chat-gateway tool protocol of spec §6: three
// operations (batch pull, send, compress-trigger) every transport
// implements identically, adapted from the teacher's pkg/api.Channel
// lifecycle interface (Start/Stop/Send) generalized from a push-only
// messaging channel into a pull-and-push room data source.
package gateway

import (
	"context"
	"time"

	"roomkeeper/internal/roomdata"
)

// RawMessage is what a transport hands back from a batch pull, before it is
// merged into a target's buffer — deliberately thin (no IsSelf: transports
// never hand back the agent's own sends, which Fetcher re-injects from the
// target's sent-cache instead).
type RawMessage struct {
	MessageID  string
	Timestamp  time.Time
	SenderID   string
	SenderName string
	Content    string
	Images     []roomdata.ImageRef

	// AtMe reports whether the platform itself recognizes this message as
	// mentioning/replying to the bot (native mention entities, reply-to).
	// Fetcher trusts this rather than re-deriving it from raw text.
	AtMe bool
}

// BatchResult is the batch_get_recent_context response shape named in spec
// §6. A non-nil Err means "no watermark advance, ever" (§9's resolved
// ambiguity: a gateway error block must never be treated as an empty,
// advance-worthy batch).
type BatchResult struct {
	Messages []RawMessage
	Err      error

	// CompressedSummary and DisplayName are only ever populated by richer,
	// MCP-style bridges (internal/gateway/wsbridge) that maintain their own
	// rolling session summary and a human-readable room name; raw platform
	// transports (Discord, Telegram) leave these empty and Fetcher's
	// summary-bookkeeping step becomes a no-op for them.
	CompressedSummary string
	DisplayName       string
}

// Client is the uniform chat-gateway contract every transport (Discord,
// Telegram, a websocket-bridged external tool-server) satisfies.
type Client interface {
	// BatchGetRecentContext pulls the newest messages for one target since
	// an opaque transport-side cursor. limit bounds the batch size.
	BatchGetRecentContext(ctx context.Context, target roomdata.Target, limit int) BatchResult

	// SendMessage implements tools.Sender — the only path any layer uses to
	// actually speak.
	SendMessage(ctx context.Context, targetID string, kind roomdata.Kind, content string) (messageID string, err error)

	// CompressContext asks the transport to compress its own server-side
	// context for a target. Observer fires it (fire-and-forget) once the
	// pre-watermark message count exceeds BUFFER_COMPRESS_THRESHOLD.
	CompressContext(ctx context.Context, target roomdata.Target) error
}
