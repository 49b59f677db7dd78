// Package telegram implements gateway.Client on top of
// github.com/go-telegram-bot-api/telegram-bot-api/v5, adapted from the
// teacher's pkg/channels/telegram/telegram_channel.go long-polling loop,
// generalized from a push-only Channel into a pull-and-push gateway.Client.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"roomkeeper/internal/gateway"
	"roomkeeper/internal/roomdata"
)

const bufferCapPerChat = 1000

type Client struct {
	bot *tgbotapi.BotAPI

	mu      sync.Mutex
	buffers map[string][]gateway.RawMessage

	stopCtx    context.Context
	stopCancel context.CancelFunc
}

func New(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram gateway: new bot: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		bot:        bot,
		buffers:    make(map[string][]gateway.RawMessage),
		stopCtx:    ctx,
		stopCancel: cancel,
	}
	go c.pollLoop()
	return c, nil
}

func (c *Client) Stop() {
	c.stopCancel()
}

func (c *Client) pollLoop() {
	offset := 0
	for {
		select {
		case <-c.stopCtx.Done():
			return
		default:
		}

		req := tgbotapi.NewUpdate(offset)
		req.Timeout = 60

		updates, err := c.bot.GetUpdates(req)
		if err != nil {
			select {
			case <-c.stopCtx.Done():
				return
			default:
				slog.Warn("telegram gateway: poll error", "error", err)
				time.Sleep(3 * time.Second)
				continue
			}
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			c.ingest(u.Message)
		}
	}
}

func (c *Client) ingest(m *tgbotapi.Message) {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	content := m.Text
	if content == "" {
		content = m.Caption
	}

	atMe := (m.ReplyToMessage != nil && m.ReplyToMessage.From != nil && m.ReplyToMessage.From.ID == c.bot.Self.ID) ||
		strings.Contains(content, "@"+c.bot.Self.UserName)

	raw := gateway.RawMessage{
		MessageID:  strconv.Itoa(m.MessageID),
		Timestamp:  time.Unix(int64(m.Date), 0),
		SenderID:   strconv.FormatInt(m.From.ID, 10),
		SenderName: m.From.UserName,
		Content:    content,
		AtMe:       atMe,
		Images:     c.ingestImages(m),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	buf := append(c.buffers[chatID], raw)
	if len(buf) > bufferCapPerChat {
		buf = buf[len(buf)-bufferCapPerChat:]
	}
	c.buffers[chatID] = buf
}

// ingestImages resolves a message's photo/document attachments into
// ImageRefs pointing at telegram's direct file URL, left unresolved (not
// downloaded) until prompt assembly actually needs them (spec §4.5).
func (c *Client) ingestImages(m *tgbotapi.Message) []roomdata.ImageRef {
	var refs []roomdata.ImageRef

	if len(m.Photo) > 0 {
		largest := m.Photo[len(m.Photo)-1]
		if url, err := c.bot.GetFileDirectURL(largest.FileID); err == nil {
			refs = append(refs, roomdata.ImageRef{Data: url, Mime: "image/jpeg"})
		} else {
			slog.Warn("telegram gateway: resolve photo url failed", "error", err)
		}
	}
	if doc := m.Document; doc != nil && strings.HasPrefix(doc.MimeType, "image/") {
		if url, err := c.bot.GetFileDirectURL(doc.FileID); err == nil {
			refs = append(refs, roomdata.ImageRef{Data: url, Mime: doc.MimeType})
		} else {
			slog.Warn("telegram gateway: resolve document url failed", "error", err)
		}
	}
	return refs
}

func (c *Client) BatchGetRecentContext(ctx context.Context, target roomdata.Target, limit int) gateway.BatchResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := c.buffers[target.ID]
	if limit > 0 && len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	out := make([]gateway.RawMessage, len(buf))
	copy(out, buf)
	return gateway.BatchResult{Messages: out}
}

func (c *Client) SendMessage(ctx context.Context, targetID string, kind roomdata.Kind, content string) (string, error) {
	chatID, err := strconv.ParseInt(targetID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram gateway: invalid chat id %q: %w", targetID, err)
	}

	msg := tgbotapi.NewMessage(chatID, content)
	sent, err := c.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("telegram gateway: send: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// CompressContext is a no-op for Telegram: the platform keeps no
// gateway-side conversation context to compress, unlike the MCP-style
// bridges that maintain their own rolling summary.
func (c *Client) CompressContext(ctx context.Context, target roomdata.Target) error {
	return nil
}
