// Package discord implements gateway.Client on top of
// github.com/bwmarrin/discordgo, following the same event-driven
// ingest-into-per-target-buffer shape as the teacher's channel
// implementations (pkg/channels/telegram), adapted from polling to
// discordgo's native gateway event handlers.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"roomkeeper/internal/gateway"
	"roomkeeper/internal/roomdata"
)

const bufferCapPerChannel = 1000

type Client struct {
	session *discordgo.Session

	mu      sync.Mutex
	buffers map[string][]gateway.RawMessage
}

func New(botToken string) (*Client, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord gateway: new session: %w", err)
	}

	c := &Client{session: session, buffers: make(map[string][]gateway.RawMessage)}
	session.AddHandler(c.onMessageCreate)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord gateway: open session: %w", err)
	}
	return c, nil
}

func (c *Client) Stop() error {
	return c.session.Close()
}

func (c *Client) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author != nil && m.Author.ID == s.State.User.ID {
		return
	}

	var images []roomdata.ImageRef
	for _, a := range m.Attachments {
		if a.ContentType != "" {
			images = append(images, roomdata.ImageRef{Data: a.URL, Mime: a.ContentType})
		}
	}

	atMe := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			atMe = true
			break
		}
	}

	raw := gateway.RawMessage{
		MessageID:  m.ID,
		Timestamp:  m.Timestamp,
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		Content:    m.Content,
		Images:     images,
		AtMe:       atMe,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	buf := append(c.buffers[m.ChannelID], raw)
	if len(buf) > bufferCapPerChannel {
		buf = buf[len(buf)-bufferCapPerChannel:]
	}
	c.buffers[m.ChannelID] = buf
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
	sent, err := c.session.ChannelMessageSend(targetID, content)
	if err != nil {
		return "", fmt.Errorf("discord gateway: send: %w", err)
	}
	return sent.ID, nil
}

func (c *Client) CompressContext(ctx context.Context, target roomdata.Target) error {
	return nil
}
