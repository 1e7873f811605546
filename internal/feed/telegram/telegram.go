// Package telegram posts flight messages to a channel through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"tailbot/internal/config"
	"tailbot/internal/feed"
	logx "tailbot/pkg/logx"
)

const sendTimeout = 30 * time.Second

// sender is the slice of *tele.Bot Publish needs; tests fake it.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Client is a send-only bot: it never polls for updates, so it cannot read
// the channel back and Recent always reports ErrRecentUnsupported.
type Client struct {
	mu    sync.RWMutex
	bot   sender
	token string
	chat  int64
	owner int64

	log logx.Logger
}

func New(cfg config.TelegramConfig, log logx.Logger) (*Client, error) {
	c := &Client{log: log}
	if err := c.Apply(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply updates chat targets and, when the token changed, rebuilds the bot.
// Rebuilding hits the Bot API (getMe), so an unchanged token is left alone.
func (c *Client) Apply(cfg config.TelegramConfig) error {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return errors.New("telegram: token is empty")
	}

	c.mu.RLock()
	sameToken := c.token == token && c.bot != nil
	c.mu.RUnlock()

	var b sender
	if !sameToken {
		nb, err := tele.NewBot(tele.Settings{
			Token:  token,
			Client: &http.Client{Timeout: sendTimeout},
		})
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		b = nb
	}

	c.mu.Lock()
	if b != nil {
		c.bot = b
		c.token = token
	}
	c.chat = cfg.ChatID
	c.owner = cfg.OwnerChatID
	c.mu.Unlock()
	return nil
}

// Publish sends text to the configured chat. Messages go out without a
// parse mode: the flight format carries characters Markdown would mangle.
func (c *Client) Publish(ctx context.Context, text string) (feed.Post, error) {
	if err := ctx.Err(); err != nil {
		return feed.Post{}, err
	}
	c.mu.RLock()
	bot, chat := c.bot, c.chat
	c.mu.RUnlock()

	msg, err := bot.Send(&tele.Chat{ID: chat}, text)
	if err != nil {
		return feed.Post{}, fmt.Errorf("telegram: publish: %w", err)
	}
	if !c.log.IsZero() {
		c.log.Debug("message posted", logx.Int("message_id", msg.ID), logx.Int64("chat_id", chat))
	}
	return feed.Post{ID: strconv.Itoa(msg.ID), Text: text}, nil
}

// Recent is unsupported: the Bot API offers no way to list past channel
// posts, so the last posted flight has to come from local records.
func (c *Client) Recent(ctx context.Context, limit int) ([]feed.Post, error) {
	return nil, feed.ErrRecentUnsupported
}

// Notify delivers an operator message to the owner chat. A zero owner chat
// silently discards; flight posts are unaffected either way.
func (c *Client) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	bot, owner := c.bot, c.owner
	c.mu.RUnlock()

	if owner == 0 {
		return nil
	}
	_, err := bot.Send(&tele.Chat{ID: owner}, text)
	return err
}
