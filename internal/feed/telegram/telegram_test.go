package telegram

import (
	"context"
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"

	"tailbot/internal/config"
	"tailbot/internal/feed"
	logx "tailbot/pkg/logx"
)

type fakeSender struct {
	sent []sentMessage
	err  error
}

type sentMessage struct {
	chatID int64
	text   string
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	chat, ok := to.(*tele.Chat)
	if !ok {
		return nil, errors.New("unexpected recipient type")
	}
	text, _ := what.(string)
	f.sent = append(f.sent, sentMessage{chatID: chat.ID, text: text})
	return &tele.Message{ID: len(f.sent)}, nil
}

func testClient(fs *fakeSender) *Client {
	return &Client{bot: fs, token: "t", chat: 7, owner: 9, log: logx.Nop()}
}

func TestPublish(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	c := testClient(fs)

	post, err := c.Publish(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if post.ID != "1" || post.Text != "hello" {
		t.Fatalf("post = %+v", post)
	}
	if len(fs.sent) != 1 || fs.sent[0].chatID != 7 || fs.sent[0].text != "hello" {
		t.Fatalf("sent = %+v", fs.sent)
	}
}

func TestPublishError(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{err: errors.New("bad gateway")}
	c := testClient(fs)
	if _, err := c.Publish(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecentUnsupported(t *testing.T) {
	t.Parallel()
	c := testClient(&fakeSender{})
	_, err := c.Recent(context.Background(), 5)
	if !errors.Is(err, feed.ErrRecentUnsupported) {
		t.Fatalf("err = %v, want ErrRecentUnsupported", err)
	}
}

func TestNotifyOwnerChat(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	c := testClient(fs)
	if err := c.Notify(context.Background(), "disk almost full"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(fs.sent) != 1 || fs.sent[0].chatID != 9 {
		t.Fatalf("sent = %+v", fs.sent)
	}
}

func TestNotifyDisabled(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	c := testClient(fs)
	c.owner = 0
	if err := c.Notify(context.Background(), "x"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(fs.sent) != 0 {
		t.Fatalf("notify sent despite zero owner chat: %+v", fs.sent)
	}
}

func TestApplyRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	c := testClient(&fakeSender{})
	if err := c.Apply(config.TelegramConfig{ChatID: 7}); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestApplyKeepsBotOnSameToken(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	c := testClient(fs)
	// Same token: no rebuild, chat targets still move.
	err := c.Apply(config.TelegramConfig{Token: "t", ChatID: 70, OwnerChatID: 90})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c.bot != sender(fs) {
		t.Fatal("bot was rebuilt despite unchanged token")
	}
	if c.chat != 70 || c.owner != 90 {
		t.Fatalf("chat targets not applied: chat=%d owner=%d", c.chat, c.owner)
	}
}
