// Package telegram mirrors notifications into a Telegram chat.
//
// This backend exists for headless deployments: the popup becomes a chat
// message, clearing a notification deletes the mirrored message, and the
// delivering client is responsible for the audible part (Telegram plays its
// own alert sound when the message arrives, so PlaySound is a no-op).
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"
	"maunium.net/go/mautrix/id"

	"mxnotify/internal/platform"
	"mxnotify/pkg/logx"
)

// telegramTextLimit is Telegram's hard per-message limit.
const telegramTextLimit = 4096

type Config struct {
	Token  string
	ChatID int64
	// ThreadID targets a forum topic (0 for none).
	ThreadID int
}

type Backend struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	// granted flips on a successful permission probe and off when the chat
	// turns out to be unreachable.
	granted atomic.Bool
}

func New(cfg Config, log logx.Logger) (*Backend, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	// No poller: the backend only sends.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Backend{
		cfg: cfg,
		log: log.With(logx.String("comp", "platform.telegram")),
		bot: b,
	}, nil
}

func (b *Backend) SupportsNotifications() bool { return true }
func (b *Backend) MaySendNotifications() bool  { return b.granted.Load() }
func (b *Backend) HasFocus() bool              { return false }

// RequestPermission probes the target chat. Reachable means granted;
// anything else is a denial (bad chat id, bot not a member).
func (b *Backend) RequestPermission(ctx context.Context) (platform.PermissionResult, error) {
	_, err := b.bot.ChatByID(b.cfg.ChatID)
	if err != nil {
		b.granted.Store(false)
		b.log.Warn("permission probe failed", logx.Err(err), logx.Int64("chat", b.cfg.ChatID))
		return platform.PermissionDenied, nil
	}
	b.granted.Store(true)
	return platform.PermissionGranted, nil
}

func (b *Backend) DisplayNotification(ctx context.Context, n platform.Notification) (platform.Handle, error) {
	text := n.Title
	if n.Body != "" {
		text += "\n" + n.Body
	}
	text = truncMessage(text, telegramTextLimit)

	if ctx != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
	}

	msg, err := b.bot.Send(&tele.Chat{ID: b.cfg.ChatID}, text, &tele.SendOptions{
		ThreadID:              b.cfg.ThreadID,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return "", err
	}
	// chatID:messageID round-trips through ClearNotification.
	return platform.Handle(fmt.Sprintf("%d:%d", b.cfg.ChatID, msg.ID)), nil
}

func (b *Backend) ClearNotification(ctx context.Context, h platform.Handle) error {
	chatID, msgID, err := parseHandle(h)
	if err != nil {
		return err
	}
	return b.bot.Delete(&tele.Message{ID: msgID, Chat: &tele.Chat{ID: chatID}})
}

func (b *Backend) LoudNotification(ctx context.Context, roomID id.RoomID) error {
	// Attention is implicit in message delivery.
	b.log.Debug("loud notification", logx.String("room", roomID.String()))
	return nil
}

func (b *Backend) PlaySound(ctx context.Context, url string) error {
	// The receiving Telegram client plays its own alert sound.
	b.log.Debug("sound delegated to client", logx.String("url", url))
	return nil
}

func (b *Backend) ShowDialog(title, text string) {
	msg := "⚠️ " + title
	if text != "" {
		msg += "\n" + text
	}
	_, err := b.bot.Send(&tele.Chat{ID: b.cfg.ChatID}, msg, &tele.SendOptions{
		ThreadID: b.cfg.ThreadID,
	})
	if err != nil {
		b.log.Warn("dialog send failed", logx.Err(err))
	}
}

// truncMessage caps text at limit runes, ending with an ellipsis when cut.
// Telegram's 4096 limit counts characters, not bytes, and rejects messages
// carrying invalid UTF-8, so cuts must land on rune boundaries.
func truncMessage(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	// Keep limit-1 runes so the ellipsis fits inside the limit.
	count := 0
	cut := 0
	for i, r := range text {
		count++
		if count == limit-1 {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > limit {
			return text[:cut] + "…"
		}
	}
	return text
}

func parseHandle(h platform.Handle) (chatID int64, msgID int, err error) {
	s := string(h)
	i := strings.IndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return 0, 0, fmt.Errorf("malformed notification handle %q", s)
	}
	chatID, err = strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed notification handle %q: %w", s, err)
	}
	msgID, err = strconv.Atoi(s[i+1:])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed notification handle %q: %w", s, err)
	}
	return chatID, msgID, nil
}

var _ platform.Capability = (*Backend)(nil)
