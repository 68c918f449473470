package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/gatekeeper/internal/domain"
)

// AllowedUpdates lists the update kinds the bot subscribes to.
var AllowedUpdates = []string{"message", "callback_query", "poll_answer", "chat_member"}

// Telegram implements Gateway on top of the Bot API.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewTelegram authenticates with the Bot API using token.
func NewTelegram(token string, logger *slog.Logger) (*Telegram, error) {
	if err := tgbotapi.SetLogger(botLogger{logger: logger}); err != nil {
		return nil, fmt.Errorf("set bot logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	return &Telegram{api: api, logger: logger}, nil
}

// SelfID returns the bot's own user id.
func (t *Telegram) SelfID() int64 {
	return t.api.Self.ID
}

// SelfName returns the bot's username.
func (t *Telegram) SelfName() string {
	return t.api.Self.UserName
}

// Restrict implements Gateway.
func (t *Telegram) Restrict(ctx context.Context, chatID, userID int64, perms Permissions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Request(tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       perms.SendMessages,
			CanSendMediaMessages:  perms.SendMedia,
			CanSendPolls:          perms.SendPolls,
			CanSendOtherMessages:  perms.SendOther,
			CanAddWebPagePreviews: perms.WebPreviews,
		},
	})
	return classify("restrict chat member", err)
}

// PublishChallenge implements Gateway.
func (t *Telegram) PublishChallenge(ctx context.Context, chatID int64, c domain.Challenge, controls Controls) (Published, error) {
	if err := ctx.Err(); err != nil {
		return Published{}, err
	}
	poll := tgbotapi.NewPoll(chatID, c.Question, c.Options...)
	poll.IsAnonymous = false
	poll.AllowsMultipleAnswers = false
	poll.ReplyMarkup = keyboard(controls)

	msg, err := t.api.Send(poll)
	if err != nil {
		return Published{}, classify("send poll", err)
	}
	if msg.Poll == nil {
		return Published{}, fmt.Errorf("send poll: response carries no poll")
	}
	return Published{MessageID: msg.MessageID, ChallengeID: msg.Poll.ID}, nil
}

// EditControls implements Gateway.
func (t *Telegram) EditControls(ctx context.Context, chatID int64, messageID int, controls Controls) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cfg tgbotapi.EditMessageReplyMarkupConfig
	if len(controls) == 0 {
		cfg = tgbotapi.EditMessageReplyMarkupConfig{
			BaseEdit: tgbotapi.BaseEdit{ChatID: chatID, MessageID: messageID},
		}
	} else {
		cfg = tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, keyboard(controls))
	}
	_, err := t.api.Request(cfg)
	return classify("edit reply markup", err)
}

// DeleteMessage implements Gateway.
func (t *Telegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return classify("delete message", err)
}

// Ban implements Gateway.
func (t *Telegram) Ban(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
	})
	return classify("ban chat member", err)
}

// Unban implements Gateway.
func (t *Telegram) Unban(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Request(tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		OnlyIfBanned:     true,
	})
	return classify("unban chat member", err)
}

// SendNotice implements Gateway.
func (t *Telegram) SendNotice(ctx context.Context, chatID int64, text string, silent bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableNotification = silent
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, classify("send message", err)
	}
	return sent.MessageID, nil
}

// Reply implements Gateway.
func (t *Telegram) Reply(ctx context.Context, chatID int64, replyTo int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	_, err := t.api.Send(msg)
	return classify("send reply", err)
}

// AnswerPress implements Gateway.
func (t *Telegram) AnswerPress(ctx context.Context, pressID, text string, alert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cb := tgbotapi.NewCallback(pressID, text)
	cb.ShowAlert = alert
	_, err := t.api.Request(cb)
	return classify("answer callback", err)
}

// Role implements Gateway.
func (t *Telegram) Role(ctx context.Context, chatID, userID int64) (Role, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	member, err := t.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return "", classify("get chat member", err)
	}
	return Role(member.Status), nil
}

func keyboard(controls Controls) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(controls))
	for _, row := range controls {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// classify wraps err with op and maps "not modified" replies to ErrNotModified.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && isNotModified(apiErr.Message) {
		return fmt.Errorf("%s: %w", op, ErrNotModified)
	}
	if isNotModified(err.Error()) {
		return fmt.Errorf("%s: %w", op, ErrNotModified)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotModified(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "message is not modified")
}

// botLogger routes the Bot API client's own logging into slog.
type botLogger struct {
	logger *slog.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintln(v...)), "component", "tgbotapi")
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "tgbotapi")
}
