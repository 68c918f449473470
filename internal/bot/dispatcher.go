// Package bot routes platform updates to the verification engine and the
// message tracker.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
	"github.com/ashureev/gatekeeper/internal/gateway"
	"github.com/ashureev/gatekeeper/internal/verification"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"
)

// Verifier is the part of the verification engine the dispatcher drives.
type Verifier interface {
	OnJoin(ctx context.Context, key domain.Key, p domain.Profile)
	OnLeave(ctx context.Context, key domain.Key) verification.Outcome
	OnAnswer(ctx context.Context, userID int64, challengeID string, options []int) verification.Outcome
	OnPress(ctx context.Context, p verification.Press) verification.Outcome
	IsGated(key domain.Key) bool
	Pending() int
}

// MessageTracker is the part of the FastOut tracker the dispatcher drives.
type MessageTracker interface {
	OnJoin(key domain.Key)
	OnMessage(ctx context.Context, key domain.Key, messageID int)
	OnLeave(ctx context.Context, key domain.Key) int
	Tracked() int
}

// StatsSource reports journal totals for /status.
type StatsSource interface {
	Totals(ctx context.Context) (map[domain.EventType]int64, error)
}

// Settings are the timing values reported by /status.
type Settings struct {
	Window         time.Duration
	NoticeTTL      time.Duration
	TrackingWindow time.Duration
}

// Options configures a Dispatcher.
type Options struct {
	QueueSize int
	Workers   int
	BotName   string
	Settings  Settings
	Stats     StatsSource
	Logger    *slog.Logger
}

// Dispatcher queues updates and handles them on a fixed set of workers.
// Each chat is pinned to one lane so its updates are handled in arrival order.
type Dispatcher struct {
	gw       gateway.Gateway
	verifier Verifier
	tracker  MessageTracker
	mech     *domain.Mechanisms
	stats    StatsSource
	settings Settings
	botName  string
	lanes    []chan tgbotapi.Update
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. Call Run to start handling updates.
func NewDispatcher(gw gateway.Gateway, v Verifier, t MessageTracker, mech *domain.Mechanisms, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	lanes := make([]chan tgbotapi.Update, opts.Workers)
	for i := range lanes {
		lanes[i] = make(chan tgbotapi.Update, opts.QueueSize)
	}
	return &Dispatcher{
		gw:       gw,
		verifier: v,
		tracker:  t,
		mech:     mech,
		stats:    opts.Stats,
		settings: opts.Settings,
		botName:  opts.BotName,
		lanes:    lanes,
		logger:   opts.Logger,
	}
}

// Enqueue queues u without blocking. It returns false when its lane is full.
func (d *Dispatcher) Enqueue(u tgbotapi.Update) bool {
	select {
	case d.lane(u) <- u:
		return true
	default:
		d.logger.Warn("Update queue full, dropping update", "update_id", u.UpdateID)
		return false
	}
}

// EnqueueWait queues u, waiting for room until ctx is done.
func (d *Dispatcher) EnqueueWait(ctx context.Context, u tgbotapi.Update) bool {
	select {
	case d.lane(u) <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

// lane picks the queue for u by chat. Poll answers carry no chat and are
// spread by user instead.
func (d *Dispatcher) lane(u tgbotapi.Update) chan tgbotapi.Update {
	var id int64
	switch {
	case u.ChatMember != nil:
		id = u.ChatMember.Chat.ID
	case u.PollAnswer != nil:
		id = u.PollAnswer.User.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil:
		id = u.CallbackQuery.Message.Chat.ID
	case u.Message != nil && u.Message.Chat != nil:
		id = u.Message.Chat.ID
	}
	return d.lanes[uint64(id)%uint64(len(d.lanes))]
}

// Run handles queued updates until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Dispatcher started", "workers", len(d.lanes), "queue_size", cap(d.lanes[0]))
	g, gctx := errgroup.WithContext(ctx)
	for _, lane := range d.lanes {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case u := <-lane:
					d.Handle(gctx, u)
				}
			}
		})
	}
	err := g.Wait()
	d.logger.Info("Dispatcher stopped", "reason", ctx.Err())
	return err
}

// Handle routes a single update. A panic is logged and swallowed.
func (d *Dispatcher) Handle(ctx context.Context, u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Update handler panicked",
				"update_id", u.UpdateID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	switch {
	case u.ChatMember != nil:
		d.handleMembership(ctx, u.ChatMember)
	case u.PollAnswer != nil:
		d.handlePollAnswer(ctx, u.PollAnswer)
	case u.CallbackQuery != nil:
		d.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		d.handleMessage(ctx, u.Message)
	}
}

func (d *Dispatcher) handleMembership(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	user := upd.NewChatMember.User
	if user == nil {
		user = upd.OldChatMember.User
	}
	if user == nil {
		return
	}
	key := domain.Key{ChatID: upd.Chat.ID, UserID: user.ID}

	was, is := isMember(upd.OldChatMember), isMember(upd.NewChatMember)
	switch {
	case !was && is:
		d.logger.Info("Participant joined", "chat_id", key.ChatID, "user_id", key.UserID)
		d.tracker.OnJoin(key)
		d.verifier.OnJoin(ctx, key, domain.Profile{FirstName: user.FirstName, Username: user.UserName})
	case was && !is:
		d.logger.Info("Participant left", "chat_id", key.ChatID, "user_id", key.UserID)
		d.verifier.OnLeave(ctx, key)
		d.tracker.OnLeave(ctx, key)
	}
}

// isMember reports whether m currently belongs to the chat.
func isMember(m tgbotapi.ChatMember) bool {
	switch m.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return m.IsMember
	default:
		return false
	}
}

func (d *Dispatcher) handlePollAnswer(ctx context.Context, a *tgbotapi.PollAnswer) {
	out := d.verifier.OnAnswer(ctx, a.User.ID, a.PollID, a.OptionIDs)
	d.logger.Debug("Poll answer handled", "user_id", a.User.ID, "poll_id", a.PollID, "outcome", out)
}

func (d *Dispatcher) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat == nil || q.From == nil {
		if err := d.gw.AnswerPress(ctx, q.ID, "", false); err != nil {
			d.logger.Warn("Failed to answer callback", "error", err)
		}
		return
	}
	out := d.verifier.OnPress(ctx, verification.Press{
		ID:        q.ID,
		ChatID:    q.Message.Chat.ID,
		MessageID: q.Message.MessageID,
		PresserID: q.From.ID,
		Data:      q.Data,
	})
	d.logger.Debug("Control press handled",
		"chat_id", q.Message.Chat.ID, "user_id", q.From.ID, "outcome", out)
}

func (d *Dispatcher) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.Chat == nil || m.From == nil {
		return
	}
	key := domain.Key{ChatID: m.Chat.ID, UserID: m.From.ID}
	group := m.Chat.IsGroup() || m.Chat.IsSuperGroup()

	if group {
		d.tracker.OnMessage(ctx, key, m.MessageID)
		if d.verifier.IsGated(key) {
			return
		}
	}
	if m.IsCommand() && d.addressedToUs(m) {
		d.handleCommand(ctx, m)
	}
}

// addressedToUs drops commands explicitly meant for another bot.
func (d *Dispatcher) addressedToUs(m *tgbotapi.Message) bool {
	_, target, ok := strings.Cut(m.CommandWithAt(), "@")
	if !ok || d.botName == "" {
		return true
	}
	return strings.EqualFold(target, d.botName)
}
