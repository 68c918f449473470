package verification

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
	"github.com/ashureev/gatekeeper/internal/gateway"
)

// Outcome is the result of an attempt to conclude a session.
type Outcome int

const (
	// Ignored means the event did not apply to any session.
	Ignored Outcome = iota
	// Resolved means this call concluded the session.
	Resolved
	// AlreadyResolved means another path concluded the session first.
	AlreadyResolved
	// NotAuthorized means the caller lacks the privileges for the action.
	NotAuthorized
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case AlreadyResolved:
		return "already_resolved"
	case NotAuthorized:
		return "not_authorized"
	default:
		return "ignored"
	}
}

// Config holds the engine's timing parameters.
type Config struct {
	Window          time.Duration
	NoticeTTL       time.Duration
	RefreshInterval time.Duration
}

// Answers that arrive before their session is stored are held this long.
const (
	strayAnswerTTL  = time.Minute
	maxStrayAnswers = 1024
)

type strayAnswer struct {
	userID  int64
	options []int
	at      time.Time
}

// Press is an inline button press.
type Press struct {
	ID        string
	ChatID    int64
	MessageID int
	PresserID int64
	Data      string
}

// Engine creates verification sessions and arbitrates their resolution.
type Engine struct {
	gw     gateway.Gateway
	store  *SessionStore
	mech   *domain.Mechanisms
	cfg    Config
	selfID int64
	logger *slog.Logger
	events domain.Publisher
	now    func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	// strayMu orders session insertion against answer lookup.
	strayMu sync.Mutex
	strays  map[string]strayAnswer

	ctx    context.Context
	cancel context.CancelFunc
	bgMu   sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand replaces the challenge randomness source.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithPublisher sets the receiver of moderation events.
func WithPublisher(p domain.Publisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine wires an engine. selfID is the bot's own user id.
func NewEngine(gw gateway.Gateway, store *SessionStore, mech *domain.Mechanisms, selfID int64, cfg Config, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		gw:     gw,
		store:  store,
		mech:   mech,
		cfg:    cfg,
		selfID: selfID,
		logger: slog.Default(),
		events: domain.NopPublisher,
		now:    time.Now,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		strays: make(map[string]strayAnswer),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close stops every timer and waits for background work to finish.
func (e *Engine) Close() {
	e.bgMu.Lock()
	e.closed = true
	e.bgMu.Unlock()

	e.cancel()
	e.wg.Wait()
}

// Pending returns the number of gated participants.
func (e *Engine) Pending() int {
	return e.store.Len()
}

// IsGated reports whether the participant is awaiting verification.
func (e *Engine) IsGated(key domain.Key) bool {
	return e.store.Has(key)
}

// OnJoin gates a participant who just joined a chat.
func (e *Engine) OnJoin(ctx context.Context, key domain.Key, p domain.Profile) {
	if !e.mech.HTest() || key.UserID == e.selfID {
		return
	}
	log := e.logger.With("chat_id", key.ChatID, "user_id", key.UserID)
	if e.store.Has(key) {
		log.Debug("Duplicate join ignored, participant already gated")
		return
	}
	log.Info("New participant", "name", p.DisplayName())

	if err := e.gw.Restrict(ctx, key.ChatID, key.UserID, gateway.Restricted); err != nil {
		log.Error("Failed to restrict participant", "error", err)
		return
	}

	e.rngMu.Lock()
	challenge := domain.NewChallenge(p, e.rng)
	e.rngMu.Unlock()

	pub, err := e.gw.PublishChallenge(ctx, key.ChatID, challenge, controls(key.UserID, e.cfg.Window))
	if err != nil {
		log.Error("Failed to publish challenge", "error", err)
		if err := e.gw.Restrict(context.WithoutCancel(ctx), key.ChatID, key.UserID, gateway.Default); err != nil {
			log.Error("Failed to lift restriction after publish failure", "error", err)
		}
		return
	}

	now := e.now()
	sess := &domain.Session{
		Key:             key,
		ChallengeID:     pub.ChallengeID,
		PromptMessageID: pub.MessageID,
		CorrectOption:   challenge.CorrectOption,
		Deadline:        now.Add(e.cfg.Window),
		Profile:         p,
		CreatedAt:       now,
	}
	sctx, cancel := context.WithCancel(e.ctx)
	sess.Bind(cancel)

	e.strayMu.Lock()
	inserted := e.store.Insert(sess)
	stray, early := e.takeStray(pub.ChallengeID, key.UserID)
	e.strayMu.Unlock()

	if !inserted {
		cancel()
		log.Warn("Session already exists, discarding duplicate challenge")
		if err := e.gw.DeleteMessage(ctx, key.ChatID, pub.MessageID); err != nil {
			log.Warn("Failed to delete duplicate challenge", "message_id", pub.MessageID, "error", err)
		}
		return
	}

	ev := domain.NewEvent(domain.EventSessionCreated, key, now)
	ev.Name = p.DisplayName()
	e.events.Publish(ev)

	e.startTimers(sctx, key, pub.ChallengeID, sess.Deadline)
	log.Info("Challenge published", "challenge_id", pub.ChallengeID, "message_id", pub.MessageID, "deadline", sess.Deadline)

	if early {
		log.Info("Applying answer received before the session was stored", "challenge_id", pub.ChallengeID)
		e.resolveAnswer(ctx, key, pub.ChallengeID, stray.options[0])
	}
}

// OnAnswer resolves a session from the participant's own answer.
// An answer for an unknown challenge is held briefly in case its session
// is still being created; it is reported as Ignored.
func (e *Engine) OnAnswer(ctx context.Context, userID int64, challengeID string, options []int) Outcome {
	if len(options) == 0 {
		return Ignored
	}
	e.strayMu.Lock()
	key, ok := e.store.FindByChallenge(userID, challengeID)
	if !ok {
		e.holdStray(challengeID, strayAnswer{userID: userID, options: options, at: e.now()})
	}
	e.strayMu.Unlock()
	if !ok {
		return Ignored
	}
	return e.resolveAnswer(ctx, key, challengeID, options[0])
}

func (e *Engine) resolveAnswer(ctx context.Context, key domain.Key, challengeID string, selected int) Outcome {
	sess, ok := e.store.Get(key)
	if !ok {
		return AlreadyResolved
	}
	e.logger.Info("Challenge answered", "chat_id", key.ChatID, "user_id", key.UserID, "option", selected)
	if selected == sess.CorrectOption {
		return e.admit(ctx, key, challengeID)
	}
	return e.reject(ctx, key, challengeID, domain.ReasonIncorrectAnswer)
}

// holdStray records an unmatched answer. Callers hold strayMu.
func (e *Engine) holdStray(challengeID string, a strayAnswer) {
	cutoff := a.at.Add(-strayAnswerTTL)
	for id, s := range e.strays {
		if s.at.Before(cutoff) {
			delete(e.strays, id)
		}
	}
	if len(e.strays) >= maxStrayAnswers {
		e.logger.Warn("Too many unmatched answers, dropping", "challenge_id", challengeID, "user_id", a.userID)
		return
	}
	e.strays[challengeID] = a
}

// takeStray pops a held answer for the challenge. Callers hold strayMu.
func (e *Engine) takeStray(challengeID string, userID int64) (strayAnswer, bool) {
	a, ok := e.strays[challengeID]
	if !ok {
		return strayAnswer{}, false
	}
	delete(e.strays, challengeID)
	if a.userID != userID || e.now().Sub(a.at) > strayAnswerTTL {
		return strayAnswer{}, false
	}
	return a, true
}

// OnLeave drops the session of a participant who left the chat on their own.
// Nobody is banned and no notice is posted.
func (e *Engine) OnLeave(ctx context.Context, key domain.Key) Outcome {
	sess, ok := e.take(key, "")
	if !ok {
		return Ignored
	}
	ctx = context.WithoutCancel(ctx)
	log := e.logger.With("chat_id", key.ChatID, "user_id", key.UserID)

	if err := e.gw.DeleteMessage(ctx, key.ChatID, sess.PromptMessageID); err != nil {
		log.Warn("Failed to delete challenge", "message_id", sess.PromptMessageID, "error", err)
	}

	ev := domain.NewEvent(domain.EventSessionRejected, key, e.now())
	ev.Name = sess.Profile.ShortName()
	ev.Reason = domain.ReasonLeft
	e.events.Publish(ev)
	log.Info("Participant left during verification")
	return Resolved
}

// OnPress handles an administrator control press.
func (e *Engine) OnPress(ctx context.Context, p Press) Outcome {
	action, err := domain.ParseAction(p.Data)
	if err != nil || action.Kind == domain.ActionNoop {
		e.answer(ctx, p.ID, "", false)
		return Ignored
	}

	role, err := e.gw.Role(ctx, p.ChatID, p.PresserID)
	if err != nil {
		e.logger.Error("Failed to check presser role", "chat_id", p.ChatID, "user_id", p.PresserID, "error", err)
	}
	if !role.Elevated() {
		e.answer(ctx, p.ID, "Only administrators can use these buttons", false)
		return NotAuthorized
	}

	key := domain.Key{ChatID: p.ChatID, UserID: action.Target}
	e.logger.Info("Administrator action", "chat_id", p.ChatID, "admin_id", p.PresserID, "user_id", action.Target, "action", action.Kind)

	var out Outcome
	if action.Kind == domain.ActionAdmit {
		out = e.Admit(ctx, key)
	} else {
		out = e.Reject(ctx, key, domain.ReasonRejectedByAdmin)
	}

	if out == AlreadyResolved {
		e.answer(ctx, p.ID, "This participant has already been verified or removed.", true)
		if err := e.gw.EditControls(ctx, p.ChatID, p.MessageID, nil); err != nil {
			e.logger.Warn("Failed to strip controls", "chat_id", p.ChatID, "message_id", p.MessageID, "error", err)
		}
		return out
	}

	if action.Kind == domain.ActionAdmit {
		e.answer(ctx, p.ID, "Participant admitted", false)
	} else {
		e.answer(ctx, p.ID, "Participant rejected", false)
	}
	return out
}

// Admit lets a gated participant in.
func (e *Engine) Admit(ctx context.Context, key domain.Key) Outcome {
	return e.admit(ctx, key, "")
}

// Reject removes a gated participant from the chat.
func (e *Engine) Reject(ctx context.Context, key domain.Key, reason string) Outcome {
	return e.reject(ctx, key, "", reason)
}

func (e *Engine) take(key domain.Key, challengeID string) (*domain.Session, bool) {
	sess, ok := e.store.Take(key, challengeID)
	if ok {
		sess.Stop()
	}
	return sess, ok
}

func (e *Engine) admit(ctx context.Context, key domain.Key, challengeID string) Outcome {
	sess, ok := e.take(key, challengeID)
	if !ok {
		return AlreadyResolved
	}
	ctx = context.WithoutCancel(ctx)
	log := e.logger.With("chat_id", key.ChatID, "user_id", key.UserID)

	if err := e.gw.Restrict(ctx, key.ChatID, key.UserID, gateway.Default); err != nil {
		log.Error("Failed to restore permissions", "error", err)
	}
	if err := e.gw.DeleteMessage(ctx, key.ChatID, sess.PromptMessageID); err != nil {
		log.Warn("Failed to delete challenge", "message_id", sess.PromptMessageID, "error", err)
	}
	text := fmt.Sprintf("✅ %s passed verification!", sess.Profile.ShortName())
	if _, err := e.gw.SendNotice(ctx, key.ChatID, text, true); err != nil {
		log.Warn("Failed to post admission notice", "error", err)
	}

	ev := domain.NewEvent(domain.EventSessionAdmitted, key, e.now())
	ev.Name = sess.Profile.ShortName()
	e.events.Publish(ev)
	log.Info("Participant admitted")
	return Resolved
}

func (e *Engine) reject(ctx context.Context, key domain.Key, challengeID, reason string) Outcome {
	sess, ok := e.take(key, challengeID)
	if !ok {
		return AlreadyResolved
	}
	ctx = context.WithoutCancel(ctx)
	log := e.logger.With("chat_id", key.ChatID, "user_id", key.UserID, "reason", reason)

	if err := e.gw.Ban(ctx, key.ChatID, key.UserID); err != nil {
		log.Error("Failed to remove participant", "error", err)
	} else if err := e.gw.Unban(ctx, key.ChatID, key.UserID); err != nil {
		log.Error("Failed to lift ban after removal", "error", err)
	}
	if err := e.gw.DeleteMessage(ctx, key.ChatID, sess.PromptMessageID); err != nil {
		log.Warn("Failed to delete challenge", "message_id", sess.PromptMessageID, "error", err)
	}
	text := fmt.Sprintf("🚫 %s was removed from the group. Reason: %s", sess.Profile.ShortName(), reason)
	if noticeID, err := e.gw.SendNotice(ctx, key.ChatID, text, true); err != nil {
		log.Warn("Failed to post removal notice", "error", err)
	} else {
		e.scheduleNoticeDeletion(key.ChatID, noticeID)
	}

	ev := domain.NewEvent(domain.EventSessionRejected, key, e.now())
	ev.Name = sess.Profile.ShortName()
	ev.Reason = reason
	e.events.Publish(ev)
	log.Info("Participant removed")
	return Resolved
}

func (e *Engine) answer(ctx context.Context, pressID, text string, alert bool) {
	if pressID == "" {
		return
	}
	if err := e.gw.AnswerPress(ctx, pressID, text, alert); err != nil {
		e.logger.Warn("Failed to answer button press", "error", err)
	}
}

// controls builds the inline keyboard of a challenge.
func controls(target int64, remaining time.Duration) gateway.Controls {
	return gateway.Controls{
		{
			{Text: "👍", Data: domain.Action{Kind: domain.ActionAdmit, Target: target}.Encode()},
			{Text: "👎", Data: domain.Action{Kind: domain.ActionReject, Target: target}.Encode()},
		},
		{
			{Text: countdownLabel(remaining), Data: domain.Action{Kind: domain.ActionNoop}.Encode()},
		},
	}
}

func countdownLabel(d time.Duration) string {
	d = d.Round(time.Second)
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("⏳ %d:%02d", int(d/time.Minute), int(d%time.Minute/time.Second))
}
