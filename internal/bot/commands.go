package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	mechanismHTest   = "htest"
	mechanismFastOut = "fastout"

	startText     = "Hi! The verification bot is up and running."
	notAdminText  = "Only administrators can manage bot settings"
	groupOnlyText = "This command only works in groups."
	statsTimeout  = 3 * time.Second
)

func (d *Dispatcher) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	cmd := strings.ToLower(m.Command())
	d.logger.Info("Command received",
		"command", cmd, "chat_id", m.Chat.ID, "user_id", m.From.ID)

	switch cmd {
	case "start":
		d.reply(ctx, m, startText)
	case mechanismHTest, mechanismFastOut:
		d.toggleMechanism(ctx, m, cmd)
	case "status":
		d.reply(ctx, m, d.statusText(ctx))
	}
}

func (d *Dispatcher) toggleMechanism(ctx context.Context, m *tgbotapi.Message, mechanism string) {
	if !(m.Chat.IsGroup() || m.Chat.IsSuperGroup()) {
		d.reply(ctx, m, groupOnlyText)
		return
	}
	role, err := d.gw.Role(ctx, m.Chat.ID, m.From.ID)
	if err != nil {
		d.logger.Warn("Failed to check administrator status",
			"chat_id", m.Chat.ID, "user_id", m.From.ID, "error", err)
	}
	if err != nil || !role.Elevated() {
		d.reply(ctx, m, notAdminText)
		return
	}

	args := strings.Fields(m.CommandArguments())
	if len(args) == 0 {
		d.reply(ctx, m, fmt.Sprintf("Mechanism %s: %s", mechanism, stateWord(d.enabled(mechanism))))
		return
	}

	var on bool
	switch strings.ToLower(args[0]) {
	case "on":
		on = true
	case "off":
	default:
		d.reply(ctx, m, fmt.Sprintf("Usage: /%s on|off", mechanism))
		return
	}

	if mechanism == mechanismHTest {
		d.mech.SetHTest(on)
	} else {
		d.mech.SetFastOut(on)
	}
	d.logger.Info("Mechanism toggled",
		"mechanism", mechanism, "enabled", on, "chat_id", m.Chat.ID, "user_id", m.From.ID)
	d.reply(ctx, m, fmt.Sprintf("Mechanism %s %s", mechanism, stateWord(on)))
}

func (d *Dispatcher) enabled(mechanism string) bool {
	if mechanism == mechanismHTest {
		return d.mech.HTest()
	}
	return d.mech.FastOut()
}

func (d *Dispatcher) statusText(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("🤖 Verification bot status\n")
	b.WriteString("📊 Mechanisms:\n")
	fmt.Fprintf(&b, "• HTest (polls): %s\n", stateMark(d.mech.HTest()))
	fmt.Fprintf(&b, "• FastOut (tracking): %s\n", stateMark(d.mech.FastOut()))
	b.WriteString("⏱ Timing:\n")
	fmt.Fprintf(&b, "• Verification window: %d min\n", minutes(d.settings.Window))
	fmt.Fprintf(&b, "• Message tracking: %d min\n", minutes(d.settings.TrackingWindow))
	fmt.Fprintf(&b, "• Removal notices: %d min\n", minutes(d.settings.NoticeTTL))
	b.WriteString("👥 Activity:\n")
	fmt.Fprintf(&b, "• Awaiting verification: %d\n", d.verifier.Pending())
	fmt.Fprintf(&b, "• Tracked participants: %d", d.tracker.Tracked())

	if d.stats == nil {
		return b.String()
	}
	sctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()
	totals, err := d.stats.Totals(sctx)
	if err != nil {
		d.logger.Warn("Failed to read journal totals", "error", err)
		return b.String()
	}
	b.WriteString("\n📒 Journal:\n")
	fmt.Fprintf(&b, "• Challenges issued: %d\n", totals[domain.EventSessionCreated])
	fmt.Fprintf(&b, "• Admitted: %d\n", totals[domain.EventSessionAdmitted])
	fmt.Fprintf(&b, "• Removed: %d\n", totals[domain.EventSessionRejected])
	fmt.Fprintf(&b, "• Purges: %d", totals[domain.EventLedgerPurged])
	return b.String()
}

func (d *Dispatcher) reply(ctx context.Context, m *tgbotapi.Message, text string) {
	if err := d.gw.Reply(ctx, m.Chat.ID, m.MessageID, text); err != nil {
		d.logger.Error("Failed to send reply", "chat_id", m.Chat.ID, "error", err)
	}
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}

func stateWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func stateMark(on bool) string {
	if on {
		return "✅ enabled"
	}
	return "❌ disabled"
}
