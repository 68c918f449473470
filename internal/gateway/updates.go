package gateway

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateSink receives decoded platform updates.
type UpdateSink func(tgbotapi.Update)

// SetWebhook registers url with the platform, dropping any backlog first.
// A non-empty secret is echoed back by the platform on every delivery.
func (t *Telegram) SetWebhook(url, secret string) error {
	if err := t.DeleteWebhook(); err != nil {
		return err
	}

	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", AllowedUpdates); err != nil {
		return fmt.Errorf("encode allowed updates: %w", err)
	}
	if _, err := t.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := t.api.GetWebhookInfo()
	if err != nil {
		t.logger.Warn("Failed to fetch webhook info", "error", err)
		return nil
	}
	t.logger.Info("Webhook registered",
		"url", info.URL,
		"pending_updates", info.PendingUpdateCount,
		"last_error", info.LastErrorMessage)
	return nil
}

// DeleteWebhook removes the webhook and drops pending updates.
func (t *Telegram) DeleteWebhook() error {
	if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// Poll long-polls for updates until ctx is cancelled.
func (t *Telegram) Poll(ctx context.Context, sink UpdateSink) error {
	if err := t.DeleteWebhook(); err != nil {
		return err
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	cfg.AllowedUpdates = AllowedUpdates
	updates := t.api.GetUpdatesChan(cfg)
	t.logger.Info("Long polling started", "bot", t.SelfName())

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			t.logger.Info("Long polling stopped", "reason", ctx.Err())
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			sink(upd)
		}
	}
}
