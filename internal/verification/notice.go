package verification

import "time"

// scheduleNoticeDeletion removes a transient notice after the notice TTL.
// Failures are logged; the message may already be gone.
func (e *Engine) scheduleNoticeDeletion(chatID int64, messageID int) {
	e.goBackground(func() {
		timer := time.NewTimer(e.cfg.NoticeTTL)
		defer timer.Stop()

		select {
		case <-e.ctx.Done():
			return
		case <-timer.C:
		}

		if err := e.gw.DeleteMessage(e.ctx, chatID, messageID); err != nil {
			e.logger.Warn("Failed to delete removal notice", "chat_id", chatID, "message_id", messageID, "error", err)
			return
		}
		e.logger.Info("Removal notice deleted", "chat_id", chatID, "message_id", messageID)
	})
}
