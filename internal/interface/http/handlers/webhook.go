package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/external/telegram"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM WEBHOOK
// ══════════════════════════════════════════════════════════════════════════════

// SecretTokenHeader carries the secret passed to setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// TelegramWebhook receives updates pushed by Telegram and hands them to the
// same handler the long poller uses.
type TelegramWebhook struct {
	secret  string
	handler telegram.UpdateHandler
	logger  *slog.Logger
}

// NewTelegramWebhook creates a webhook receiver. An empty secret disables the
// header check.
func NewTelegramWebhook(secret string, handler telegram.UpdateHandler, log *slog.Logger) *TelegramWebhook {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramWebhook{secret: secret, handler: handler, logger: log.With(logger.Component("webhook"))}
}

// ServeHTTP implements http.Handler. Telegram retries non-2xx answers, so
// handler failures are logged and acknowledged with 200.
func (h *TelegramWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid_secret", "Invalid webhook secret")
			return
		}
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_update", "Malformed update")
		return
	}

	// The update must outlive the request: Telegram may close the connection
	// before a slow command finishes.
	ctx := context.WithoutCancel(r.Context())
	if err := h.handler(ctx, &update); err != nil {
		logger.FromContextOr(r.Context(), h.logger).Error("webhook update failed",
			slog.Int64("update_id", update.UpdateID),
			logger.Err(err),
		)
	}
	w.WriteHeader(http.StatusOK)
}
