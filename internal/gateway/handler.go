// Package gateway is the HTTP surface: the Twilio webhook plus the health
// and stats endpoints. Every webhook request ends in a terminal plain-text
// status; per-request failures never crash the process.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/whatspay/internal/billing"
	"github.com/vnmchuo/whatspay/internal/messenger"
	"github.com/vnmchuo/whatspay/internal/state"
	"github.com/vnmchuo/whatspay/pkg/ratelimit"
)

const (
	apologyText   = "Sorry, I encountered an error processing your request. Please try again later."
	rateLimitText = "⏳ You're sending messages too quickly. Please wait a minute and try again."
)

// MessageHandler produces the reply for one inbound message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sender, body string) (string, error)
}

type Handler struct {
	bot     MessageHandler
	sender  messenger.Messenger
	limiter *ratelimit.Limiter // nil disables rate limiting
	store   *state.Store
	archive *billing.Archive // nil when the usage archive is disabled
	tracer  trace.Tracer
	version string
	log     zerolog.Logger
}

func NewHandler(bot MessageHandler, sender messenger.Messenger, limiter *ratelimit.Limiter, store *state.Store, archive *billing.Archive, tracer trace.Tracer, version string, log zerolog.Logger) *Handler {
	return &Handler{
		bot:     bot,
		sender:  sender,
		limiter: limiter,
		store:   store,
		archive: archive,
		tracer:  tracer,
		version: version,
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

// HandleWebhook processes one inbound Twilio message. Success is a plain
// 200 "OK"; a missing field or handler failure is a plain 500 "Error" with
// a best-effort apology to the sender whose own failure is swallowed.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID := uuid.New().String()
	w.Header().Set("X-Request-ID", requestID)

	if err := r.ParseForm(); err != nil {
		h.log.Error().Err(err).Msg("failed to parse webhook form")
		h.writeError(w)
		return
	}

	sender := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	body := strings.TrimSpace(r.FormValue("Body"))
	if sender == "" || body == "" {
		h.log.Warn().Str("request_id", requestID).Msg("webhook missing From or Body")
		h.writeError(w)
		return
	}

	ctx, span := h.tracer.Start(ctx, "gateway.webhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.String("sender", sender),
	)

	h.log.Info().Str("request_id", requestID).Str("sender", sender).Int("len", len(body)).Msg("message received")

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, sender)
		if err != nil || !allowed {
			if err != nil {
				h.log.Error().Err(err).Msg("rate limiter error")
			}
			h.trySend(ctx, sender, rateLimitText)
			h.writeOK(w)
			return
		}
	}

	reply, err := h.bot.HandleMessage(ctx, sender, body)
	if err != nil {
		h.log.Error().Err(err).Str("request_id", requestID).Str("sender", sender).Msg("message handling failed")
		h.trySend(ctx, sender, apologyText)
		h.writeError(w)
		return
	}

	if err := h.sender.Send(ctx, sender, reply); err != nil {
		h.log.Error().Err(err).Str("request_id", requestID).Str("sender", sender).Msg("failed to send reply")
	}

	h.writeOK(w)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "whatspay is running",
		"version": h.version,
	})
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.store.Stats()

	payload := map[string]interface{}{
		"total_users":                stats.TotalUsers,
		"total_balance":              stats.TotalBalance,
		"pending_deposits":           stats.PendingDeposits,
		"total_queries":              stats.TotalQueries,
		"pending_attempts":           stats.PendingAttempts,
		"oldest_pending_age_seconds": stats.OldestPendingAgeSecs,
	}
	if h.archive != nil {
		if n, err := h.archive.Count(r.Context()); err == nil {
			payload["archived_entries"] = n
		} else {
			h.log.Error().Err(err).Msg("failed to count archived usage")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) trySend(ctx context.Context, to, text string) {
	if err := h.sender.Send(ctx, to, text); err != nil {
		h.log.Error().Err(err).Str("to", to).Msg("best-effort send failed")
	}
}

func (h *Handler) writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) writeError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte("Error"))
}
