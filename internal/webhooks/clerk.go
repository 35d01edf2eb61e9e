// Package webhooks receives identity-provider webhooks and applies them once.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-discovery/internal/ledger"
	"github.com/JakeFAU/creator-discovery/internal/metrics"
	"github.com/JakeFAU/creator-discovery/internal/plan"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

const (
	maxBodySize = 64 << 10
	source      = "clerk"

	// TrialExpiryJob is the background job scheduled for every new user.
	TrialExpiryJob = "trial_expiry_check"
)

// Scheduler publishes a message for delivery at or after notBefore.
type Scheduler interface {
	PublishAt(ctx context.Context, destination string, payload any, notBefore time.Time) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// ClerkConfig configures ClerkHandler.
type ClerkConfig struct {
	// Secret is the svix signing secret. Empty skips verification.
	Secret string
	// TrialCheckURL receives the trial expiry job. Empty records the intent only.
	TrialCheckURL string
	TrialLength   time.Duration
}

// TrialCheckPayload is the body of the trial expiry job.
type TrialCheckPayload struct {
	UserID      string    `json:"userId"`
	TrialEndsAt time.Time `json:"trialEndsAt"`
}

// ClerkHandler applies Clerk user lifecycle events.
type ClerkHandler struct {
	cfg       ClerkConfig
	webhook   *svix.Webhook
	users     scraping.UserStore
	ledger    *ledger.Ledger
	scheduler Scheduler
	clock     Clock
	logger    *zap.Logger
}

// NewClerkHandler builds a handler. scheduler may be nil.
func NewClerkHandler(cfg ClerkConfig, users scraping.UserStore, l *ledger.Ledger, scheduler Scheduler, clock Clock, logger *zap.Logger) (*ClerkHandler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ClerkHandler{
		cfg:       cfg,
		users:     users,
		ledger:    l,
		scheduler: scheduler,
		clock:     clock,
		logger:    logger.Named("clerk_webhook"),
	}
	if cfg.Secret != "" {
		wh, err := svix.NewWebhook(cfg.Secret)
		if err != nil {
			return nil, fmt.Errorf("create webhook verifier: %w", err)
		}
		h.webhook = wh
	}
	return h, nil
}

// ServeHTTP verifies, deduplicates, and applies one delivery. A failed run
// answers 500 so the provider redelivers; the ledger then retries it.
func (h *ClerkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read body"})
		return
	}

	if h.webhook != nil {
		headers := http.Header{}
		headers.Set("svix-id", r.Header.Get("svix-id"))
		headers.Set("svix-timestamp", r.Header.Get("svix-timestamp"))
		headers.Set("svix-signature", r.Header.Get("svix-signature"))
		if err := h.webhook.Verify(payload, headers); err != nil {
			h.logger.Warn("webhook signature rejected", zap.Error(err))
			metrics.ObserveWebhookEvent(source, "invalid_signature")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid signature"})
			return
		}
	}

	ev, err := ParseClerkEvent(payload, r.Header.Get("svix-id"), r.Header.Get("svix-timestamp"))
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			metrics.ObserveWebhookEvent(source, "invalid_payload")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload", "message": pe.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	status, err := h.Handle(r.Context(), ev)
	if err != nil {
		h.logger.Error("webhook processing failed", zap.String("type", ev.Type), zap.String("delivery_id", ev.DeliveryID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// Handle applies ev at most once and returns "processed", "skipped", or "ignored".
func (h *ClerkHandler) Handle(ctx context.Context, ev ClerkEvent) (string, error) {
	decision, err := h.ledger.Check(ctx, ledger.Event{
		ID:          ev.DeliveryID,
		Source:      source,
		AggregateID: ev.UserID,
		Type:        ev.Type,
		Timestamp:   ev.Timestamp,
		Payload:     ev.Raw,
	})
	if err != nil {
		metrics.ObserveWebhookEvent(source, "error")
		return "", err
	}
	if !decision.ShouldProcess {
		h.logger.Info("skipping duplicate delivery", zap.String("key", decision.Key), zap.String("reason", string(decision.Reason)))
		metrics.ObserveWebhookEvent(source, "skipped")
		return "skipped", nil
	}

	outcome := "processed"
	switch ev.Type {
	case EventUserCreated:
		err = h.userCreated(ctx, ev)
	case EventUserDeleted:
		err = h.userDeleted(ctx, ev)
	default:
		outcome = "ignored"
	}
	if err != nil {
		if markErr := h.ledger.MarkFailed(ctx, decision.Key, err); markErr != nil {
			h.logger.Error("failed to record webhook failure", zap.String("key", decision.Key), zap.Error(markErr))
		}
		metrics.ObserveWebhookEvent(source, "failed")
		return "", err
	}
	if err := h.ledger.MarkCompleted(ctx, decision.Key); err != nil {
		metrics.ObserveWebhookEvent(source, "error")
		return "", err
	}
	metrics.ObserveWebhookEvent(source, outcome)
	return outcome, nil
}

func (h *ClerkHandler) userCreated(ctx context.Context, ev ClerkEvent) error {
	now := h.clock.Now()
	trialEnds := now.Add(h.cfg.TrialLength)
	err := h.users.CreateUser(ctx, scraping.User{
		ID:          ev.UserID,
		Email:       ev.Email,
		Plan:        plan.Free,
		TrialEndsAt: &trialEnds,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	switch {
	case errors.Is(err, scraping.ErrConflict):
		// The conflict is either our own id (a replay) or the email held by
		// another account. Only the former gets a trial check.
		_, getErr := h.users.GetUser(ctx, ev.UserID)
		switch {
		case errors.Is(getErr, scraping.ErrNotFound):
			h.logger.Warn("email already registered to another user; trial check skipped",
				zap.String("user_id", ev.UserID))
			return nil
		case getErr != nil:
			return fmt.Errorf("load existing user: %w", getErr)
		}
		h.logger.Info("user already exists", zap.String("user_id", ev.UserID))
	case err != nil:
		return fmt.Errorf("create user: %w", err)
	}

	payload := TrialCheckPayload{UserID: ev.UserID, TrialEndsAt: trialEnds}
	intent, created, err := h.ledger.RecordIntent(ctx, TrialExpiryJob, ev.UserID, payload, trialEnds)
	if err != nil {
		return fmt.Errorf("record trial check: %w", err)
	}
	if !created || h.scheduler == nil || h.cfg.TrialCheckURL == "" {
		return nil
	}

	// Scheduling failures are kept on the intent and do not fail the delivery.
	msgID, err := h.scheduler.PublishAt(ctx, h.cfg.TrialCheckURL, payload, trialEnds)
	if err != nil {
		h.logger.Warn("trial check scheduling failed", zap.String("user_id", ev.UserID), zap.Error(err))
		if failErr := h.ledger.FailIntent(ctx, intent.Key, err); failErr != nil {
			return fmt.Errorf("record trial check failure: %w", failErr)
		}
		return nil
	}
	if err := h.ledger.CompleteIntent(ctx, intent.Key, msgID); err != nil {
		return fmt.Errorf("complete trial check: %w", err)
	}
	return nil
}

func (h *ClerkHandler) userDeleted(ctx context.Context, ev ClerkEvent) error {
	err := h.users.MarkUserDeleted(ctx, ev.UserID, h.clock.Now())
	if errors.Is(err, scraping.ErrNotFound) {
		h.logger.Info("deleted user was never stored", zap.String("user_id", ev.UserID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark user deleted: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
