package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/stagehand/pkg/domain/interfaces"
	"github.com/m-mizutani/stagehand/pkg/domain/model"
)

// WebhookHandler turns GitHub push events into pipeline runs
type WebhookHandler struct {
	secret     string
	pipelineUC interfaces.PipelineUseCase
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(secret string, pipelineUC interfaces.PipelineUseCase) *WebhookHandler {
	return &WebhookHandler{
		secret:     secret,
		pipelineUC: pipelineUC,
	}
}

// Handle processes webhook requests
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	// Read payload
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read request body", "error", err)
		writeError(w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Verify signature
	signature := r.Header.Get("X-Hub-Signature-256")
	if !h.verifySignature(body, signature) {
		logger.Warn("Invalid webhook signature")
		writeError(w, goerr.New("invalid signature"), http.StatusUnauthorized)
		return
	}

	// Parse event using GitHub SDK
	eventType := r.Header.Get("X-GitHub-Event")
	payload, err := github.ParseWebHook(eventType, body)
	if err != nil {
		logger.Error("Failed to parse webhook payload", "error", err)
		writeError(w, goerr.Wrap(err, "invalid JSON payload"), http.StatusBadRequest)
		return
	}

	// Create webhook event
	event := &model.WebhookEvent{
		ID:         r.Header.Get("X-GitHub-Delivery"),
		Type:       model.WebhookEventType(eventType),
		ReceivedAt: time.Now(),
		RawPayload: body,
	}

	switch e := payload.(type) {
	case *github.PushEvent:
		event.Repository = e.GetRepo().GetFullName()
		event.Ref = strings.TrimPrefix(e.GetRef(), "refs/heads/")
		event.CommitSHA = e.GetAfter()
		event.Sender = e.GetSender().GetLogin()
	case *github.PingEvent:
		event.Type = model.EventTypePing
	default:
		event.Type = model.EventTypeUnknown
	}

	logger.Info("Received webhook event",
		"id", event.ID,
		"type", event.Type,
		"repository", event.Repository,
		"ref", event.Ref,
		"sender", event.Sender,
	)

	if !event.IsSupportedEvent() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	runID, err := h.pipelineUC.Trigger(ctx, &model.TriggerInfo{
		Source:    event.Repository,
		Ref:       event.Ref,
		CommitSHA: event.CommitSHA,
		Actor:     event.Sender,
		Metadata:  map[string]string{"delivery_id": event.ID},
	})
	if err != nil {
		logger.Error("Failed to trigger pipeline from webhook", "error", err)
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "triggered",
		"run_id": runID,
	})
}

// verifySignature verifies the webhook signature
func (h *WebhookHandler) verifySignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}

	// Remove "sha256=" prefix if present
	signature = strings.TrimPrefix(signature, "sha256=")

	// Calculate HMAC-SHA256
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(payload)
	expectedMAC := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expectedMAC))
}
