package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mapleroute/quotebot-backend/internal/clients/line"
	"github.com/mapleroute/quotebot-backend/internal/platform/apierr"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
	"github.com/mapleroute/quotebot-backend/internal/services"
)

// WebhookHandler receives LINE messaging events and routes text messages
// into the quote flow.
type WebhookHandler struct {
	log           *logger.Logger
	channelSecret string
	flow          services.QuoteFlow
}

func NewWebhookHandler(log *logger.Logger, channelSecret string, flow services.QuoteFlow) *WebhookHandler {
	return &WebhookHandler{
		log:           log.With("handler", "WebhookHandler"),
		channelSecret: channelSecret,
		flow:          flow,
	}
}

type webhookSource struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	RoomID  string `json:"roomId"`
}

type webhookMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

type webhookEvent struct {
	Type       string         `json:"type"`
	ReplyToken string         `json:"replyToken"`
	Source     webhookSource  `json:"source"`
	Message    webhookMessage `json:"message"`
}

type webhookPayload struct {
	Events []webhookEvent `json:"events"`
}

// POST /webhook
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "read_body", err)
		return
	}

	signature := c.GetHeader("X-Line-Signature")
	if !line.VerifySignature(h.channelSecret, body, signature) {
		h.log.Warn("webhook signature rejected")
		RespondAPIError(c, apierr.New(http.StatusUnauthorized, "bad_signature", fmt.Errorf("invalid signature")))
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		RespondAPIError(c, apierr.New(http.StatusBadRequest, "bad_payload", err))
		return
	}

	ctx := c.Request.Context()
	for _, ev := range payload.Events {
		if ev.Type != "message" || ev.Message.Type != "text" {
			continue
		}
		h.handleTextEvent(ctx, ev)
	}

	// LINE retries non-200 responses; event-level failures are logged, not
	// surfaced.
	RespondOK(c, gin.H{"status": "ok"})
}

func (h *WebhookHandler) handleTextEvent(ctx context.Context, ev webhookEvent) {
	userID := ev.Source.UserID
	if userID == "" {
		return
	}

	// Group and room chats both count as group contexts.
	groupID := ev.Source.GroupID
	if groupID == "" {
		groupID = ev.Source.RoomID
	}

	text := strings.TrimSpace(ev.Message.Text)
	if text == "" {
		return
	}

	if text == services.CmdStart {
		started, err := h.flow.HandleTrigger(ctx, userID, groupID)
		if err != nil {
			h.log.Error("quote trigger failed", "user_id", userID, "group_id", groupID, "error", err)
		} else if !started {
			h.log.Debug("quote trigger ignored", "user_id", userID, "group_id", groupID)
		}
		return
	}

	consumed, err := h.flow.HandleMessage(ctx, userID, groupID, text)
	if err != nil {
		h.log.Error("quote message failed", "user_id", userID, "group_id", groupID, "error", err)
		return
	}
	if !consumed {
		// Not in a session: stay silent so normal group chatter flows by.
		h.log.Debug("message outside quote session", "user_id", userID)
	}
}
