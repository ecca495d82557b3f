package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/signoffhq/signoff/domain"
	"github.com/signoffhq/signoff/llm"
)

const systemPrompt = "You are a helpful assistant for an issue tracker. " +
	"Use the available tools to look things up. Side-effecting tools are " +
	"routed to the user for approval; when a tool result says an action is " +
	"pending approval, tell the user what was proposed and that it awaits " +
	"their decision. Never claim a pending action has already happened."

// PostMessage appends a user message and streams the resulting turn as SSE.
// POST /v1/conversations/:conversation_id/messages
func (h *Handler) PostMessage(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	ctx := c.Request().Context()

	var req domain.PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	if _, err := h.store.GetOrCreateConversation(ctx, conversationID, req.UserID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open conversation"})
	}

	history, err := h.store.GetMessages(ctx, conversationID, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load history"})
	}

	userMsg := &domain.ChatMessage{
		MessageID:      "msg_" + uuid.New().String()[:8],
		ConversationID: conversationID,
		Role:           "user",
		Content:        req.Content,
		CreatedAt:      time.Now(),
	}
	if err := h.store.CreateMessage(ctx, userMsg); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to persist message"})
	}

	h.recorder.Record(ctx, conversationID, domain.EventTypeTurnStarted, domain.TurnPayload{MessageID: userMsg.MessageID})

	msgs := make([]llm.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, llm.ChatMessage{Role: "system", Content: systemPrompt})
	for _, m := range history {
		msgs = append(msgs, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.ChatMessage{Role: "user", Content: req.Content})

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported")
	}

	sink := func(ev domain.ChatStreamEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	finalText, turnErr := h.orchestrator.StreamTurn(ctx, conversationID, userMsg.MessageID, msgs, sink)

	// Persist whatever assistant text the turn produced even when the
	// transport failed mid-stream; proposals already created are not revoked.
	if finalText != "" {
		assistantMsg := &domain.ChatMessage{
			MessageID:      "msg_" + uuid.New().String()[:8],
			ConversationID: conversationID,
			Role:           "assistant",
			Content:        finalText,
			CreatedAt:      time.Now(),
		}
		if err := h.store.CreateMessage(ctx, assistantMsg); err != nil {
			log.Printf("WARN: failed to persist assistant message: %v", err)
		}
	}

	h.recorder.Record(ctx, conversationID, domain.EventTypeTurnDone, domain.TurnPayload{MessageID: userMsg.MessageID})

	if turnErr != nil {
		log.Printf("ERROR: turn failed for conversation %s: %v", conversationID, turnErr)
	}
	return nil
}
