package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/signoffhq/signoff/domain"
)

// GetMessages returns the messages of a conversation in chronological order.
// GET /v1/conversations/:conversation_id/messages
func (h *Handler) GetMessages(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	messages, err := h.store.GetMessages(c.Request().Context(), c.Param("conversation_id"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get messages"})
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": messages})
}

// GetEvents returns trace events for a conversation.
// GET /v1/conversations/:conversation_id/events?after_ts=&types=&limit=
func (h *Handler) GetEvents(c echo.Context) error {
	afterTs, _ := strconv.ParseInt(c.QueryParam("after_ts"), 10, 64)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	var types []string
	if t := c.QueryParam("types"); t != "" {
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				types = append(types, part)
			}
		}
	}

	events, err := h.store.GetEvents(c.Request().Context(), c.Param("conversation_id"), afterTs, types, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get events"})
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events})
}
