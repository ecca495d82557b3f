// Package api provides the HTTP handlers for the approval service.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/signoffhq/signoff/approval"
	"github.com/signoffhq/signoff/config"
	"github.com/signoffhq/signoff/engine"
	"github.com/signoffhq/signoff/events"
	"github.com/signoffhq/signoff/store"
)

// Handler handles HTTP requests.
type Handler struct {
	store        store.Store
	manager      *approval.Manager
	orchestrator *engine.Orchestrator
	recorder     *events.Recorder
	config       *config.Config
}

// NewHandler creates a new handler.
func NewHandler(st store.Store, manager *approval.Manager, orchestrator *engine.Orchestrator, recorder *events.Recorder, cfg *config.Config) *Handler {
	return &Handler{
		store:        st,
		manager:      manager,
		orchestrator: orchestrator,
		recorder:     recorder,
		config:       cfg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Chat
	e.POST("/v1/conversations/:conversation_id/messages", h.PostMessage)
	e.GET("/v1/conversations/:conversation_id/messages", h.GetMessages)
	e.GET("/v1/conversations/:conversation_id/events", h.GetEvents)

	// Proposal control
	e.GET("/v1/conversations/:conversation_id/proposals", h.ListProposals)
	e.GET("/v1/proposals/:proposal_id", h.GetProposal)
	e.POST("/v1/proposals/:proposal_id/approve", h.ApproveProposal)
	e.POST("/v1/proposals/:proposal_id/decline", h.DeclineProposal)
	e.POST("/v1/proposals/:proposal_id/retry", h.RetryProposal)
	e.POST("/v1/proposals/approve-batch", h.ApproveBatch)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
