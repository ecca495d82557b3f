package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/signoffhq/signoff/domain"
)

// ApproveProposal approves and executes a proposal as one operation.
// POST /v1/proposals/:proposal_id/approve
func (h *Handler) ApproveProposal(c echo.Context) error {
	p, err := h.manager.Approve(c.Request().Context(), c.Param("proposal_id"))
	return writeProposal(c, p, err)
}

// DeclineProposal declines a pending proposal. Terminal.
// POST /v1/proposals/:proposal_id/decline
func (h *Handler) DeclineProposal(c echo.Context) error {
	p, err := h.manager.Decline(c.Request().Context(), c.Param("proposal_id"))
	return writeProposal(c, p, err)
}

// RetryProposal re-executes a failed proposal with its original arguments.
// POST /v1/proposals/:proposal_id/retry
func (h *Handler) RetryProposal(c echo.Context) error {
	p, err := h.manager.Retry(c.Request().Context(), c.Param("proposal_id"))
	return writeProposal(c, p, err)
}

// GetProposal returns the current record for a proposal id.
// GET /v1/proposals/:proposal_id
func (h *Handler) GetProposal(c echo.Context) error {
	p, err := h.manager.Get(c.Request().Context(), c.Param("proposal_id"))
	return writeProposal(c, p, err)
}

// ApproveBatch approves proposals strictly in the given order, halting on the
// first failure and leaving later proposals untouched.
// POST /v1/proposals/approve-batch
func (h *Handler) ApproveBatch(c echo.Context) error {
	var req domain.ApproveBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.ProposalIDs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "proposal_ids is required"})
	}

	results, err := h.manager.ApproveAll(c.Request().Context(), req.ProposalIDs)
	resp := domain.ApproveBatchResponse{Proposals: results}
	if err != nil {
		if errors.Is(err, domain.ErrProposalNotFound) && len(results) == 0 {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		resp.Halted = true
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// ListProposals returns all proposals for a conversation, oldest first.
// GET /v1/conversations/:conversation_id/proposals
func (h *Handler) ListProposals(c echo.Context) error {
	proposals, err := h.manager.List(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list proposals"})
	}
	if proposals == nil {
		proposals = []domain.ActionProposal{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"proposals": proposals})
}
