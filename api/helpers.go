package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/signoffhq/signoff/domain"
)

// writeProposal maps a manager result onto an HTTP response: the full record
// on success, 404 for unknown ids, 409 for rejected transitions.
func writeProposal(c echo.Context, p *domain.ActionProposal, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, p)
	}
	if errors.Is(err, domain.ErrProposalNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	var invalid *domain.InvalidTransitionError
	if errors.As(err, &invalid) {
		return c.JSON(http.StatusConflict, map[string]string{"error": invalid.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
