// Feedback HTTP handler.
//
// This file exposes:
//   - POST /messages/{id}/feedback  (rate a bot turn)
//
// Only logged-in connections can rate, and each account rates a turn once.
// Values are -1 (negative) or +1 (positive).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cot-chat/internal/services"
	"github.com/tbourn/cot-chat/internal/utils"
)

// LeaveFeedbackRequest is the JSON payload for rating a bot turn.
type LeaveFeedbackRequest struct {
	// Value is +1 (positive) or -1 (negative).
	Value int `json:"value" binding:"required,oneof=-1 1" example:"1"`
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Rate a bot reply
// @Description Records +1 or -1 for a bot turn on behalf of the logged-in account.
// @Tags        Feedback
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  int  true  "Message id"  example(42)
// @Param       body  body  handlers.LeaveFeedbackRequest  true  "Feedback payload"
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload"
// @Failure     401  {object}  handlers.ErrorResponse  "Login required"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a bot reply"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already rated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /messages/{id}/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	messageID, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a positive integer")
		return
	}
	var req LeaveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1")
		return
	}

	err := h.Feedback.Leave(c.Request.Context(), h.session(c).Email(), messageID, req.Value)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrLoginRequired):
		fail(c, http.StatusUnauthorized, ErrCodeLoginNeeded, "Please log in to leave feedback.")
	case errors.Is(err, services.ErrInvalidFeedback):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1")
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
	case errors.Is(err, services.ErrForbiddenFeedback):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only bot replies can be rated")
	case errors.Is(err, services.ErrDuplicateFeedback):
		fail(c, http.StatusConflict, ErrCodeConflict, "feedback already exists")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not store feedback", err)
	}
}
