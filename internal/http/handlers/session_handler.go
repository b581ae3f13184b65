// Session HTTP handlers.
//
// This file exposes the endpoints that act on the caller's open conversation:
//   - GET  /session            (state view)
//   - POST /session/new        (start a fresh conversation)
//   - POST /session/load       (open a stored conversation)
//   - POST /session/messages   (send a message, wait for the reply)
//   - PUT  /session/model      (select the model)
//   - GET  /models             (list selectable models)
//
// Idempotency: when the client supplies an Idempotency-Key and a send with
// the same key already completed for this connection and conversation, the
// stored bot turn is returned with `Idempotency-Replayed: true` and the model
// is not called again.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cot-chat/internal/domain"
	"github.com/tbourn/cot-chat/internal/http/middleware"
	"github.com/tbourn/cot-chat/internal/repo"
	"github.com/tbourn/cot-chat/internal/services"
)

// SendMessageRequest is the JSON payload of a send.
type SendMessageRequest struct {
	// Content is the user prompt.
	Content string `json:"content" example:"What is 2+2?"`
}

// SendMessageResponse holds the bot turn and the session after it.
type SendMessageResponse struct {
	Reply   *domain.Message      `json:"reply"`
	Session services.SessionView `json:"session"`
}

// LoadSessionRequest names the conversation to open.
type LoadSessionRequest struct {
	SessionID string `json:"session_id" binding:"required" example:"0b6f1f7e-2a8e-4b65-9d1e-5f1a2b3c4d5e"`
}

// SelectModelRequest names the model for later sends.
type SelectModelRequest struct {
	Model string `json:"model" binding:"required" example:"cot-base"`
}

// ModelsResponse lists selectable models.
type ModelsResponse struct {
	Models  []string `json:"models"`
	Default string   `json:"default"`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF and collapses blank-line runs.
// Trimming and Unicode normalization happen in the service.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return nlCollapseRE.ReplaceAllString(s, "\n\n")
}

// GetSession godoc
// @ID          getSession
// @Summary     Current session state
// @Description Returns the open conversation, login status, selected model and send state. A bot turn returned by the last send is flagged streaming on the first read only.
// @Tags        Session
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.SessionView
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	ok(c, http.StatusOK, h.session(c).View())
}

// NewChat godoc
// @ID          newChat
// @Summary     Start a new conversation
// @Description Gives the connection a fresh conversation id with no turns. Allowed at any time; a reply still in flight is stored under the previous conversation.
// @Tags        Session
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.SessionView
// @Failure     401  {object}  handlers.ErrorResponse  "Missing token or login required"
// @Router      /session/new [post]
func (h *Handlers) NewChat(c *gin.Context) {
	ok(c, http.StatusOK, h.Conversations.StartNewSession(h.session(c)))
}

// LoadSession godoc
// @ID          loadSession
// @Summary     Open a stored conversation
// @Description Replaces the open conversation with the stored history of session_id. Unknown ids open an empty conversation under that id.
// @Tags        Session
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.LoadSessionRequest  true  "Conversation to open"
// @Success     200  {object}  services.SessionView
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /session/load [post]
func (h *Handlers) LoadSession(c *gin.Context) {
	var req LoadSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id required")
		return
	}
	view, err := h.Conversations.LoadSession(c.Request.Context(), h.session(c), req.SessionID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSessionID) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid session_id")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load conversation", err)
		return
	}
	ok(c, http.StatusOK, view)
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message and get the reply
// @Description Stores the user turn, asks the model and stores the bot turn. Model failures are not errors: their sentinel text becomes the reply.
// @Description Supports Idempotency-Key for safe retries.
// @Tags        Session
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendMessageRequest  true  "User message"
// @Success     200  {object}  handlers.SendMessageResponse
// @Header      200  {string}  Idempotency-Replayed  "true when the stored reply was replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or oversized prompt"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing token or login required"
// @Failure     409  {object}  handlers.ErrorResponse  "A reply is still pending"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /session/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	sess := h.session(c)
	sessionID := sess.ID()
	idemKey, _ := middleware.GetIdempotencyKey(c)

	if id, replay := middleware.ReplayOf(c); replay && h.DB != nil {
		if prev, err := repo.GetMessage(ctx, h.DB, id); err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, SendMessageResponse{Reply: prev, Session: sess.View()})
			return
		}
	}

	view, reply, err := h.Conversations.Send(ctx, sess, sanitizeContent(req.Content))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyPrompt):
			fail(c, http.StatusBadRequest, ErrCodeEmptyPrompt, "Please enter a message.")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodePromptTooBig, "Your message is too long.")
		case errors.Is(err, services.ErrSendInFlight):
			fail(c, http.StatusConflict, ErrCodeSendInFlight, "Please wait for the current reply.")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not send message", err)
		}
		return
	}

	if idemKey != "" && h.DB != nil {
		if _, err := repo.CreateIdempotency(ctx, h.DB, sess.ConnID(), sessionID, idemKey, reply.ID, http.StatusOK, h.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusOK, SendMessageResponse{Reply: reply, Session: view})
}

// LookupIdempotency finds the bot turn stored for a retried send. It has the
// shape of middleware.IdempotencyLookup.
func (h *Handlers) LookupIdempotency(ctx context.Context, connID, sessionID, key string, now time.Time) (uint64, bool, error) {
	if h.DB == nil {
		return 0, false, nil
	}
	rec, err := repo.GetIdempotency(ctx, h.DB, connID, sessionID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rec.MessageID, true, nil
}

// SelectModel godoc
// @ID          selectModel
// @Summary     Select the model
// @Description Sets the model used by later sends on this connection.
// @Tags        Session
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.SelectModelRequest  true  "Model name"
// @Success     200  {object}  services.SessionView
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown model"
// @Router      /session/model [put]
func (h *Handlers) SelectModel(c *gin.Context) {
	var req SelectModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "model required")
		return
	}
	view, err := h.Conversations.SelectModel(h.session(c), req.Model)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeUnknownModel, fmt.Sprintf("unknown model %q", req.Model))
		return
	}
	ok(c, http.StatusOK, view)
}

// ListModels godoc
// @ID          listModels
// @Summary     List selectable models
// @Tags        Session
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ModelsResponse
// @Router      /models [get]
func (h *Handlers) ListModels(c *gin.Context) {
	models := h.Models
	if models == nil {
		models = []string{}
	}
	ok(c, http.StatusOK, ModelsResponse{Models: models, Default: h.DefaultModel})
}
