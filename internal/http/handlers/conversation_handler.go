// Conversation history HTTP handlers.
//
// This file exposes the read-only sidebar endpoints:
//   - GET /conversations                (titled conversations, paginated, ETag)
//   - GET /conversations/{id}/messages  (stored turns of one conversation, ETag)
//
// Both compute a weak ETag from cheap aggregate queries before loading rows
// and answer 304 when If-None-Match matches.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cot-chat/internal/domain"
	"github.com/tbourn/cot-chat/internal/repo"
	"github.com/tbourn/cot-chat/internal/services"
)

// ListConversationsResponse wraps a page of conversation titles.
type ListConversationsResponse struct {
	Conversations []domain.ConversationTitle `json:"conversations"`
	Pagination    Pagination                 `json:"pagination"`
}

// ConversationMessagesResponse lists the stored turns of a conversation.
type ConversationMessagesResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []domain.Message `json:"messages"`
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Returns titled conversations, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListConversationsResponse
// @Header      200  {string}  ETag  "Weak ETag for the page"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	if h.DB != nil {
		if count, latest, err := repo.ConversationsStats(ctx, h.DB); err == nil {
			var ts int64
			if latest != nil {
				ts = latest.UnixNano()
			}
			if notModified(c, fmt.Sprintf(`W/"convs:%d:%d:%d:%d"`, count, ts, page, pageSize)) {
				return
			}
		}
	}

	items, total, err := h.Conversations.ListConversations(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list conversations", err)
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{
		Conversations: items,
		Pagination:    newPagination(page, pageSize, total),
	})
}

// ConversationMessages godoc
// @ID          conversationMessages
// @Summary     Stored turns of a conversation
// @Description Returns the history of any conversation without opening it. Unknown ids return an empty list.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Conversation id"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ConversationMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for the history"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ConversationMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if h.DB != nil {
		if count, lastID, err := repo.HistoryStats(ctx, h.DB, id); err == nil {
			if notModified(c, fmt.Sprintf(`W/"hist:%s:%d:%d"`, id, count, lastID)) {
				return
			}
		}
	}

	msgs, err := h.Conversations.History(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSessionID) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid conversation id")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load history", err)
		return
	}
	ok(c, http.StatusOK, ConversationMessagesResponse{SessionID: id, Messages: msgs})
}
