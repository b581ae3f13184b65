// Package handlers – wiring and shared helpers.
//
// Handlers are transport-thin: they resolve the caller's Session from the
// connection token, validate input, call the services and map service
// errors to ErrorResponse codes. Services are consumed through the narrow
// interfaces below so tests can substitute fakes.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/cot-chat/internal/domain"
	"github.com/tbourn/cot-chat/internal/http/middleware"
	"github.com/tbourn/cot-chat/internal/services"
	"github.com/tbourn/cot-chat/internal/utils"
)

// ConversationService drives the active conversation of a Session.
type ConversationService interface {
	StartNewSession(sess *services.Session) services.SessionView
	LoadSession(ctx context.Context, sess *services.Session, sessionID string) (services.SessionView, error)
	Send(ctx context.Context, sess *services.Session, text string) (services.SessionView, *domain.Message, error)
	SelectModel(sess *services.Session, model string) (services.SessionView, error)
	ListConversations(ctx context.Context, page, pageSize int) ([]domain.ConversationTitle, int64, error)
	History(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// AuthService covers accounts and connection tokens.
type AuthService interface {
	Signup(ctx context.Context, email, password, firstName, lastName string) (bool, error)
	Login(ctx context.Context, sess *services.Session, email, password string) (bool, error)
	Logout(sess *services.Session)
	IssueToken(connID, email string) (string, time.Time, error)
}

// FeedbackService records ratings of bot turns.
type FeedbackService interface {
	Leave(ctx context.Context, email string, messageID uint64, value int) error
}

// SessionStore hands out per-connection sessions.
type SessionStore interface {
	Open() *services.Session
	Resume(connID, email string) *services.Session
	RememberLogin(connID, email string, until time.Time)
}

// Deps are the collaborators of Handlers.
type Deps struct {
	Conversations ConversationService
	Auth          AuthService
	Feedback      FeedbackService
	Sessions      SessionStore

	// DB enables ETags and idempotent replays. Both are skipped when nil.
	DB *gorm.DB
	// IdempotencyTTL bounds how long a send can be replayed.
	IdempotencyTTL time.Duration
	// Models is reported by GET /models.
	Models []string
	// DefaultModel is the model new sessions start with.
	DefaultModel string
	// RequireLogin gates conversation endpoints behind login.
	RequireLogin bool
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	Deps
}

// New constructs Handlers. A zero IdempotencyTTL defaults to 24h.
func New(d Deps) *Handlers {
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{Deps: d}
}

// session returns the caller's Session, recreating it after idle eviction.
// Handlers share a request's session through the Gin context.
func (h *Handlers) session(c *gin.Context) *services.Session {
	if s, ok := c.Value("session").(*services.Session); ok {
		return s
	}
	s := h.Sessions.Resume(middleware.ConnID(c), middleware.TokenEmail(c))
	c.Set("session", s)
	return s
}

// ActiveSessionID is the idempotency scope of a send: the id of the
// conversation the caller currently has open.
func (h *Handlers) ActiveSessionID(c *gin.Context) string {
	return h.session(c).ID()
}

// RequireLoginMiddleware rejects anonymous connections with 401 when login is
// mandatory; otherwise it is a no-op.
func (h *Handlers) RequireLoginMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.RequireLogin && !h.session(c).LoggedIn() {
			fail(c, http.StatusUnauthorized, ErrCodeLoginNeeded, "Please log in to chat.")
			return
		}
		c.Next()
	}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads page and page_size, defaulting to 1 and 20 and
// capping page_size at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(utils.AtoiDefault(c.Query("page"), 1), 1)
	pageSize = min(max(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1), maxPageSize)
	return page, pageSize
}
