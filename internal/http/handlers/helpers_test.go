package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/cot-chat/internal/domain"
	"github.com/tbourn/cot-chat/internal/http/middleware"
	"github.com/tbourn/cot-chat/internal/inference"
	"github.com/tbourn/cot-chat/internal/repo"
	"github.com/tbourn/cot-chat/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:h_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// env is a full handler stack over an in-memory database. The gateway
// answers "echo: <text>" and counts its calls.
type env struct {
	t     *testing.T
	db    *gorm.DB
	store *services.SessionStore
	auth  *services.AuthService
	conv  *services.ConversationService
	calls atomic.Int32
	h     *Handlers
	r     *gin.Engine
}

func newEnv(t *testing.T, tweak ...func(*env, *Deps)) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{t: t, db: newTestDB(t)}

	gw := inference.GatewayFunc(func(_ context.Context, text, _ string) inference.Result {
		e.calls.Add(1)
		return inference.OK("echo: " + text)
	})
	models := []string{"cot-base", "cot-large"}
	e.conv = services.NewConversationService(e.db, gw, models)
	e.conv.MaxPromptRunes = 100
	e.store = services.NewSessionStore(time.Hour, "cot-base")
	e.auth = services.NewAuthService(e.db, "0123456789abcdef0123456789abcdef", time.Hour)
	e.auth.Cost = bcrypt.MinCost

	d := Deps{
		Conversations: e.conv,
		Auth:          e.auth,
		Feedback:      &services.FeedbackService{DB: e.db},
		Sessions:      e.store,
		DB:            e.db,
		Models:        models,
		DefaultModel:  "cot-base",
	}
	for _, f := range tweak {
		f(e, &d)
	}
	e.h = New(d)
	e.r = e.router()
	return e
}

func (e *env) router() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/connect", e.h.Connect)

	parse := func(tok string) (string, string, error) {
		cl, err := e.auth.ParseToken(tok)
		if err != nil {
			return "", "", err
		}
		return cl.ConnID, cl.Email, nil
	}
	api := r.Group("", middleware.ConnectionAuth(parse))
	api.POST("/auth/signup", e.h.Signup)
	api.POST("/auth/login", e.h.Login)
	api.POST("/auth/logout", e.h.Logout)
	api.GET("/models", e.h.ListModels)
	api.GET("/conversations", e.h.ListConversations)
	api.GET("/conversations/:id/messages", e.h.ConversationMessages)
	api.POST("/messages/:id/feedback", e.h.LeaveFeedback)

	chat := api.Group("/session", e.h.RequireLoginMiddleware())
	chat.GET("", e.h.GetSession)
	chat.POST("/new", e.h.NewChat)
	chat.POST("/load", e.h.LoadSession)
	chat.PUT("/model", e.h.SelectModel)
	chat.POST("/messages",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: e.h.ActiveSessionID}, e.h.LookupIdempotency),
		e.h.SendMessage)
	return r
}

func (e *env) do(method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// connect opens a connection and returns its token.
func (e *env) connect() string {
	e.t.Helper()
	w := e.do(http.MethodPost, "/connect", "", "")
	if w.Code != http.StatusCreated {
		e.t.Fatalf("connect: %d %s", w.Code, w.Body.String())
	}
	var tr TokenResponse
	decode(e.t, w, &tr)
	return tr.Token
}

// signupAndLogin registers email and logs tok's connection in, returning
// the re-issued token.
func (e *env) signupAndLogin(tok, email string) string {
	e.t.Helper()
	w := e.do(http.MethodPost, "/auth/signup", tok,
		fmt.Sprintf(`{"email":%q,"password":"pw","first_name":"A","last_name":"B"}`, email))
	if w.Code != http.StatusCreated {
		e.t.Fatalf("signup: %d %s", w.Code, w.Body.String())
	}
	w = e.do(http.MethodPost, "/auth/login", tok, fmt.Sprintf(`{"email":%q,"password":"pw"}`, email))
	if w.Code != http.StatusOK {
		e.t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var tr TokenResponse
	decode(e.t, w, &tr)
	return tr.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	decode(t, w, &er)
	return er.Code
}

// stubConversations fails every call with err.
type stubConversations struct{ err error }

func (s stubConversations) StartNewSession(sess *services.Session) services.SessionView {
	return sess.View()
}
func (s stubConversations) LoadSession(context.Context, *services.Session, string) (services.SessionView, error) {
	return services.SessionView{}, s.err
}
func (s stubConversations) Send(context.Context, *services.Session, string) (services.SessionView, *domain.Message, error) {
	return services.SessionView{}, nil, s.err
}
func (s stubConversations) SelectModel(*services.Session, string) (services.SessionView, error) {
	return services.SessionView{}, s.err
}
func (s stubConversations) ListConversations(context.Context, int, int) ([]domain.ConversationTitle, int64, error) {
	return nil, 0, s.err
}
func (s stubConversations) History(context.Context, string) ([]domain.Message, error) {
	return nil, s.err
}
