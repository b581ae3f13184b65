// Connection and account HTTP handlers.
//
// This file exposes:
//   - POST /connect        (open a connection, get its token)
//   - POST /auth/signup    (create an account)
//   - POST /auth/login     (log the connection in, re-issue the token)
//   - POST /auth/logout    (log the connection out, re-issue the token)
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/cot-chat/internal/http/middleware"
	"github.com/tbourn/cot-chat/internal/services"
)

// TokenResponse carries a connection token and the session it unlocks.
type TokenResponse struct {
	Token     string               `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	ExpiresAt time.Time            `json:"expires_at"`
	Session   services.SessionView `json:"session"`
}

// SignupRequest is the JSON payload for account creation.
type SignupRequest struct {
	Email     string `json:"email" binding:"required,email,max=320" example:"ada@example.com"`
	Password  string `json:"password" binding:"required" example:"correct horse battery staple"`
	FirstName string `json:"first_name" binding:"required" example:"Ada"`
	LastName  string `json:"last_name" binding:"required" example:"Lovelace"`
}

// SignupResponse reports whether the account was created.
type SignupResponse struct {
	Created bool `json:"created" example:"true"`
}

// LoginRequest is the JSON payload for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"ada@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery staple"`
}

func (h *Handlers) writeToken(c *gin.Context, status int, sess *services.Session) {
	tok, exp, err := h.Auth.IssueToken(sess.ConnID(), sess.Email())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not issue token", err)
		return
	}
	h.Sessions.RememberLogin(sess.ConnID(), sess.Email(), exp)
	ok(c, status, TokenResponse{Token: tok, ExpiresAt: exp, Session: sess.View()})
}

// Connect godoc
// @ID          connect
// @Summary     Open a connection
// @Description Creates an anonymous session with a fresh conversation and returns the bearer token that identifies it.
// @Tags        Auth
// @Produce     json
// @Success     201  {object}  handlers.TokenResponse
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /connect [post]
func (h *Handlers) Connect(c *gin.Context) {
	h.writeToken(c, http.StatusCreated, h.Sessions.Open())
}

// Signup godoc
// @ID          signup
// @Summary     Create an account
// @Description Registers an email/password account. It does not log the connection in.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.SignupRequest  true  "Account details"
// @Success     201  {object}  handlers.SignupResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     409  {object}  handlers.ErrorResponse  "Email already registered"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/signup [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email, password, first_name and last_name are required")
		return
	}
	created, err := h.Auth.Signup(c.Request.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	switch {
	case errors.Is(err, services.ErrInvalidSignup):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid signup data")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "signup failed", err)
	case !created:
		fail(c, http.StatusConflict, ErrCodeConflict, "email already registered")
	default:
		ok(c, http.StatusCreated, SignupResponse{Created: true})
	}
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Logs the connection in and returns a token that carries the email.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  handlers.TokenResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     401  {object}  handlers.ErrorResponse  "Wrong email or password"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password are required")
		return
	}
	sess := h.session(c)
	authed, err := h.Auth.Login(c.Request.Context(), sess, req.Email, req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "login failed", err)
		return
	}
	if !authed {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid email or password")
		return
	}
	middleware.LoggerFrom(c).Info().Str("conn_id", sess.ConnID()).Msg("login")
	h.writeToken(c, http.StatusOK, sess)
}

// Logout godoc
// @ID          logout
// @Summary     Log out
// @Description Clears the login of the connection. The open conversation is kept.
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.TokenResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	sess := h.session(c)
	h.Auth.Logout(sess)
	h.writeToken(c, http.StatusOK, sess)
}
