// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements connection authentication. Every chat endpoint
// expects "Authorization: Bearer <token>" where the token was issued by
// POST /connect (or re-issued at login/logout). The middleware verifies it
// and stashes the connection id and, when logged in, the email in the Gin
// context for handlers, the rate limiter and the access log.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by ConnectionAuth.
const (
	ctxKeyConnID = "connID"
	ctxKeyEmail  = "email"
	// ctxKeyUserID is read by the rate limiter and loggers.
	ctxKeyUserID = "userID"
)

// TokenParser verifies a bearer token and returns the connection id and the
// logged-in email ("" for anonymous connections).
type TokenParser func(token string) (connID, email string, err error)

// ConnectionAuth rejects requests without a valid connection token with a
// 401 JSON error and otherwise records the caller's identity.
func ConnectionAuth(parse TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, found := bearerToken(c.GetHeader("Authorization"))
		if !found {
			abortUnauthorized(c, "missing connection token")
			return
		}
		connID, email, err := parse(tok)
		if err != nil || connID == "" {
			abortUnauthorized(c, "invalid connection token")
			return
		}
		c.Set(ctxKeyConnID, connID)
		c.Set(ctxKeyUserID, connID)
		if email != "" {
			c.Set(ctxKeyEmail, email)
		}
		c.Next()
	}
}

// ConnID returns the authenticated connection id, or "".
func ConnID(c *gin.Context) string {
	return c.GetString(ctxKeyConnID)
}

// TokenEmail returns the email carried by the connection token, or "".
func TokenEmail(c *gin.Context) string {
	return c.GetString(ctxKeyEmail)
}

func bearerToken(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="cot-chat"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
