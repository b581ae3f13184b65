// Package services – AuthService
//
// This file implements email/password accounts and the signed connection
// tokens that bind HTTP requests to a Session. Passwords are stored as
// bcrypt hashes only.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/cot-chat/internal/repo"
)

// validate is shared; validator caches struct metadata and is safe for
// concurrent use.
var validate = validator.New()

// tokenIssuer is the "iss" claim of connection tokens.
const tokenIssuer = "cot-chat"

// Claims are carried by a connection token.
type Claims struct {
	ConnID string `json:"cid"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthService implements signup, login and connection tokens.
type AuthService struct {
	DB     *gorm.DB
	Secret []byte
	TTL    time.Duration

	// Cost is the bcrypt cost. Zero means bcrypt.DefaultCost.
	Cost int
	// Now is overridable in tests.
	Now func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, secret string, ttl time.Duration) *AuthService {
	return &AuthService{DB: db, Secret: []byte(secret), TTL: ttl, Now: time.Now}
}

// Signup creates an account. It returns (false, nil) when the email is
// already registered; that is not an error.
func (a *AuthService) Signup(ctx context.Context, email, password, firstName, lastName string) (bool, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Signup")
	defer span.End()

	email = strings.TrimSpace(email)
	if err := validate.Var(email, "required,email,max=320"); err != nil {
		return false, ErrInvalidSignup
	}
	if password == "" || len(password) > 72 {
		return false, ErrInvalidSignup
	}
	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" {
		return false, ErrInvalidSignup
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost())
	if err != nil {
		return false, err
	}
	if _, err := repo.CreateUser(ctx, a.DB, email, string(hash), firstName, lastName); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return false, nil
		}
		span.RecordError(err)
		return false, err
	}
	return true, nil
}

// Authenticate reports whether password matches the stored hash for email.
// An unknown email is (false, nil).
func (a *AuthService) Authenticate(ctx context.Context, email, password string) (bool, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Authenticate")
	defer span.End()

	u, err := repo.FindUserByEmail(ctx, a.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		span.RecordError(err)
		return false, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

// Login authenticates and, on success, marks the session as logged in.
func (a *AuthService) Login(ctx context.Context, sess *Session, email, password string) (bool, error) {
	ok, err := a.Authenticate(ctx, email, password)
	if err != nil || !ok {
		return false, err
	}
	sess.mu.Lock()
	sess.loggedIn = true
	sess.email = strings.ToLower(strings.TrimSpace(email))
	sess.mu.Unlock()
	return true, nil
}

// Logout clears the login of the session. The active conversation stays.
func (a *AuthService) Logout(sess *Session) {
	sess.mu.Lock()
	sess.loggedIn = false
	sess.email = ""
	sess.mu.Unlock()
}

// IssueToken signs a connection token (HS256) for connID. email is empty
// for anonymous connections.
func (a *AuthService) IssueToken(connID, email string) (string, time.Time, error) {
	now := a.now()
	exp := now.Add(a.TTL)
	claims := Claims{
		ConnID: connID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   connID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// ParseToken verifies a connection token and returns its claims. Any
// verification failure is reported as ErrInvalidToken.
func (a *AuthService) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return a.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tok.Valid || claims.ConnID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (a *AuthService) cost() int {
	if a.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return a.Cost
}

func (a *AuthService) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
