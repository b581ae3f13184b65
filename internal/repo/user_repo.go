// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// Only password hashes reach this layer; hashing and comparison live in the
// services package.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/cot-chat/internal/domain"
)

// ErrDuplicate indicates that a row violating a unique constraint already
// exists (a taken email, a reused idempotency key).
var ErrDuplicate = errors.New("duplicate")

// CreateUser inserts a user. Emails are stored lower-cased and trimmed. It
// returns ErrDuplicate when the email is already registered.
func CreateUser(ctx context.Context, db *gorm.DB, email, passwordHash, firstName, lastName string) (*domain.User, error) {
	u := &domain.User{
		Email:        normalizeEmail(email),
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// FindUserByEmail fetches a user by email (case-insensitive). If no user
// matches, it returns ErrNotFound.
func FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CountUsersByEmail returns how many rows hold email. Used by tests and the
// maintenance CLI to check uniqueness.
func CountUsersByEmail(ctx context.Context, db *gorm.DB, email string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("email = ?", normalizeEmail(email)).Count(&n).Error
	return n, err
}

// ResetUsers drops the users table and recreates it empty.
func ResetUsers(ctx context.Context, db *gorm.DB) error {
	m := db.WithContext(ctx).Migrator()
	if err := m.DropTable(&domain.User{}); err != nil {
		return err
	}
	return m.CreateTable(&domain.User{})
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isUniqueViolation detects unique-constraint failures across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
