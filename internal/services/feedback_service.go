// Package services – FeedbackService
//
// This file implements the FeedbackService, which governs how logged-in
// users rate bot replies (-1 or +1). It enforces the business rules (message
// existence, bot-only restriction, one rating per user and message) and
// persists feedback inside a transaction. Service-level errors are returned
// for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/cot-chat/internal/domain"
	"github.com/tbourn/cot-chat/internal/repo"
)

// FeedbackService implements the use-cases around message feedback.
type FeedbackService struct {
	// DB is the database handle used for all feedback operations.
	DB *gorm.DB
}

// Leave records a feedback value for messageID on behalf of email.
//
// Semantics and validation:
//   - email must be non-empty (the caller is logged in); otherwise ErrLoginRequired.
//   - value must be exactly -1 or 1; otherwise ErrInvalidFeedback.
//   - messageID must exist; otherwise ErrMessageNotFound.
//   - Only bot turns can be rated; user turns yield ErrForbiddenFeedback.
//   - A second rating of the same turn by the same email yields ErrDuplicateFeedback.
func (s *FeedbackService) Leave(ctx context.Context, email string, messageID uint64, value int) error {
	if strings.TrimSpace(email) == "" {
		return ErrLoginRequired
	}
	if value != -1 && value != 1 {
		return ErrInvalidFeedback
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(ctx, tx, messageID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		if msg.Role != domain.RoleBot {
			return ErrForbiddenFeedback
		}
		if _, err := repo.CreateFeedback(ctx, tx, messageID, email, value); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateFeedback
			}
			return err
		}
		return nil
	})
}
