// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Feedback
// model.
//
// Error semantics:
//   - Duplicate feedback (same message_id, email) is returned as ErrDuplicate.
//   - On other DB errors (connectivity, constraints, etc.), the raw gorm
//     error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/cot-chat/internal/domain"
)

// CreateFeedback inserts a feedback row for the given bot turn and rater.
//
// Value must be -1 (negative) or 1 (positive). Validation is expected to be
// enforced at higher layers and by the DB check constraint.
func CreateFeedback(ctx context.Context, db *gorm.DB, messageID uint64, email string, value int) (*domain.Feedback, error) {
	fb := &domain.Feedback{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Email:     normalizeEmail(email),
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fb).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return fb, nil
}
