// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ConversationTitle model, which backs the conversation sidebar.
//
// Titles follow "first write wins": RecordTitleIfAbsent never overwrites an
// existing row, so repeated calls for the same session are harmless.
//
// Functions:
//
//   - RecordTitleIfAbsent(ctx, db, sessionID, title) -> (bool, error)
//     Inserts a title unless the session already has one.
//
//   - GetTitle(ctx, db, sessionID) -> *domain.ConversationTitle, error
//     Fetches the title of one session, or ErrNotFound.
//
//   - CountConversations(ctx, db) -> (int64, error)
//     Returns the number of titled conversations.
//
//   - ListConversations(ctx, db, offset, limit) -> []domain.ConversationTitle, error
//     Returns a page of titled conversations, newest first.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/cot-chat/internal/domain"
)

// RecordTitleIfAbsent inserts a ConversationTitle row for sessionID unless one
// already exists. It reports whether a row was written.
func RecordTitleIfAbsent(ctx context.Context, db *gorm.DB, sessionID, title string) (bool, error) {
	t := &domain.ConversationTitle{
		SessionID: sessionID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
		Create(t)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetTitle fetches the title row of sessionID. If it does not exist, it
// returns ErrNotFound.
func GetTitle(ctx context.Context, db *gorm.DB, sessionID string) (*domain.ConversationTitle, error) {
	var t domain.ConversationTitle
	if err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CountConversations returns the total number of titled conversations.
func CountConversations(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.ConversationTitle{}).Count(&total).Error
	return total, err
}

// ListConversations returns a page of titled conversations ordered by
// creation time descending (most recent first). Ties fall back to session id
// so pages are stable.
func ListConversations(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ConversationTitle, error) {
	out := []domain.ConversationTitle{}
	q := db.WithContext(ctx).Order("created_at DESC, session_id ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
