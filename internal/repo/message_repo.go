// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversation
// turns (the Message model).
//
// Every function issues a single statement. Rows are never updated; the only
// delete path is DeleteAllMessages, used by the maintenance CLI.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/cot-chat/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// RecordMessage inserts one turn for sessionID. A zero ts is replaced by the
// current UTC time. Store errors are returned unchanged.
func RecordMessage(ctx context.Context, db *gorm.DB, sessionID, role, content string, ts time.Time) (*domain.Message, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	m := &domain.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: ts,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// FetchHistory returns every turn of sessionID in insertion order. A session
// without rows yields an empty slice, not an error.
func FetchHistory(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.Message, error) {
	out := []domain.Message{}
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// ListSessionIDs returns the distinct session ids present in the messages
// table, ordered by their first turn.
func ListSessionIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("session_id").
		Group("session_id").
		Order("MIN(id) ASC").
		Pluck("session_id", &ids).Error
	return ids, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM conversations WHERE session_id = ?", sessionID).
		Scan(&total).Error
	return total, err
}

// GetMessage fetches a turn by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id uint64) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteAllMessages removes every turn of every session and reports how many
// rows were deleted. There is no filter.
func DeleteAllMessages(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).Exec("DELETE FROM conversations")
	return res.RowsAffected, res.Error
}
