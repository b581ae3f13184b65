// Package domain defines the persistence models for conversation turns,
// users, conversation titles and feedback. These types are mapped with GORM
// and shared across the repository, service and HTTP layers.
package domain

import (
	"time"
)

// Roles a Message may carry.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Message is a single turn of a conversation. Rows are append-only and the
// autoincrement ID defines their order within a session.
//
// Fields:
//   - ID: autoincrement primary key (insertion order).
//   - SessionID: opaque identifier of the conversation the turn belongs to.
//   - Role: "user" or "bot" (enforced by DB constraint).
//   - Content: free text of the turn.
//   - Timestamp: wall-clock time the row was written (UTC).
//   - Streaming: transient reveal hint for the newest bot turn; never stored.
type Message struct {
	ID        uint64    `json:"id"         gorm:"primaryKey;autoIncrement"`
	SessionID string    `json:"session_id" gorm:"type:varchar(64);not null;index:idx_conv_session"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','bot')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	Timestamp time.Time `json:"timestamp"`

	Streaming bool `json:"streaming,omitempty" gorm:"-"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "conversations" }

// User is an account that can log in with email and password. Only the
// bcrypt hash of the password is stored.
type User struct {
	ID           uint64    `json:"id"         gorm:"primaryKey;autoIncrement"`
	Email        string    `json:"email"      gorm:"type:varchar(320);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	FirstName    string    `json:"first_name" gorm:"type:varchar(128)"`
	LastName     string    `json:"last_name"  gorm:"type:varchar(128)"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ConversationTitle names a conversation for the sidebar. There is at most
// one row per session and it is never updated after the first write.
type ConversationTitle struct {
	SessionID string    `json:"session_id" gorm:"type:varchar(64);primaryKey"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_titles_created"`
}

// TableName returns the database table name for ConversationTitle.
func (ConversationTitle) TableName() string { return "conversation_titles" }

// Feedback is a rating left by a logged-in user on a bot turn. A user can
// rate a given turn once (unique index).
type Feedback struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID uint64    `json:"message_id" gorm:"not null;index;uniqueIndex:ux_feedback_message_email"`
	Email     string    `json:"email"      gorm:"type:varchar(320);not null;uniqueIndex:ux_feedback_message_email"`
	Value     int       `json:"value"      gorm:"not null;check:value IN (-1,1)"`
	CreatedAt time.Time `json:"created_at"`

	// Message is the rated turn. Feedback is cascade-deleted with it.
	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }
