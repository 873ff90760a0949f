package models

import (
	"time"

	"github.com/google/uuid"
)

// InstagramOAuthState is the ephemeral anti-CSRF correlation record created
// when a user starts the Instagram OAuth flow. It is consumed exactly once by
// the callback and expires after ten minutes.
type InstagramOAuthState struct {
	ID        uuid.UUID `json:"id" db:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	State     string    `json:"state" db:"state" gorm:"uniqueIndex;not null"`
	UserID    uuid.UUID `json:"user_id" db:"user_id" gorm:"type:uuid;index;not null"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"autoCreateTime"`
}

// TableName sets the table name for the InstagramOAuthState model
func (InstagramOAuthState) TableName() string {
	return "instagram_oauth_states"
}

// IsExpired reports whether the state record is past its expiry.
func (s *InstagramOAuthState) IsExpired() bool {
	return !s.ExpiresAt.After(time.Now())
}
