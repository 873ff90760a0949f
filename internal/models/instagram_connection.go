package models

import (
	"time"

	"github.com/google/uuid"
)

// InstagramConnection stores the Instagram OAuth credential for a user.
// There is at most one row per user; it is created on a successful OAuth
// callback and deleted on disconnect.
type InstagramConnection struct {
	ID              uuid.UUID  `json:"id" db:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID          uuid.UUID  `json:"user_id" db:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	AccessToken     string     `json:"-" db:"access_token" gorm:"not null"`
	TokenType       string     `json:"token_type" db:"token_type" gorm:"default:bearer"`
	InstagramUserID string     `json:"instagram_user_id" db:"instagram_user_id" gorm:"not null"`
	ExpiresAt       *time.Time `json:"expires_at" db:"expires_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for the InstagramConnection model
func (InstagramConnection) TableName() string {
	return "instagram_connections"
}

// IsExpired reports whether the stored token has passed its expiry. A nil
// expiry means the platform did not report one and the token is assumed live.
func (c *InstagramConnection) IsExpired() bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(time.Now())
}
