package models

import (
	"time"

	"github.com/google/uuid"
)

// Reel types inferred from the media type of the imported item. A reel's type
// is set once on import/creation and is not user-editable afterwards.
const (
	ReelTypeStatic = "static"
	ReelTypeVideo  = "video"
)

// Reel represents one piece of tracked short-form content: either imported
// from Instagram or added manually with an uploaded video.
type Reel struct {
	ID     uuid.UUID `json:"id" db:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID uuid.UUID `json:"user_id" db:"user_id" gorm:"type:uuid;index;not null"`

	Title       string     `json:"title" db:"title" gorm:"not null"`
	Platform    string     `json:"platform" db:"platform" gorm:"default:Instagram"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`

	// VideoURL/StoragePath identify the content and feed the canonical-URL
	// de-duplication key. IGMediaID is the platform's stable media id.
	VideoURL    string `json:"video_url" db:"video_url"`
	StoragePath string `json:"storage_path" db:"storage_path"`
	IGMediaID   string `json:"ig_media_id" db:"ig_media_id" gorm:"index"`

	Caption      string `json:"caption" db:"caption" gorm:"type:text"`
	Permalink    string `json:"permalink" db:"permalink"`
	MediaURL     string `json:"media_url" db:"media_url"`
	ThumbnailURL string `json:"thumbnail_url" db:"thumbnail_url"`

	ReelType string `json:"reel_type" db:"reel_type" gorm:"default:video"`

	// Engagement metrics. Zero means "no signal", never an error.
	Views    int64 `json:"views" db:"views" gorm:"default:0"`
	Likes    int64 `json:"likes" db:"likes" gorm:"default:0"`
	Comments int64 `json:"comments" db:"comments" gorm:"default:0"`
	Saves    int64 `json:"saves" db:"saves" gorm:"default:0"`
	Shares   int64 `json:"shares" db:"shares" gorm:"default:0"`
	Follows  int64 `json:"follows" db:"follows" gorm:"default:0"`

	// Retention metrics (video only). Nil means "unknown", which is distinct
	// from zero for these fields.
	AccountsReached  *int64   `json:"accounts_reached" db:"accounts_reached"`
	AverageWatchTime *float64 `json:"average_watch_time" db:"average_watch_time"` // seconds, 2dp
	ThisReelSkipRate *float64 `json:"this_reel_skip_rate" db:"this_reel_skip_rate"` // 0-100

	LastSyncedAt *time.Time `json:"last_synced_at" db:"last_synced_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"autoUpdateTime"`
}

// TableName sets the table name for the Reel model
func (Reel) TableName() string {
	return "reels"
}

// IsVideo reports whether retention metrics apply to this reel.
func (r *Reel) IsVideo() bool {
	return r.ReelType != ReelTypeStatic
}
