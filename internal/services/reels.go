package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"reelboard/internal/metrics"
	"reelboard/internal/models"
	"reelboard/internal/scoring"
	"reelboard/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ValidationError reports a required field that is absent or malformed.
// Validation happens before any network call.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid field: %s", e.Field)
}

// IsValidationError reports whether err is a request validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrReelNotFound is returned when a reel id does not exist for the user.
var ErrReelNotFound = errors.New("reel not found")

// ObjectStore is the slice of the storage client the reels service needs:
// best-effort deletion of an uploaded binary when its reel is removed.
type ObjectStore interface {
	Delete(ctx context.Context, path string) error
}

// ReelsService owns the manual reel catalog: creation, listing with scores,
// pasted-metric edits and deletion.
type ReelsService struct {
	db      *gorm.DB
	objects ObjectStore
}

// NewReelsService creates a new ReelsService instance
func NewReelsService(db *gorm.DB, objects ObjectStore) *ReelsService {
	return &ReelsService{db: db, objects: objects}
}

// CreateReelInput is a manually added reel.
type CreateReelInput struct {
	Title       string     `json:"title"`
	Platform    string     `json:"platform"`
	VideoURL    string     `json:"video_url"`
	StoragePath string     `json:"storage_path"`
	ReelType    string     `json:"reel_type"`
	PublishedAt *time.Time `json:"published_at"`
}

// Create validates and stores a manually added reel.
func (rs *ReelsService) Create(userID uuid.UUID, input CreateReelInput) (*models.Reel, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, &ValidationError{Field: "title"}
	}
	if strings.TrimSpace(input.VideoURL) == "" && strings.TrimSpace(input.StoragePath) == "" {
		return nil, &ValidationError{Field: "video_url"}
	}

	reelType := input.ReelType
	if reelType != models.ReelTypeStatic {
		reelType = models.ReelTypeVideo
	}
	platform := input.Platform
	if platform == "" {
		platform = "Instagram"
	}

	reel := &models.Reel{
		UserID:      userID,
		Title:       strings.TrimSpace(input.Title),
		Platform:    platform,
		VideoURL:    strings.TrimSpace(input.VideoURL),
		StoragePath: strings.TrimSpace(input.StoragePath),
		ReelType:    reelType,
		PublishedAt: input.PublishedAt,
	}
	if err := rs.db.Create(reel).Error; err != nil {
		return nil, fmt.Errorf("failed to create reel: %w", err)
	}
	return reel, nil
}

// Get loads one reel, scoped to the owning user.
func (rs *ReelsService) Get(userID, id uuid.UUID) (*models.Reel, error) {
	var reel models.Reel
	err := rs.db.Where("id = ? AND user_id = ?", id, userID).First(&reel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReelNotFound
		}
		return nil, fmt.Errorf("failed to load reel: %w", err)
	}
	return &reel, nil
}

// List returns the user's reels ranked by score, highest first.
func (rs *ReelsService) List(userID uuid.UUID) ([]scoring.ScoredReel, error) {
	reels, err := rs.loadAll(userID)
	if err != nil {
		return nil, err
	}
	return scoring.Rank(reels), nil
}

// Recommend returns actionable advice built from the user's top-scoring reel,
// or nil when the catalog is empty.
func (rs *ReelsService) Recommend(userID uuid.UUID) (*scoring.Recommendation, error) {
	reels, err := rs.loadAll(userID)
	if err != nil {
		return nil, err
	}
	return scoring.Recommend(reels), nil
}

func (rs *ReelsService) loadAll(userID uuid.UUID) ([]models.Reel, error) {
	var reels []models.Reel
	if err := rs.db.Where("user_id = ?", userID).Find(&reels).Error; err != nil {
		return nil, fmt.Errorf("failed to load reels: %w", err)
	}
	return reels, nil
}

// MetricsInput carries pasted metric values as the user typed them, for
// example "12,345", "35%" or "7.8 seconds". Empty strings leave the stored
// value untouched. Unlike an automated sync, a manual edit may lower values.
type MetricsInput struct {
	Views            string `json:"views"`
	Likes            string `json:"likes"`
	Comments         string `json:"comments"`
	Saves            string `json:"saves"`
	Shares           string `json:"shares"`
	Follows          string `json:"follows"`
	AccountsReached  string `json:"accounts_reached"`
	AverageWatchTime string `json:"average_watch_time"`
	ThisReelSkipRate string `json:"this_reel_skip_rate"`
}

// UpdateMetrics parses pasted metric text and writes the result through the
// drift-tolerant writer. It returns the columns that could not be stored, so
// the caller can warn that those metrics were dropped.
func (rs *ReelsService) UpdateMetrics(userID, id uuid.UUID, input MetricsInput) ([]string, error) {
	if _, err := rs.Get(userID, id); err != nil {
		return nil, err
	}

	payload := store.Payload{}
	counts := []struct {
		column string
		text   string
	}{
		{"views", input.Views},
		{"likes", input.Likes},
		{"comments", input.Comments},
		{"saves", input.Saves},
		{"shares", input.Shares},
		{"follows", input.Follows},
	}
	for _, c := range counts {
		if strings.TrimSpace(c.text) == "" {
			continue
		}
		value, err := metrics.ParsePastedMetric(c.text, false)
		if err != nil {
			return nil, &ValidationError{Field: c.column}
		}
		payload[c.column] = metrics.ToCount(value)
	}

	if strings.TrimSpace(input.AccountsReached) != "" {
		value, err := metrics.ParsePastedMetric(input.AccountsReached, false)
		if err != nil {
			return nil, &ValidationError{Field: "accounts_reached"}
		}
		if reached := metrics.ToOptionalCount(value); reached != nil {
			payload["accounts_reached"] = *reached
		}
	}
	if strings.TrimSpace(input.AverageWatchTime) != "" {
		value, err := metrics.ParsePastedMetric(input.AverageWatchTime, false)
		if err != nil {
			return nil, &ValidationError{Field: "average_watch_time"}
		}
		if watch := metrics.ToWatchSeconds(value); watch != nil {
			payload["average_watch_time"] = *watch
		}
	}
	if strings.TrimSpace(input.ThisReelSkipRate) != "" {
		value, err := metrics.ParsePastedMetric(input.ThisReelSkipRate, true)
		if err != nil {
			return nil, &ValidationError{Field: "this_reel_skip_rate"}
		}
		payload["this_reel_skip_rate"] = value
	}

	if len(payload) == 0 {
		return nil, nil
	}

	writer := store.NewWriter(rs.db)
	if err := writer.UpdateRow(id, userID, payload); err != nil {
		return nil, err
	}
	return writer.DroppedColumns(), nil
}

// Delete removes a reel and best-effort deletes its uploaded binary. A
// failed object deletion is logged, never surfaced: the row removal is the
// authoritative part.
func (rs *ReelsService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	reel, err := rs.Get(userID, id)
	if err != nil {
		return err
	}

	err = rs.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Reel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete reel: %w", err)
	}

	if reel.StoragePath != "" && rs.objects != nil {
		if err := rs.objects.Delete(ctx, reel.StoragePath); err != nil {
			log.Printf("⚠️ Failed to delete stored object %s: %v", reel.StoragePath, err)
		}
	}
	return nil
}
