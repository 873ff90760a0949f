package services

import (
	"strings"
	"time"

	"reelboard/internal/instagram"
	"reelboard/internal/metrics"
	"reelboard/internal/models"
	"reelboard/internal/store"

	"github.com/google/uuid"
)

const maxTitleLength = 80

// reelIndex matches fetched media items against previously stored rows, by
// the platform's stable media id first and the canonicalized content URL
// second. First match wins when storage holds duplicates.
type reelIndex struct {
	byMediaID map[string]*models.Reel
	byURL     map[string]*models.Reel
}

func indexReels(reels []models.Reel) *reelIndex {
	idx := &reelIndex{
		byMediaID: make(map[string]*models.Reel),
		byURL:     make(map[string]*models.Reel),
	}
	for i := range reels {
		reel := &reels[i]
		if reel.IGMediaID != "" {
			if _, seen := idx.byMediaID[reel.IGMediaID]; !seen {
				idx.byMediaID[reel.IGMediaID] = reel
			}
		}
		for _, raw := range []string{reel.VideoURL, reel.Permalink} {
			if raw == "" {
				continue
			}
			key := metrics.CanonicalizeReelURL(raw)
			if _, seen := idx.byURL[key]; !seen {
				idx.byURL[key] = reel
			}
		}
	}
	return idx
}

// Match returns the stored row corresponding to the fetched item, or nil.
func (idx *reelIndex) Match(item *instagram.MediaItem) *models.Reel {
	if item.ID != "" {
		if reel, ok := idx.byMediaID[item.ID]; ok {
			return reel
		}
	}
	if item.Permalink != "" {
		if reel, ok := idx.byURL[metrics.CanonicalizeReelURL(item.Permalink)]; ok {
			return reel
		}
	}
	return nil
}

// mergePayload builds the update payload for an existing row from a freshly
// fetched item. Count fields never regress (max wins); optional single-valued
// metrics prefer the incoming reading and fall back to the stored one;
// administrative fields already set on the row are preserved. Listing data
// (caption, permalink, media URLs, publish time) is refreshed every run.
func mergePayload(existing *models.Reel, item *instagram.MediaItem, m *instagram.MediaMetrics, syncedAt time.Time) store.Payload {
	payload := store.Payload{
		"views":    maxCount(existing.Views, m.Views),
		"likes":    maxCount(existing.Likes, m.Likes),
		"comments": maxCount(existing.Comments, m.Comments),
		"saves":    maxCount(existing.Saves, m.Saves),
		"shares":   maxCount(existing.Shares, m.Shares),
	}

	if m.AccountsReached != nil {
		payload["accounts_reached"] = *m.AccountsReached
	}
	if m.AverageWatchTime != nil {
		payload["average_watch_time"] = *m.AverageWatchTime
	}
	if m.ThisReelSkipRate != nil {
		payload["this_reel_skip_rate"] = *m.ThisReelSkipRate
	}

	if existing.Platform == "" {
		payload["platform"] = "Instagram"
	}
	if existing.ReelType == "" {
		payload["reel_type"] = instagram.ReelTypeFromMedia(item)
	}
	if existing.IGMediaID == "" && item.ID != "" {
		payload["ig_media_id"] = item.ID
	}

	if item.Caption != "" {
		payload["caption"] = item.Caption
	}
	if item.Permalink != "" {
		payload["permalink"] = item.Permalink
	}
	if item.MediaURL != "" {
		payload["media_url"] = item.MediaURL
	}
	if item.ThumbnailURL != "" {
		payload["thumbnail_url"] = item.ThumbnailURL
	}
	if published := parseMediaTimestamp(item.Timestamp); published != nil {
		payload["published_at"] = *published
	}

	payload["last_synced_at"] = syncedAt
	return payload
}

// insertPayload builds the row for a fetched item with no stored match.
// Absent counts default to zero and absent optional metrics stay null.
func insertPayload(userID uuid.UUID, item *instagram.MediaItem, m *instagram.MediaMetrics, syncedAt time.Time) store.Payload {
	payload := store.Payload{
		"user_id":        userID.String(),
		"title":          titleFromCaption(item),
		"platform":       "Instagram",
		"video_url":      item.Permalink,
		"ig_media_id":    item.ID,
		"caption":        item.Caption,
		"permalink":      item.Permalink,
		"media_url":      item.MediaURL,
		"thumbnail_url":  item.ThumbnailURL,
		"reel_type":      instagram.ReelTypeFromMedia(item),
		"views":          m.Views,
		"likes":          m.Likes,
		"comments":       m.Comments,
		"saves":          m.Saves,
		"shares":         m.Shares,
		"last_synced_at": syncedAt,
	}

	if m.AccountsReached != nil {
		payload["accounts_reached"] = *m.AccountsReached
	}
	if m.AverageWatchTime != nil {
		payload["average_watch_time"] = *m.AverageWatchTime
	}
	if m.ThisReelSkipRate != nil {
		payload["this_reel_skip_rate"] = *m.ThisReelSkipRate
	}
	if published := parseMediaTimestamp(item.Timestamp); published != nil {
		payload["published_at"] = *published
	}

	return payload
}

// titleFromCaption derives a short display title from the first line of the
// caption, falling back to the media id for caption-less posts.
func titleFromCaption(item *instagram.MediaItem) string {
	caption := strings.TrimSpace(item.Caption)
	if idx := strings.IndexAny(caption, "\r\n"); idx >= 0 {
		caption = strings.TrimSpace(caption[:idx])
	}
	if caption == "" {
		return "Instagram reel " + item.ID
	}
	if len(caption) > maxTitleLength {
		caption = strings.TrimSpace(caption[:maxTitleLength])
	}
	return caption
}

// parseMediaTimestamp parses the Graph API timestamp format, which uses a
// zone offset without a colon.
func parseMediaTimestamp(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed
		}
	}
	return nil
}

func maxCount(existing, incoming int64) int64 {
	if incoming > existing {
		return incoming
	}
	return existing
}
