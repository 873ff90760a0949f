package instagram

import (
	"encoding/json"
	"strconv"
	"strings"
)

// MediaItem is one entry from the Graph API media-listing endpoint. The
// count fields are only present when the listing field set asked for them
// and the account supports them.
type MediaItem struct {
	ID               string `json:"id"`
	Caption          string `json:"caption"`
	MediaType        string `json:"media_type"`
	MediaProductType string `json:"media_product_type"`
	MediaURL         string `json:"media_url"`
	ThumbnailURL     string `json:"thumbnail_url"`
	Permalink        string `json:"permalink"`
	Timestamp        string `json:"timestamp"`

	LikeCount      float64 `json:"like_count"`
	CommentsCount  float64 `json:"comments_count"`
	VideoViewCount float64 `json:"video_view_count"`
	ViewCount      float64 `json:"view_count"`
	Views          float64 `json:"views"`
	PlayCount      float64 `json:"play_count"`
	Plays          float64 `json:"plays"`
	SaveCount      float64 `json:"save_count"`
	Saves          float64 `json:"saves"`
}

// IsImageOnly reports whether the item is a plain image post, which has no
// view or retention metrics at all.
func (m *MediaItem) IsImageOnly() bool {
	return strings.ToUpper(m.MediaType) == "IMAGE"
}

// IsReel reports whether the item is a reel per the listing media type.
func (m *MediaItem) IsReel() bool {
	return strings.ToUpper(m.MediaType) == "REELS"
}

// mediaListResponse is the envelope of the media-listing endpoint.
type mediaListResponse struct {
	Data   []MediaItem `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
	} `json:"paging"`
	Error *GraphError `json:"error"`
}

// insightEntry is one metric in an insights response. The value can appear
// either as a scalar or inside a values array, and is not always numeric,
// so it is parsed leniently.
type insightEntry struct {
	Name   string          `json:"name"`
	Value  json.RawMessage `json:"value"`
	Values []struct {
		Value json.RawMessage `json:"value"`
	} `json:"values"`
}

// Number extracts the numeric reading of the entry, preferring the first
// element of the values array. Non-numeric readings count as zero.
func (e *insightEntry) Number() float64 {
	if len(e.Values) > 0 {
		return rawNumber(e.Values[0].Value)
	}
	return rawNumber(e.Value)
}

func rawNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var numeric float64
	if err := json.Unmarshal(raw, &numeric); err == nil {
		return numeric
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := strconv.ParseFloat(text, 64); err == nil {
			return parsed
		}
	}
	return 0
}

// insightsResponse is the envelope of the per-item insights endpoint.
type insightsResponse struct {
	Data  []insightEntry `json:"data"`
	Error *GraphError    `json:"error"`
}

// ReelInsightCounts are the batched per-reel insight metrics used by the
// connected-account sync path.
type ReelInsightCounts struct {
	Plays    int64 `json:"plays"`
	Reach    int64 `json:"reach"`
	Saved    int64 `json:"saved"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Shares   int64 `json:"shares"`
}

// MediaMetrics is the normalized per-item metric set produced by the
// fetcher for the reconciliation engine.
type MediaMetrics struct {
	Views    int64
	Likes    int64
	Comments int64
	Saves    int64
	Shares   int64

	AccountsReached  *int64
	AverageWatchTime *float64
	ThisReelSkipRate *float64
}

// HasImported reports whether any non-zero/non-nil metric was actually
// obtained from the platform, as opposed to a row where the user will have
// to paste metrics manually.
func (m *MediaMetrics) HasImported() bool {
	return m.Views > 0 || m.Likes > 0 || m.Comments > 0 || m.Saves > 0 || m.Shares > 0 ||
		m.AccountsReached != nil || m.AverageWatchTime != nil || m.ThisReelSkipRate != nil
}

// TokenResult is the outcome of an OAuth code exchange.
type TokenResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64 // seconds; zero when the platform reported none
}
