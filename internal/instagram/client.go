// Package instagram is the client for the Instagram Graph API: media
// listing with field-set fallbacks, per-item insight metrics with
// metric-name synonym chains, and the OAuth code exchange. Field and
// metric support varies wildly across accounts and tokens, so most of the
// surface here is about trying candidates in priority order and deciding
// which failures are worth surfacing.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"reelboard/internal/metrics"
)

const (
	defaultGraphVersion = "v22.0"

	mediaRequestTimeout   = 15 * time.Second
	insightRequestTimeout = 9 * time.Second

	reelListingFields = "id,caption,media_type,media_url,thumbnail_url,permalink,timestamp"
	reelListingLimit  = 50
)

// mediaFieldSets are tried most-detailed first; a field-selection error
// moves to the next set, anything else aborts.
var mediaFieldSets = []string{
	"id,caption,media_type,media_product_type,permalink,timestamp,like_count,comments_count,video_view_count",
	"id,caption,media_type,media_product_type,permalink,timestamp,like_count,comments_count",
	"id,caption,media_type,media_product_type,permalink,timestamp",
}

// Metric-name synonym chains, in priority order per logical metric.
var (
	viewsMetricNames      = []string{"views", "plays", "video_views", "impressions", "reach"}
	reachMetricNames      = []string{"reach", "accounts_reached"}
	skipRateMetricNames   = []string{"this_reel_skip_rate", "skip_rate", "reel_skip_rate", "ig_reels_skip_rate"}
	watchTimeMetricNames  = []string{"average_watch_time", "ig_reels_avg_watch_time", "avg_watch_time"}
	totalWatchMetricNames = []string{"watch_time", "video_view_time"}

	reelInsightMetrics = []string{"plays", "reach", "saved", "likes", "comments", "shares"}
)

// Client talks to the Instagram Graph API. All calls carry bounded
// timeouts; tokens are passed per call rather than held by the client.
type Client struct {
	graphBase     string // graph.facebook.com/<version>
	instagramBase string // graph.instagram.com
	dialogBase    string // www.facebook.com/<version>

	clientID     string
	clientSecret string

	mediaClient   *http.Client
	insightClient *http.Client
}

// NewClient creates a client configured from the environment
// (INSTAGRAM_CLIENT_ID/SECRET, FACEBOOK_GRAPH_VERSION).
func NewClient() *Client {
	version := os.Getenv("FACEBOOK_GRAPH_VERSION")
	if version == "" {
		version = defaultGraphVersion
	}

	clientID := os.Getenv("INSTAGRAM_CLIENT_ID")
	if clientID == "" {
		clientID = os.Getenv("INSTAGRAM_APP_ID")
	}
	clientSecret := os.Getenv("INSTAGRAM_CLIENT_SECRET")
	if clientSecret == "" {
		clientSecret = os.Getenv("INSTAGRAM_APP_SECRET")
	}

	return &Client{
		graphBase:     "https://graph.facebook.com/" + version,
		instagramBase: "https://graph.instagram.com",
		dialogBase:    "https://www.facebook.com/" + version,
		clientID:      clientID,
		clientSecret:  clientSecret,
		mediaClient:   &http.Client{Timeout: mediaRequestTimeout},
		insightClient: &http.Client{Timeout: insightRequestTimeout},
	}
}

// NewClientWithBases creates a client pointed at test servers.
func NewClientWithBases(graphBase, instagramBase string) *Client {
	c := NewClient()
	c.graphBase = graphBase
	c.instagramBase = instagramBase
	c.dialogBase = graphBase
	return c
}

// ClientID exposes the configured app id for the OAuth connect flow.
func (c *Client) ClientID() string { return c.clientID }

// getJSON performs a GET and decodes the Graph envelope. A token error in
// the payload becomes a ReconnectError; any other payload error or non-2xx
// status becomes an APIError; a client timeout is wrapped with timeoutMsg.
func (c *Client) getJSON(ctx context.Context, hc *http.Client, rawURL string, out interface{}, timeoutMsg string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%s: %w", timeoutMsg, err)
		}
		return fmt.Errorf("instagram request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read instagram response: %w", err)
	}

	var envelope struct {
		Error *GraphError `json:"error"`
	}
	// The body may not be JSON at all on some proxy failures; the envelope
	// decode is best-effort and the status check below still catches those.
	_ = json.Unmarshal(body, &envelope)

	if resp.StatusCode != http.StatusOK || envelope.Error != nil {
		if envelope.Error.IsTokenError() {
			return &ReconnectError{}
		}
		message := fmt.Sprintf("instagram request failed (%d)", resp.StatusCode)
		if envelope.Error != nil && envelope.Error.Message != "" {
			message = envelope.Error.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse instagram response: %w", err)
	}
	return nil
}

// FetchMedia lists a user's recent media via graph.instagram.com, walking
// the prioritized field sets until one the account supports succeeds. Only
// a field-selection failure falls through to the next set; auth, rate
// limit and network failures abort immediately.
func (c *Client) FetchMedia(ctx context.Context, token string, limit int) ([]MediaItem, error) {
	var lastErr error
	for _, fields := range mediaFieldSets {
		items, err := c.fetchMediaByFields(ctx, token, limit, fields)
		if err == nil {
			return items, nil
		}
		lastErr = err
		if !IsFieldSelectionError(err) {
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("failed to fetch instagram media")
	}
	return nil, lastErr
}

func (c *Client) fetchMediaByFields(ctx context.Context, token string, limit int, fields string) ([]MediaItem, error) {
	u, err := url.Parse(c.instagramBase + "/me/media")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("fields", fields)
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	var payload mediaListResponse
	if err := c.getJSON(ctx, c.mediaClient, u.String(), &payload, "instagram media request timed out"); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// FetchUserReels pages through a connected account's media on
// graph.facebook.com and returns the REELS items. Pagination stops when
// the cursor is empty or repeats, which guards against a misbehaving API
// looping forever.
func (c *Client) FetchUserReels(ctx context.Context, token, igUserID string) ([]MediaItem, error) {
	var reels []MediaItem
	after := ""

	for {
		u, err := url.Parse(fmt.Sprintf("%s/%s/media", c.graphBase, igUserID))
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("fields", reelListingFields)
		q.Set("limit", fmt.Sprintf("%d", reelListingLimit))
		q.Set("access_token", token)
		if after != "" {
			q.Set("after", after)
		}
		u.RawQuery = q.Encode()

		var payload mediaListResponse
		if err := c.getJSON(ctx, c.mediaClient, u.String(), &payload, "instagram media request timed out"); err != nil {
			return nil, err
		}

		for _, item := range payload.Data {
			if item.IsReel() {
				reels = append(reels, item)
			}
		}

		next := strings.TrimSpace(payload.Paging.Cursors.After)
		if next == "" || next == after {
			break
		}
		after = next
	}

	return reels, nil
}

// InsightValue fetches one named metric for one media item, trying the
// graph.instagram.com then graph.facebook.com insight endpoints. A
// permission/support failure moves to the next endpoint; a token failure
// propagates as reconnect-required; exhausting all endpoints reports the
// metric as absent (zero), not as an error.
func (c *Client) InsightValue(ctx context.Context, token, mediaID, metric string) (int64, error) {
	endpoints := []string{
		fmt.Sprintf("%s/%s/insights", c.instagramBase, mediaID),
		fmt.Sprintf("%s/%s/insights", c.graphBase, mediaID),
	}

	for _, endpoint := range endpoints {
		u, err := url.Parse(endpoint)
		if err != nil {
			return 0, err
		}
		q := u.Query()
		q.Set("metric", metric)
		q.Set("access_token", token)
		u.RawQuery = q.Encode()

		var payload insightsResponse
		err = c.getJSON(ctx, c.insightClient, u.String(), &payload, "instagram insights request timed out")
		if err != nil {
			if IsReconnectError(err) {
				return 0, err
			}
			if IsRecoverableError(err) {
				continue
			}
			return 0, err
		}

		for i := range payload.Data {
			if strings.EqualFold(payload.Data[i].Name, metric) {
				return int64(payload.Data[i].Number() + 0.5), nil
			}
		}
		if len(payload.Data) > 0 {
			return int64(payload.Data[0].Number() + 0.5), nil
		}
		return 0, nil
	}

	return 0, nil
}

// FirstInsightValue walks a synonym chain and returns the first strictly
// positive reading, or nil when no candidate produced one.
func (c *Client) FirstInsightValue(ctx context.Context, token, mediaID string, metricNames []string) (*int64, error) {
	for _, metric := range metricNames {
		value, err := c.InsightValue(ctx, token, mediaID, metric)
		if err != nil {
			return nil, err
		}
		if value > 0 {
			return &value, nil
		}
	}
	return nil, nil
}

// viewsFromInsights resolves the views family of metrics; absence is zero.
func (c *Client) viewsFromInsights(ctx context.Context, token, mediaID string) (int64, error) {
	value, err := c.FirstInsightValue(ctx, token, mediaID, viewsMetricNames)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, nil
	}
	return *value, nil
}

// ReelInsights fetches the batched plays/reach/saved/likes/comments/shares
// metrics for one reel in a single request (connected-account sync path).
func (c *Client) ReelInsights(ctx context.Context, token, mediaID string) (*ReelInsightCounts, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/insights", c.graphBase, mediaID))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("metric", strings.Join(reelInsightMetrics, ","))
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	var payload insightsResponse
	if err := c.getJSON(ctx, c.insightClient, u.String(), &payload, "instagram insights request timed out"); err != nil {
		return nil, err
	}

	byName := make(map[string]float64, len(payload.Data))
	for i := range payload.Data {
		byName[strings.ToLower(payload.Data[i].Name)] = payload.Data[i].Number()
	}

	return &ReelInsightCounts{
		Plays:    int64(byName["plays"] + 0.5),
		Reach:    int64(byName["reach"] + 0.5),
		Saved:    int64(byName["saved"] + 0.5),
		Likes:    int64(byName["likes"] + 0.5),
		Comments: int64(byName["comments"] + 0.5),
		Shares:   int64(byName["shares"] + 0.5),
	}, nil
}

// MediaMetrics assembles the normalized metric set for one media item,
// reading what the listing already carried and filling the gaps from the
// insights endpoints. Average watch time falls back to total watch time
// divided by views when both are known; it is never guessed.
func (c *Client) MediaMetrics(ctx context.Context, token string, item *MediaItem) (*MediaMetrics, error) {
	metricsOut := &MediaMetrics{
		Likes:    countOf(item.LikeCount),
		Comments: countOf(item.CommentsCount),
		Saves:    countOf(firstPositive(item.SaveCount, item.Saves)),
		Views:    countOf(firstPositive(item.VideoViewCount, item.ViewCount, item.Views, item.PlayCount, item.Plays)),
	}

	if metricsOut.Views == 0 && !item.IsImageOnly() {
		views, err := c.viewsFromInsights(ctx, token, item.ID)
		if err != nil {
			return nil, err
		}
		metricsOut.Views = views
	}

	reached, err := c.FirstInsightValue(ctx, token, item.ID, reachMetricNames)
	if err != nil {
		return nil, err
	}
	metricsOut.AccountsReached = reached

	if item.IsImageOnly() {
		return metricsOut, nil
	}

	skip, err := c.FirstInsightValue(ctx, token, item.ID, skipRateMetricNames)
	if err != nil {
		return nil, err
	}
	if skip != nil {
		metricsOut.ThisReelSkipRate = metrics.ToPercent(float64(*skip))
	}

	watch, err := c.FirstInsightValue(ctx, token, item.ID, watchTimeMetricNames)
	if err != nil {
		return nil, err
	}
	if watch != nil {
		metricsOut.AverageWatchTime = metrics.ToWatchSeconds(float64(*watch))
	}

	if metricsOut.AverageWatchTime == nil {
		total, err := c.FirstInsightValue(ctx, token, item.ID, totalWatchMetricNames)
		if err != nil {
			return nil, err
		}
		if total != nil && metricsOut.Views > 0 {
			metricsOut.AverageWatchTime = metrics.ToWatchSeconds(float64(*total) / float64(metricsOut.Views))
		}
	}

	return metricsOut, nil
}

// ReelTypeFromMedia maps the platform media type onto the domain reel
// type: image posts are static, everything else is video.
func ReelTypeFromMedia(item *MediaItem) string {
	if strings.Contains(strings.ToUpper(item.MediaType), "IMAGE") {
		return "static"
	}
	return "video"
}

var tokenParamPattern = regexp.MustCompile(`(?i)(?:^|[?#&])access_token=([^&#]+)`)

// NormalizeToken cleans up a token pasted by a user: a "Bearer " prefix,
// surrounding quotes, a full URL containing an access_token parameter, and
// stray whitespace are all tolerated.
func NormalizeToken(value string) string {
	token := strings.TrimSpace(value)
	if token == "" {
		return ""
	}

	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = token[7:]
	}
	token = strings.Trim(token, "\"'`")
	token = strings.TrimSpace(token)

	if match := tokenParamPattern.FindStringSubmatch(token); len(match) == 2 {
		if decoded, err := url.QueryUnescape(match[1]); err == nil {
			token = decoded
		} else {
			token = match[1]
		}
	}

	return strings.Join(strings.Fields(token), "")
}

func countOf(value float64) int64 {
	if value <= 0 {
		return 0
	}
	return int64(value + 0.5)
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
