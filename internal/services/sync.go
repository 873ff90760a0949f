package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"reelboard/internal/instagram"
	"reelboard/internal/metrics"
	"reelboard/internal/models"
	"reelboard/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// insightWorkers bounds the per-item insight fetch parallelism.
	insightWorkers = 4

	// insightRequestGap is the pause between requests on each worker, to
	// stay under the platform's rate limits.
	insightRequestGap = 120 * time.Millisecond

	// insightRefreshWindow skips re-fetching insights for rows that synced
	// recently. Listing data is still refreshed every run.
	insightRefreshWindow = time.Hour

	// mediaListLimit caps how many items a manual-token sync pulls.
	mediaListLimit = 50
)

// SyncReport summarizes one sync run for the caller.
type SyncReport struct {
	Inserted                int      `json:"inserted"`
	Updated                 int      `json:"updated"`
	RowsWithImportedMetrics int      `json:"rows_with_imported_metrics"`
	DroppedColumns          []string `json:"dropped_columns,omitempty"`
}

// SyncService pulls a user's media from Instagram, reconciles it against the
// stored catalog and persists the result.
type SyncService struct {
	db     *gorm.DB
	client *instagram.Client
}

// NewSyncService creates a new SyncService instance
func NewSyncService(db *gorm.DB, client *instagram.Client) *SyncService {
	return &SyncService{db: db, client: client}
}

// SyncWithToken imports a user's media using a pasted access token. Fetch or
// auth failures abort the whole run; partial metric availability does not.
func (s *SyncService) SyncWithToken(ctx context.Context, userID uuid.UUID, token string) (*SyncReport, error) {
	token = instagram.NormalizeToken(token)
	if token == "" {
		return nil, &ValidationError{Field: "access_token"}
	}

	items, err := s.client.FetchMedia(ctx, token, mediaListLimit)
	if err != nil {
		return nil, err
	}

	return s.reconcile(ctx, userID, token, items, s.fetchMediaMetrics)
}

// SyncConnectedReels refreshes the reels of a user's connected Instagram
// account using the stored OAuth credential.
func (s *SyncService) SyncConnectedReels(ctx context.Context, userID uuid.UUID) (*SyncReport, error) {
	var conn models.InstagramConnection
	if err := s.db.Where("user_id = ?", userID).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &instagram.ReconnectError{Message: "no Instagram connection on file"}
		}
		return nil, fmt.Errorf("failed to load Instagram connection: %w", err)
	}
	if conn.IsExpired() {
		return nil, &instagram.ReconnectError{Message: "Instagram access token has expired"}
	}

	items, err := s.client.FetchUserReels(ctx, conn.AccessToken, conn.InstagramUserID)
	if err != nil {
		return nil, err
	}

	return s.reconcile(ctx, userID, conn.AccessToken, items, s.fetchReelMetrics)
}

// metricsFetcher resolves the metric set for one media item.
type metricsFetcher func(ctx context.Context, token string, item *instagram.MediaItem) (*instagram.MediaMetrics, error)

// reconcile matches fetched items against stored rows, merges metrics and
// persists inserts and updates through the drift-tolerant writer.
func (s *SyncService) reconcile(ctx context.Context, userID uuid.UUID, token string, items []instagram.MediaItem, fetch metricsFetcher) (*SyncReport, error) {
	var existing []models.Reel
	if err := s.db.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load stored reels: %w", err)
	}
	idx := indexReels(existing)

	// Rows synced within the refresh window reuse their stored metrics;
	// everything else goes through the insight worker pool.
	var needFetch []instagram.MediaItem
	now := time.Now()
	for i := range items {
		match := idx.Match(&items[i])
		if match != nil && match.LastSyncedAt != nil && now.Sub(*match.LastSyncedAt) < insightRefreshWindow {
			continue
		}
		needFetch = append(needFetch, items[i])
	}

	fetched, err := s.fetchAll(ctx, token, needFetch, fetch)
	if err != nil {
		return nil, err
	}

	writer := store.NewWriter(s.db)
	report := &SyncReport{}
	var inserts []store.Payload

	for i := range items {
		item := &items[i]
		m, ok := fetched[item.ID]
		if !ok {
			// Recently synced: keep stored metrics, refresh listing data.
			m = storedMetrics(idx.Match(item))
		}

		if m.HasImported() {
			report.RowsWithImportedMetrics++
		}

		if match := idx.Match(item); match != nil {
			payload := mergePayload(match, item, m, now)
			if !ok {
				// Insights were not refreshed, so the sync stamp must not
				// move or the refresh window would extend itself forever.
				delete(payload, "last_synced_at")
			}
			if err := writer.UpdateRow(match.ID, userID, payload); err != nil {
				return nil, err
			}
			report.Updated++
			continue
		}

		inserts = append(inserts, insertPayload(userID, item, m, now))
	}

	if len(inserts) > 0 {
		if err := writer.InsertRows(inserts); err != nil {
			return nil, err
		}
		report.Inserted = len(inserts)
	}

	report.DroppedColumns = writer.DroppedColumns()
	if len(report.DroppedColumns) > 0 {
		log.Printf("⚠️ Sync for user %s could not store columns: %v", userID, report.DroppedColumns)
	}
	return report, nil
}

// fetchAll runs the insight fetches with a small fixed worker pool. Workers
// pause between requests to avoid upstream rate limiting. A reconnect-required
// failure on any item aborts the whole run, even if other items succeeded.
func (s *SyncService) fetchAll(ctx context.Context, token string, items []instagram.MediaItem, fetch metricsFetcher) (map[string]*instagram.MediaMetrics, error) {
	results := make(map[string]*instagram.MediaMetrics, len(items))
	if len(items) == 0 {
		return results, nil
	}

	jobs := make(chan *instagram.MediaItem)
	var mu sync.Mutex
	var firstErr error
	var wg sync.WaitGroup

	workers := insightWorkers
	if len(items) < workers {
		workers = len(items)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				m, err := fetch(ctx, token, item)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					results[item.ID] = m
				}
				mu.Unlock()
				time.Sleep(insightRequestGap)
			}
		}()
	}

	for i := range items {
		mu.Lock()
		stop := firstErr != nil
		mu.Unlock()
		if stop {
			break
		}
		jobs <- &items[i]
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// fetchMediaMetrics is the manual-token path: per-metric insight requests
// with metric-name and endpoint fallbacks.
func (s *SyncService) fetchMediaMetrics(ctx context.Context, token string, item *instagram.MediaItem) (*instagram.MediaMetrics, error) {
	return s.client.MediaMetrics(ctx, token, item)
}

// fetchReelMetrics is the connected-account path: one batched insights call
// per reel, falling back to per-metric requests when the batch is rejected.
func (s *SyncService) fetchReelMetrics(ctx context.Context, token string, item *instagram.MediaItem) (*instagram.MediaMetrics, error) {
	counts, err := s.client.ReelInsights(ctx, token, item.ID)
	if err != nil {
		if instagram.IsReconnectError(err) {
			return nil, err
		}
		log.Printf("⚠️ Batched insights failed for media %s, retrying per metric: %v", item.ID, err)
		return s.client.MediaMetrics(ctx, token, item)
	}

	m := &instagram.MediaMetrics{
		Views:    counts.Plays,
		Likes:    counts.Likes,
		Comments: counts.Comments,
		Saves:    counts.Saved,
		Shares:   counts.Shares,
	}
	if counts.Reach > 0 {
		m.AccountsReached = metrics.ToOptionalCount(float64(counts.Reach))
	}
	return m, nil
}

// storedMetrics re-expresses a stored row's metrics as a fetch result, for
// items inside the refresh window.
func storedMetrics(reel *models.Reel) *instagram.MediaMetrics {
	if reel == nil {
		return &instagram.MediaMetrics{}
	}
	return &instagram.MediaMetrics{
		Views:            reel.Views,
		Likes:            reel.Likes,
		Comments:         reel.Comments,
		Saves:            reel.Saves,
		Shares:           reel.Shares,
		AccountsReached:  reel.AccountsReached,
		AverageWatchTime: reel.AverageWatchTime,
		ThisReelSkipRate: reel.ThisReelSkipRate,
	}
}
