// Package worker runs the background jobs: periodic re-sync of connected
// Instagram accounts and cleanup of expired OAuth state rows.
package worker

import (
	"context"
	"log"
	"os"
	"time"

	"reelboard/internal/instagram"
	"reelboard/internal/models"
	"reelboard/internal/realtime"
	"reelboard/internal/services"

	"gorm.io/gorm"
)

const (
	defaultSyncInterval = 6 * time.Hour
	cleanupInterval     = time.Hour
	perUserGap          = 2 * time.Second
)

// Service owns the background tickers.
type Service struct {
	db          *gorm.DB
	syncService *services.SyncService
	hub         *realtime.Hub

	syncInterval time.Duration
	stopChan     chan bool
}

// NewService creates a new worker service. The sync interval comes from
// SYNC_REFRESH_INTERVAL (a Go duration string, default 6h).
func NewService(db *gorm.DB, syncService *services.SyncService, hub *realtime.Hub) *Service {
	interval := defaultSyncInterval
	if raw := os.Getenv("SYNC_REFRESH_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			interval = parsed
		} else {
			log.Printf("⚠️ Invalid SYNC_REFRESH_INTERVAL %q, using %v", raw, defaultSyncInterval)
		}
	}

	return &Service{
		db:           db,
		syncService:  syncService,
		hub:          hub,
		syncInterval: interval,
		stopChan:     make(chan bool),
	}
}

// Start launches the background loops. They stop when ctx is cancelled or
// Stop is called.
func (s *Service) Start(ctx context.Context) {
	log.Printf("🔄 Starting background worker (sync every %v)", s.syncInterval)

	go s.loop(ctx, s.syncInterval, "connected-account sync", s.syncConnectedAccounts)
	go s.loop(ctx, cleanupInterval, "oauth state cleanup", s.cleanupExpiredStates)
}

// Stop stops the worker
func (s *Service) Stop() {
	close(s.stopChan)
	log.Printf("✅ Background worker stopped")
}

func (s *Service) loop(ctx context.Context, interval time.Duration, name string, job func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("🛑 Stopping %s due to context cancellation", name)
			return
		case <-s.stopChan:
			log.Printf("🛑 Stopping %s", name)
			return
		case <-ticker.C:
			if err := job(ctx); err != nil {
				log.Printf("❌ Error in %s: %v", name, err)
			}
		}
	}
}

// syncConnectedAccounts re-syncs every user with a live Instagram
// connection. A reconnect-required failure is a per-user condition, not a
// worker failure: it is logged and the remaining users still run.
func (s *Service) syncConnectedAccounts(ctx context.Context) error {
	var connections []models.InstagramConnection
	if err := s.db.Find(&connections).Error; err != nil {
		return err
	}

	for _, conn := range connections {
		if conn.IsExpired() {
			log.Printf("⚠️ Skipping auto-sync for user %s: token expired", conn.UserID)
			continue
		}

		report, err := s.syncService.SyncConnectedReels(ctx, conn.UserID)
		if err != nil {
			if instagram.IsReconnectError(err) {
				log.Printf("⚠️ User %s needs to reconnect Instagram", conn.UserID)
			} else {
				log.Printf("❌ Auto-sync failed for user %s: %v", conn.UserID, err)
			}
			if s.hub != nil {
				s.hub.Publish(realtime.Event{Type: realtime.EventSyncFailed, UserID: conn.UserID})
			}
		} else {
			log.Printf("✅ Auto-sync for user %s: %d inserted, %d updated", conn.UserID, report.Inserted, report.Updated)
			if s.hub != nil {
				s.hub.Publish(realtime.Event{Type: realtime.EventSyncFinished, UserID: conn.UserID, Payload: report})
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(perUserGap):
		}
	}
	return nil
}

// cleanupExpiredStates deletes OAuth correlation rows that expired unused.
func (s *Service) cleanupExpiredStates(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.InstagramOAuthState{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("🧹 Removed %d expired OAuth state rows", result.RowsAffected)
	}
	return nil
}
