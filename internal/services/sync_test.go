package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reelboard/internal/instagram"
	"reelboard/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupServiceDB creates the full schema with plain DDL: the model defaults
// use postgres functions that sqlite does not accept.
func setupServiceDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	statements := []string{
		`CREATE TABLE reels (
			id TEXT,
			user_id TEXT,
			title TEXT,
			platform TEXT,
			published_at DATETIME,
			video_url TEXT,
			storage_path TEXT,
			ig_media_id TEXT,
			caption TEXT,
			permalink TEXT,
			media_url TEXT,
			thumbnail_url TEXT,
			reel_type TEXT DEFAULT 'video',
			views INTEGER DEFAULT 0,
			likes INTEGER DEFAULT 0,
			comments INTEGER DEFAULT 0,
			saves INTEGER DEFAULT 0,
			shares INTEGER DEFAULT 0,
			follows INTEGER DEFAULT 0,
			accounts_reached INTEGER,
			average_watch_time REAL,
			this_reel_skip_rate REAL,
			last_synced_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE instagram_connections (
			id TEXT,
			user_id TEXT,
			access_token TEXT,
			token_type TEXT,
			instagram_user_id TEXT,
			expires_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("Failed to create test schema: %v", err)
		}
	}
	return db
}

func permissionErrorBody() string {
	return `{"error":{"message":"(#10) The user does not have permission for this metric","type":"GraphMethodException","code":10}}`
}

func tokenErrorBody() string {
	return `{"error":{"message":"Error validating access token: Session has expired","type":"OAuthException","code":190,"error_subcode":463}}`
}

func TestSyncWithTokenInsertsRowWithoutViews(t *testing.T) {
	// Listing carries likes and comments but no view count, and every
	// insights request is rejected. The row is still inserted and counts as
	// having imported metrics because of the listing counts.
	var insightCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/media" {
			fmt.Fprint(w, `{"data":[{
				"id":"m1",
				"caption":"Morning routine",
				"media_type":"VIDEO",
				"permalink":"https://instagram.com/reel/abc/",
				"timestamp":"2025-06-01T12:30:00+0000",
				"like_count":100,
				"comments_count":10,
				"video_view_count":0
			}]}`)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/insights") {
			atomic.AddInt32(&insightCalls, 1)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, permissionErrorBody())
			return
		}
		t.Errorf("unexpected request: %s", r.URL.Path)
	}))
	defer server.Close()

	db := setupServiceDB(t)
	service := NewSyncService(db, instagram.NewClientWithBases(server.URL, server.URL))
	userID := uuid.New()

	report, err := service.SyncWithToken(context.Background(), userID, "token-1")
	if err != nil {
		t.Fatalf("SyncWithToken failed: %v", err)
	}

	if report.Inserted != 1 || report.Updated != 0 {
		t.Errorf("expected inserted=1 updated=0, got %+v", report)
	}
	if report.RowsWithImportedMetrics != 1 {
		t.Errorf("expected rowsWithImportedMetrics=1 (likes came from the listing), got %d", report.RowsWithImportedMetrics)
	}
	if atomic.LoadInt32(&insightCalls) == 0 {
		t.Error("expected insight endpoints to be tried")
	}

	var reel models.Reel
	if err := db.Where("user_id = ?", userID).First(&reel).Error; err != nil {
		t.Fatalf("inserted row not found: %v", err)
	}
	if reel.Views != 0 || reel.Likes != 100 || reel.Comments != 10 {
		t.Errorf("unexpected metrics on inserted row: views=%d likes=%d comments=%d", reel.Views, reel.Likes, reel.Comments)
	}
	if reel.Title != "Morning routine" {
		t.Errorf("unexpected title %q", reel.Title)
	}
}

func TestSyncWithTokenMergesWithoutRegression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/media" {
			fmt.Fprint(w, `{"data":[{
				"id":"m1",
				"media_type":"VIDEO",
				"permalink":"https://instagram.com/reel/abc/",
				"like_count":20,
				"comments_count":0,
				"video_view_count":300
			}]}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, permissionErrorBody())
	}))
	defer server.Close()

	db := setupServiceDB(t)
	userID := uuid.New()
	existing := &models.Reel{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "Existing",
		Platform:  "Instagram",
		Permalink: "https://instagram.com/reel/abc",
		ReelType:  models.ReelTypeVideo,
		Views:     500,
		Likes:     10,
	}
	if err := db.Create(existing).Error; err != nil {
		t.Fatalf("Failed to seed reel: %v", err)
	}

	service := NewSyncService(db, instagram.NewClientWithBases(server.URL, server.URL))
	report, err := service.SyncWithToken(context.Background(), userID, "token-1")
	if err != nil {
		t.Fatalf("SyncWithToken failed: %v", err)
	}

	if report.Updated != 1 || report.Inserted != 0 {
		t.Errorf("expected updated=1 inserted=0, got %+v", report)
	}

	var reel models.Reel
	if err := db.Where("id = ?", existing.ID).First(&reel).Error; err != nil {
		t.Fatalf("updated row not found: %v", err)
	}
	if reel.Views != 500 {
		t.Errorf("views regressed during sync: got %d, want 500", reel.Views)
	}
	if reel.Likes != 20 {
		t.Errorf("likes not raised to incoming maximum: got %d, want 20", reel.Likes)
	}
}

func TestSyncWithTokenReconnectPropagatesFromInsights(t *testing.T) {
	// The listing succeeds but an insights call reports an expired token:
	// the whole run must surface reconnect-required.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/media" {
			fmt.Fprint(w, `{"data":[{
				"id":"m1",
				"media_type":"VIDEO",
				"permalink":"https://instagram.com/reel/abc/",
				"like_count":5,
				"comments_count":1,
				"video_view_count":0
			}]}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, tokenErrorBody())
	}))
	defer server.Close()

	db := setupServiceDB(t)
	service := NewSyncService(db, instagram.NewClientWithBases(server.URL, server.URL))

	_, err := service.SyncWithToken(context.Background(), uuid.New(), "token-1")
	if !instagram.IsReconnectError(err) {
		t.Fatalf("expected reconnect-required error, got %v", err)
	}
}

func TestSyncSkipsInsightsInsideRefreshWindow(t *testing.T) {
	var insightCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/media" {
			fmt.Fprint(w, `{"data":[{
				"id":"m1",
				"media_type":"VIDEO",
				"caption":"fresh caption",
				"permalink":"https://instagram.com/reel/abc/",
				"like_count":0,
				"comments_count":0,
				"video_view_count":0
			}]}`)
			return
		}
		atomic.AddInt32(&insightCalls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, permissionErrorBody())
	}))
	defer server.Close()

	db := setupServiceDB(t)
	userID := uuid.New()
	syncedAt := time.Now().Add(-10 * time.Minute)
	existing := &models.Reel{
		ID:           uuid.New(),
		UserID:       userID,
		Title:        "Existing",
		Platform:     "Instagram",
		IGMediaID:    "m1",
		ReelType:     models.ReelTypeVideo,
		Views:        400,
		LastSyncedAt: &syncedAt,
	}
	if err := db.Create(existing).Error; err != nil {
		t.Fatalf("Failed to seed reel: %v", err)
	}

	service := NewSyncService(db, instagram.NewClientWithBases(server.URL, server.URL))
	report, err := service.SyncWithToken(context.Background(), userID, "token-1")
	if err != nil {
		t.Fatalf("SyncWithToken failed: %v", err)
	}

	if atomic.LoadInt32(&insightCalls) != 0 {
		t.Errorf("expected no insight requests inside the refresh window, got %d", insightCalls)
	}
	if report.Updated != 1 {
		t.Errorf("expected listing data refresh to still update the row, got %+v", report)
	}

	var reel models.Reel
	if err := db.Where("id = ?", existing.ID).First(&reel).Error; err != nil {
		t.Fatalf("row not found: %v", err)
	}
	if reel.Views != 400 {
		t.Errorf("stored views changed inside refresh window: %d", reel.Views)
	}
	if reel.Caption != "fresh caption" {
		t.Errorf("listing data not refreshed: caption=%q", reel.Caption)
	}
}

func TestSyncConnectedReelsRequiresConnection(t *testing.T) {
	db := setupServiceDB(t)
	service := NewSyncService(db, instagram.NewClientWithBases("http://unused", "http://unused"))

	_, err := service.SyncConnectedReels(context.Background(), uuid.New())
	if !instagram.IsReconnectError(err) {
		t.Fatalf("expected reconnect-required without a connection, got %v", err)
	}
}

func TestSyncConnectedReelsExpiredToken(t *testing.T) {
	db := setupServiceDB(t)
	userID := uuid.New()
	expired := time.Now().Add(-time.Hour)
	conn := &models.InstagramConnection{
		ID:              uuid.New(),
		UserID:          userID,
		AccessToken:     "stale",
		InstagramUserID: "1784",
		ExpiresAt:       &expired,
	}
	if err := db.Create(conn).Error; err != nil {
		t.Fatalf("Failed to seed connection: %v", err)
	}

	service := NewSyncService(db, instagram.NewClientWithBases("http://unused", "http://unused"))
	_, err := service.SyncConnectedReels(context.Background(), userID)
	if !instagram.IsReconnectError(err) {
		t.Fatalf("expected reconnect-required for expired token, got %v", err)
	}
}

func TestSyncConnectedReelsImportsBatchedInsights(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/1784/media":
			fmt.Fprint(w, `{"data":[
				{"id":"r1","media_type":"REELS","caption":"Reel one","permalink":"https://instagram.com/reel/r1/","timestamp":"2025-06-01T12:30:00+0000"},
				{"id":"p1","media_type":"IMAGE","permalink":"https://instagram.com/p/p1/"}
			]}`)
		case r.URL.Path == "/r1/insights":
			fmt.Fprint(w, `{"data":[
				{"name":"plays","values":[{"value":1200}]},
				{"name":"reach","values":[{"value":900}]},
				{"name":"saved","values":[{"value":30}]},
				{"name":"likes","values":[{"value":80}]},
				{"name":"comments","values":[{"value":12}]},
				{"name":"shares","values":[{"value":7}]}
			]}`)
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	db := setupServiceDB(t)
	userID := uuid.New()
	conn := &models.InstagramConnection{
		ID:              uuid.New(),
		UserID:          userID,
		AccessToken:     "live-token",
		InstagramUserID: "1784",
	}
	if err := db.Create(conn).Error; err != nil {
		t.Fatalf("Failed to seed connection: %v", err)
	}

	service := NewSyncService(db, instagram.NewClientWithBases(server.URL, server.URL))
	report, err := service.SyncConnectedReels(context.Background(), userID)
	if err != nil {
		t.Fatalf("SyncConnectedReels failed: %v", err)
	}

	// The IMAGE item is filtered out of the reel listing.
	if report.Inserted != 1 || report.RowsWithImportedMetrics != 1 {
		t.Errorf("expected one inserted reel with metrics, got %+v", report)
	}

	var reel models.Reel
	if err := db.Where("user_id = ?", userID).First(&reel).Error; err != nil {
		t.Fatalf("inserted reel not found: %v", err)
	}
	if reel.Views != 1200 || reel.Likes != 80 || reel.Comments != 12 || reel.Saves != 30 || reel.Shares != 7 {
		t.Errorf("unexpected counts: %+v", reel)
	}
	if reel.AccountsReached == nil || *reel.AccountsReached != 900 {
		t.Errorf("expected accounts_reached=900, got %v", reel.AccountsReached)
	}
}

func TestSyncWithTokenRejectsEmptyToken(t *testing.T) {
	db := setupServiceDB(t)
	service := NewSyncService(db, instagram.NewClientWithBases("http://unused", "http://unused"))

	_, err := service.SyncWithToken(context.Background(), uuid.New(), "   ")
	if !IsValidationError(err) {
		t.Fatalf("expected validation error for empty token, got %v", err)
	}
}
