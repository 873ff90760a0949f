package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelboard/internal/auth"
	"reelboard/internal/models"
	"reelboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupHandlerDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	err = db.Exec(`CREATE TABLE reels (
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
	)`).Error
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}
	return db
}

func setupRouter(t *testing.T, db *gorm.DB, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewReelsHandler(services.NewReelsService(db, nil), nil)

	router.GET("/health", handler.HealthCheck)
	api := router.Group("/api", AuthMiddleware(auth.NewMockVerifier(userID)))
	{
		api.GET("/reels", handler.ListReels)
		api.POST("/reels", handler.CreateReel)
		api.GET("/reels/:id", handler.GetReel)
		api.PATCH("/reels/:id/metrics", handler.UpdateMetrics)
		api.DELETE("/reels/:id", handler.DeleteReel)
		api.GET("/recommendation", handler.Recommendation)
	}
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer test-token")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	router := setupRouter(t, setupHandlerDB(t), uuid.New())

	w := doJSON(router, http.MethodGet, "/api/reels", nil, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", w.Code)
	}
}

func TestHealthCheckIsPublic(t *testing.T) {
	router := setupRouter(t, setupHandlerDB(t), uuid.New())

	w := doJSON(router, http.MethodGet, "/health", nil, false)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for health check, got %d", w.Code)
	}
}

func TestCreateAndListReels(t *testing.T) {
	db := setupHandlerDB(t)
	userID := uuid.New()
	router := setupRouter(t, db, userID)

	w := doJSON(router, http.MethodPost, "/api/reels", map[string]string{
		"title":     "My reel",
		"video_url": "https://instagram.com/reel/abc",
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodGet, "/api/reels", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var response struct {
		Count int `json:"count"`
		Reels []struct {
			Title string  `json:"title"`
			Score float64 `json:"score"`
		} `json:"reels"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Count != 1 || response.Reels[0].Title != "My reel" {
		t.Errorf("unexpected listing: %+v", response)
	}
}

func TestCreateReelValidationResponse(t *testing.T) {
	router := setupRouter(t, setupHandlerDB(t), uuid.New())

	w := doJSON(router, http.MethodPost, "/api/reels", map[string]string{
		"video_url": "https://instagram.com/reel/abc",
	}, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing title, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("title")) {
		t.Errorf("expected error to name the missing field, got %s", w.Body.String())
	}
}

func TestUpdateMetricsEndpoint(t *testing.T) {
	db := setupHandlerDB(t)
	userID := uuid.New()
	router := setupRouter(t, db, userID)

	reel := &models.Reel{ID: uuid.New(), UserID: userID, Title: "reel"}
	if err := db.Create(reel).Error; err != nil {
		t.Fatalf("Failed to seed reel: %v", err)
	}

	w := doJSON(router, http.MethodPatch, "/api/reels/"+reel.ID.String()+"/metrics", map[string]string{
		"views": "12,345",
		"likes": "100",
	}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var updated models.Reel
	db.Where("id = ?", reel.ID).First(&updated)
	if updated.Views != 12345 || updated.Likes != 100 {
		t.Errorf("metrics not applied: views=%d likes=%d", updated.Views, updated.Likes)
	}
}

func TestGetReelNotFound(t *testing.T) {
	router := setupRouter(t, setupHandlerDB(t), uuid.New())

	w := doJSON(router, http.MethodGet, "/api/reels/"+uuid.New().String(), nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown reel, got %d", w.Code)
	}
}

func TestDeleteReelScopedToOwner(t *testing.T) {
	db := setupHandlerDB(t)
	router := setupRouter(t, db, uuid.New())

	// The reel belongs to a different user, so it must look nonexistent.
	foreign := &models.Reel{ID: uuid.New(), UserID: uuid.New(), Title: "foreign"}
	if err := db.Create(foreign).Error; err != nil {
		t.Fatalf("Failed to seed reel: %v", err)
	}

	w := doJSON(router, http.MethodDelete, "/api/reels/"+foreign.ID.String(), nil, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign reel, got %d", w.Code)
	}
}
