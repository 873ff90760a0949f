package handlers

import (
	"fmt"
	"net/http"
	"path"
	"time"

	"reelboard/internal/metadata"
	"reelboard/internal/services"
	"reelboard/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const signedURLTTL = time.Hour

// ReelsHandler handles HTTP requests for the reel catalog
type ReelsHandler struct {
	reelsService *services.ReelsService
	storage      *storage.Client
	extractor    *metadata.Extractor
}

// NewReelsHandler creates a new reels handler
func NewReelsHandler(reelsService *services.ReelsService, storageClient *storage.Client) *ReelsHandler {
	return &ReelsHandler{
		reelsService: reelsService,
		storage:      storageClient,
		extractor:    metadata.NewExtractor(),
	}
}

// HealthCheck handles GET /health
func (h *ReelsHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "reelboard",
	})
}

// ListReels handles GET /api/reels — the catalog ranked by score.
func (h *ReelsHandler) ListReels(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	ranked, err := h.reelsService.List(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reels": ranked,
		"count": len(ranked),
	})
}

// CreateReel handles POST /api/reels
func (h *ReelsHandler) CreateReel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	var input services.CreateReelInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	reel, err := h.reelsService.Create(userID, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, reel)
}

// GetReel handles GET /api/reels/:id
func (h *ReelsHandler) GetReel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reel id"})
		return
	}

	reel, err := h.reelsService.Get(userID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{"reel": reel}
	if reel.StoragePath != "" && h.storage != nil && h.storage.Configured() {
		if signed, err := h.storage.CreateSignedURL(c.Request.Context(), reel.StoragePath, signedURLTTL); err == nil {
			response["signed_video_url"] = signed
		}
	}
	c.JSON(http.StatusOK, response)
}

// UpdateMetrics handles PATCH /api/reels/:id/metrics with pasted values.
func (h *ReelsHandler) UpdateMetrics(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reel id"})
		return
	}

	var input services.MetricsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	dropped, err := h.reelsService.UpdateMetrics(userID, id, input)
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{"updated": true}
	if len(dropped) > 0 {
		response["dropped_columns"] = dropped
		response["warning"] = "Some metrics could not be stored durably"
	}
	c.JSON(http.StatusOK, response)
}

// DeleteReel handles DELETE /api/reels/:id
func (h *ReelsHandler) DeleteReel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reel id"})
		return
	}

	if err := h.reelsService.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Recommendation handles GET /api/reels/recommendation
func (h *ReelsHandler) Recommendation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	rec, err := h.reelsService.Recommend(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"recommendation": nil, "message": "Add reels to get a recommendation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendation": rec})
}

// UploadVideo handles POST /api/reels/upload: stores the file and returns
// the storage path for a subsequent reel creation.
func (h *ReelsHandler) UploadVideo(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}
	if h.storage == nil || !h.storage.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Uploads are not configured"})
		return
	}

	file, header, err := c.Request.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing video file"})
		return
	}
	defer file.Close()

	storagePath := fmt.Sprintf("%s/%s%s", userID, uuid.New(), path.Ext(header.Filename))
	contentType := header.Header.Get("Content-Type")

	if err := h.storage.Upload(c.Request.Context(), storagePath, contentType, file); err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{"storage_path": storagePath}
	if signed, err := h.storage.CreateSignedURL(c.Request.Context(), storagePath, signedURLTTL); err == nil {
		response["signed_video_url"] = signed
	}
	c.JSON(http.StatusCreated, response)
}

// Preview handles POST /api/reels/preview: fetches page metadata for a
// pasted URL so the dashboard can prefill title and thumbnail.
func (h *ReelsHandler) Preview(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	var input struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url"})
		return
	}

	meta, err := h.extractor.Extract(c.Request.Context(), input.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": meta})
}
