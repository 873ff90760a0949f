package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"reelboard/internal/instagram"
	"reelboard/internal/models"
	"reelboard/internal/realtime"
	"reelboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const oauthStateTTL = 10 * time.Minute

// InstagramHandler handles the OAuth connection lifecycle and sync triggers
type InstagramHandler struct {
	db          *gorm.DB
	client      *instagram.Client
	syncService *services.SyncService
	hub         *realtime.Hub
	redirectURI string
}

// NewInstagramHandler creates a new Instagram handler
func NewInstagramHandler(db *gorm.DB, client *instagram.Client, syncService *services.SyncService, hub *realtime.Hub) *InstagramHandler {
	return &InstagramHandler{
		db:          db,
		client:      client,
		syncService: syncService,
		hub:         hub,
		redirectURI: os.Getenv("INSTAGRAM_REDIRECT_URI"),
	}
}

// Connect handles GET /api/instagram/connect: creates the anti-CSRF state
// row and returns the authorization URL to redirect the user to.
func (h *InstagramHandler) Connect(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		respondError(c, err)
		return
	}
	state := hex.EncodeToString(buf)

	record := &models.InstagramOAuthState{
		ID:        uuid.New(),
		State:     state,
		UserID:    userID,
		ExpiresAt: time.Now().Add(oauthStateTTL),
	}
	if err := h.db.Create(record).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auth_url": h.client.BuildAuthURL(h.redirectURI, state),
	})
}

// Callback handles GET /api/instagram/callback. The state row is consumed
// exactly once; an expired or unknown state is rejected.
func (h *InstagramHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing code or state"})
		return
	}

	var record models.InstagramOAuthState
	if err := h.db.Where("state = ?", state).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown or already used state"})
			return
		}
		respondError(c, err)
		return
	}

	// Consume the state before doing anything else so a replayed callback
	// cannot race a second exchange.
	h.db.Delete(&models.InstagramOAuthState{}, "id = ?", record.ID)

	if record.IsExpired() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization request expired, please reconnect"})
		return
	}

	token, err := h.client.ExchangeCode(c.Request.Context(), code, h.redirectURI)
	if err != nil {
		respondError(c, err)
		return
	}

	igUserID, err := h.client.ResolveInstagramUserID(c.Request.Context(), token.AccessToken)
	if err != nil {
		respondError(c, err)
		return
	}

	conn := models.InstagramConnection{
		ID:              uuid.New(),
		UserID:          record.UserID,
		AccessToken:     token.AccessToken,
		TokenType:       token.TokenType,
		InstagramUserID: igUserID,
	}
	if token.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
		conn.ExpiresAt = &expiresAt
	}

	err = h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "token_type", "instagram_user_id", "expires_at", "updated_at"}),
	}).Create(&conn).Error
	if err != nil {
		respondError(c, err)
		return
	}

	log.Printf("✅ Instagram connected for user %s", record.UserID)

	if dashboard := os.Getenv("DASHBOARD_URL"); dashboard != "" {
		c.Redirect(http.StatusFound, dashboard+"?instagram=connected")
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

// Status handles GET /api/instagram/status
func (h *InstagramHandler) Status(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	var conn models.InstagramConnection
	if err := h.db.Where("user_id = ?", userID).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{"connected": false})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":          !conn.IsExpired(),
		"reconnect_required": conn.IsExpired(),
		"instagram_user_id":  conn.InstagramUserID,
		"expires_at":         conn.ExpiresAt,
	})
}

// Disconnect handles DELETE /api/instagram/connection
func (h *InstagramHandler) Disconnect(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	if err := h.db.Where("user_id = ?", userID).Delete(&models.InstagramConnection{}).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}

// SyncWithToken handles POST /api/instagram/sync with a pasted token.
func (h *InstagramHandler) SyncWithToken(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	var input struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	h.publish(realtime.Event{Type: realtime.EventSyncStarted, UserID: userID})

	report, err := h.syncService.SyncWithToken(c.Request.Context(), userID, input.AccessToken)
	if err != nil {
		h.publish(realtime.Event{Type: realtime.EventSyncFailed, UserID: userID})
		respondError(c, err)
		return
	}

	h.publish(realtime.Event{Type: realtime.EventSyncFinished, UserID: userID, Payload: report})
	c.JSON(http.StatusOK, report)
}

// SyncReels handles POST /api/instagram/sync-reels for connected accounts.
func (h *InstagramHandler) SyncReels(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}

	h.publish(realtime.Event{Type: realtime.EventSyncStarted, UserID: userID})

	report, err := h.syncService.SyncConnectedReels(c.Request.Context(), userID)
	if err != nil {
		h.publish(realtime.Event{Type: realtime.EventSyncFailed, UserID: userID})
		respondError(c, err)
		return
	}

	h.publish(realtime.Event{Type: realtime.EventSyncFinished, UserID: userID, Payload: report})
	c.JSON(http.StatusOK, report)
}

// Events handles GET /api/instagram/events: the WebSocket feed of sync
// progress for the authenticated user.
func (h *InstagramHandler) Events(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User authentication required"})
		return
	}
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Realtime events are not configured"})
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, userID); err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
	}
}

func (h *InstagramHandler) publish(event realtime.Event) {
	if h.hub != nil {
		h.hub.Publish(event)
	}
}
