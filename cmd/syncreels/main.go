// Command syncreels runs one sync pass for a single user from the command
// line: either the connected Instagram account or a pasted access token.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"reelboard/internal/database"
	"reelboard/internal/instagram"
	"reelboard/internal/services"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	userFlag := flag.String("user", "", "user id to sync (required)")
	tokenFlag := flag.String("token", "", "access token; uses the stored connection when omitted")
	timeoutFlag := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	userID, err := uuid.Parse(*userFlag)
	if err != nil {
		log.Fatal("A valid -user id is required: ", err)
	}

	// Connect to database
	dbConfig := database.LoadConfig()
	if err := database.Connect(dbConfig); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	syncService := services.NewSyncService(database.DB, instagram.NewClient())

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	var report *services.SyncReport
	if *tokenFlag != "" {
		log.Printf("🔄 Syncing media for user %s with provided token", userID)
		report, err = syncService.SyncWithToken(ctx, userID, *tokenFlag)
	} else {
		log.Printf("🔄 Syncing connected Instagram account for user %s", userID)
		report, err = syncService.SyncConnectedReels(ctx, userID)
	}
	if err != nil {
		if instagram.IsReconnectError(err) {
			log.Fatal("Instagram connection is no longer valid, reconnect required: ", err)
		}
		log.Fatal("Sync failed: ", err)
	}

	log.Printf("✅ Sync complete: %d inserted, %d updated, %d with imported metrics",
		report.Inserted, report.Updated, report.RowsWithImportedMetrics)
	if len(report.DroppedColumns) > 0 {
		log.Printf("⚠️ Columns missing from the store: %v", report.DroppedColumns)
	}
}
