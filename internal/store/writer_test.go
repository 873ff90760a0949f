package store

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupDriftedDB creates a reels table that is missing the
// this_reel_skip_rate column, simulating a store whose migration lags
// behind the application schema.
func setupDriftedDB(t *testing.T) *gorm.DB {
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
		views INTEGER DEFAULT 0,
		likes INTEGER DEFAULT 0,
		comments INTEGER DEFAULT 0,
		saves INTEGER DEFAULT 0,
		average_watch_time REAL
	)`).Error
	if err != nil {
		t.Fatalf("Failed to create drifted table: %v", err)
	}

	return db
}

func TestInsertRowsStripsMissingColumn(t *testing.T) {
	db := setupDriftedDB(t)
	writer := NewWriter(db)

	userID := uuid.New()
	rows := []Payload{
		{
			"user_id":             userID.String(),
			"title":               "reel one",
			"views":               int64(100),
			"likes":               int64(10),
			"this_reel_skip_rate": 35.0,
		},
		{
			"user_id":             userID.String(),
			"title":               "reel two",
			"views":               int64(50),
			"this_reel_skip_rate": 12.0,
		},
	}

	if err := writer.InsertRows(rows); err != nil {
		t.Fatalf("InsertRows failed: %v", err)
	}

	dropped := writer.DroppedColumns()
	if len(dropped) != 1 || dropped[0] != "this_reel_skip_rate" {
		t.Errorf("expected droppedColumns=[this_reel_skip_rate], got %v", dropped)
	}

	var count int64
	db.Table("reels").Count(&count)
	if count != 2 {
		t.Errorf("expected 2 rows inserted, got %d", count)
	}
}

func TestUpdateRowStripsMissingColumn(t *testing.T) {
	db := setupDriftedDB(t)

	id := uuid.New()
	userID := uuid.New()
	if err := db.Exec(
		`INSERT INTO reels (id, user_id, title, views) VALUES (?, ?, ?, ?)`,
		id.String(), userID.String(), "existing", 10,
	).Error; err != nil {
		t.Fatalf("Failed to seed row: %v", err)
	}

	writer := NewWriter(db)
	err := writer.UpdateRow(id, userID, Payload{
		"views":               int64(500),
		"this_reel_skip_rate": 22.0,
		"average_watch_time":  7.8,
	})
	if err != nil {
		t.Fatalf("UpdateRow failed: %v", err)
	}

	var views int64
	db.Table("reels").Where("id = ?", id.String()).Select("views").Scan(&views)
	if views != 500 {
		t.Errorf("expected views updated to 500, got %d", views)
	}

	var watch float64
	db.Table("reels").Where("id = ?", id.String()).Select("average_watch_time").Scan(&watch)
	if watch != 7.8 {
		t.Errorf("expected surviving column written, got %v", watch)
	}

	dropped := writer.DroppedColumns()
	if len(dropped) != 1 || dropped[0] != "this_reel_skip_rate" {
		t.Errorf("expected droppedColumns=[this_reel_skip_rate], got %v", dropped)
	}
}

func TestColumnStrippedOncePerRun(t *testing.T) {
	db := setupDriftedDB(t)
	writer := NewWriter(db)

	// First write learns about the drifted column.
	if err := writer.InsertRows([]Payload{{"title": "a", "this_reel_skip_rate": 1.0}}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	// A later write in the same run must not re-discover it.
	if err := writer.InsertRows([]Payload{{"title": "b", "this_reel_skip_rate": 2.0}}); err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if len(writer.DroppedColumns()) != 1 {
		t.Errorf("expected one dropped column, got %v", writer.DroppedColumns())
	}
}

func TestTerminalErrorPropagates(t *testing.T) {
	db := setupDriftedDB(t)
	writer := NewWriter(db)

	// Writing to a table that does not exist is not schema drift.
	writer.table = "missing_table"
	err := writer.InsertRows([]Payload{{"title": "a"}})
	if err == nil {
		t.Fatal("expected terminal error for missing table")
	}
	if MissingColumn(err) != "" {
		t.Errorf("missing table misclassified as missing column: %v", err)
	}
}

func TestInsertRowsChunking(t *testing.T) {
	db := setupDriftedDB(t)
	writer := NewWriter(db)
	writer.batchSize = 3

	var rows []Payload
	for i := 0; i < 10; i++ {
		rows = append(rows, Payload{"title": fmt.Sprintf("reel %d", i), "views": int64(i)})
	}

	if err := writer.InsertRows(rows); err != nil {
		t.Fatalf("InsertRows failed: %v", err)
	}

	var count int64
	db.Table("reels").Count(&count)
	if count != 10 {
		t.Errorf("expected 10 rows across chunks, got %d", count)
	}
}

func TestMissingColumnClassifier(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{"postgres wording", `ERROR: column "this_reel_skip_rate" of relation "reels" does not exist (SQLSTATE 42703)`, "this_reel_skip_rate"},
		{"sqlite wording", "table reels has no column named accounts_reached", "accounts_reached"},
		{"rest wording", "Could not find the 'avg_watch_time' column of 'reels' in the schema cache", "avg_watch_time"},
		{"unrelated error", "permission denied for table reels", ""},
		{"syntax error", `syntax error at or near "WHERE"`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MissingColumn(fmt.Errorf("%s", tt.message)); got != tt.expected {
				t.Errorf("MissingColumn(%q) = %q, want %q", tt.message, got, tt.expected)
			}
		})
	}

	if got := MissingColumn(nil); got != "" {
		t.Errorf("MissingColumn(nil) = %q, want empty", got)
	}
}
