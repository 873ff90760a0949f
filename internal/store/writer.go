// Package store persists reel rows against a backing schema that may lag
// behind the application (a pending migration not yet applied). Writes
// that fail on a missing column are retried with that column stripped so
// a sync still lands the metrics the store can hold.
package store

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const defaultBatchSize = 100

// Payload is one row expressed as a column -> value map, so columns can
// be stripped without reflection over model structs.
type Payload map[string]interface{}

// The store surfaces a missing column in different wordings depending on
// what actually backs it; these are the only places that parse them.
var (
	postgresMissingColumn = regexp.MustCompile(`column "([^"]+)" of relation "[^"]+" does not exist`)
	sqliteMissingColumn   = regexp.MustCompile(`table \w+ has no column named (\w+)`)
	restMissingColumn     = regexp.MustCompile(`(?i)could not find the '([^']+)' column`)
)

// MissingColumn extracts the offending column name from a write error, or
// returns "" when the failure is not a schema-drift failure.
func MissingColumn(err error) string {
	if err == nil {
		return ""
	}

	message := err.Error()
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code != "42703" { // undefined_column
			return ""
		}
		message = pqErr.Message
	}

	for _, pattern := range []*regexp.Regexp{postgresMissingColumn, sqliteMissingColumn, restMissingColumn} {
		if match := pattern.FindStringSubmatch(message); len(match) == 2 {
			return match[1]
		}
	}
	return ""
}

// DriftError reports that writes only succeeded after dropping columns,
// or could not succeed at all; it names the columns so the caller can
// warn that those metrics were not durably stored.
type DriftError struct {
	Columns []string
	Err     error
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("store schema is missing columns %v: %v", e.Columns, e.Err)
}

func (e *DriftError) Unwrap() error { return e.Err }

// Writer performs insert/update batches for one sync run. It remembers
// which columns it had to strip so each column is dropped at most once
// per run, which keeps an unrelated persistent error from looping.
type Writer struct {
	db        *gorm.DB
	table     string
	batchSize int
	dropped   map[string]bool
}

// NewWriter creates a writer for the reels table.
func NewWriter(db *gorm.DB) *Writer {
	return &Writer{
		db:        db,
		table:     "reels",
		batchSize: defaultBatchSize,
		dropped:   make(map[string]bool),
	}
}

// DroppedColumns returns the sorted set of columns stripped so far.
func (w *Writer) DroppedColumns() []string {
	columns := make([]string, 0, len(w.dropped))
	for column := range w.dropped {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

// InsertRows inserts rows in bounded chunks. A chunk either fully
// succeeds or the operation aborts; remaining chunks are not attempted
// after a terminal failure.
func (w *Writer) InsertRows(rows []Payload) error {
	for start := 0; start < len(rows); start += w.batchSize {
		end := start + w.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := w.insertChunk(rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) insertChunk(chunk []Payload) error {
	for {
		stripped := make([]map[string]interface{}, len(chunk))
		for i, row := range chunk {
			stripped[i] = w.strip(row)
		}

		err := w.db.Table(w.table).Create(&stripped).Error
		if err == nil {
			return nil
		}
		if !w.noteMissingColumn(err) {
			return w.terminal(err)
		}
	}
}

// UpdateRow updates a single row scoped to its owning user.
func (w *Writer) UpdateRow(id, userID uuid.UUID, payload Payload) error {
	for {
		err := w.db.Table(w.table).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(w.strip(payload)).Error
		if err == nil {
			return nil
		}
		if !w.noteMissingColumn(err) {
			return w.terminal(err)
		}
	}
}

// terminal wraps an unresolvable missing-column failure so the boundary can
// name the columns; every other failure propagates verbatim.
func (w *Writer) terminal(err error) error {
	if MissingColumn(err) != "" {
		return &DriftError{Columns: w.DroppedColumns(), Err: err}
	}
	return err
}

// noteMissingColumn records a newly missing column and reports whether
// the write should be retried. A column already stripped means the error
// is something else wearing the same message; that is terminal.
func (w *Writer) noteMissingColumn(err error) bool {
	column := MissingColumn(err)
	if column == "" || w.dropped[column] {
		return false
	}
	w.dropped[column] = true
	return true
}

func (w *Writer) strip(row Payload) map[string]interface{} {
	clone := make(map[string]interface{}, len(row))
	for column, value := range row {
		if w.dropped[column] {
			continue
		}
		clone[column] = value
	}
	return clone
}
