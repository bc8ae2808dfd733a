// Package history keeps a local journal of narration switches for
// debugging sync drift reports after the fact.
package history

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/avolens/dubsync/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS switches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	subtitle_id INTEGER NOT NULL,
	track       TEXT    NOT NULL,
	video_time  REAL    NOT NULL,
	offset      REAL    NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_switches_created_at ON switches (created_at DESC);
`

// Switch is one recorded narration playback switch.
type Switch struct {
	ID         int64     `db:"id" json:"id"`
	SubtitleID int64     `db:"subtitle_id" json:"subtitle_id"`
	Track      string    `db:"track" json:"track"`
	VideoTime  float64   `db:"video_time" json:"video_time"`
	Offset     float64   `db:"offset" json:"offset"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Journal appends switches to a sqlite file and serves recent entries.
type Journal struct {
	db     *sqlx.DB
	logger logger.Logger
}

// Open creates or opens the journal database and ensures the schema.
func Open(path string, log logger.Logger) (*Journal, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	log.WithField("path", path).Info("History journal opened")

	return &Journal{db: db, logger: log}, nil
}

// Record appends one switch. Failures are logged and swallowed; the
// journal never interferes with playback.
func (j *Journal) Record(subtitleID int64, track string, videoTime, offset float64) {
	_, err := j.db.Exec(
		`INSERT INTO switches (subtitle_id, track, video_time, offset) VALUES (?, ?, ?, ?)`,
		subtitleID, track, videoTime, offset,
	)
	if err != nil {
		j.logger.WithError(err).Warn("Failed to record switch")
	}
}

// Recent returns up to limit switches, newest first.
func (j *Journal) Recent(limit int) ([]Switch, error) {
	if limit <= 0 {
		limit = 50
	}

	var switches []Switch
	err := j.db.Select(&switches,
		`SELECT id, subtitle_id, track, video_time, offset, created_at
		 FROM switches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	return switches, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
