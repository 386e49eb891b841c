// Package db persists recording metadata in SQLite so the dashboard can
// list, filter and aggregate clips without re-probing video files.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the recordings database.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// any pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite is serialized per connection; a single connection
	// avoids SQLITE_BUSY between the supervisors and the API handlers.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Recording is one finalized clip.
type Recording struct {
	ID         string        `json:"id"`
	CameraID   string        `json:"camera_id"`
	CameraName string        `json:"camera_name"`
	Path       string        `json:"path"`
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
}

// InsertRecording appends one finalized recording.
func (db *DB) InsertRecording(ctx context.Context, r Recording) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO recordings (id, camera_id, camera_name, path, start_unix, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.CameraID, r.CameraName, r.Path,
		float64(r.StartTime.UnixNano())/1e9, r.Duration.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}
	return nil
}

// ListFilter narrows ListRecordings. Zero values mean "no filter"; Limit 0
// selects a default of 200.
type ListFilter struct {
	CameraID string
	Day      string // "2006-01-02", matched against the recording start (UTC)
	Start    time.Time
	End      time.Time
	Limit    int
}

// ListRecordings returns recordings newest-first.
func (db *DB) ListRecordings(ctx context.Context, f ListFilter) ([]Recording, error) {
	query := `SELECT id, camera_id, camera_name, path, start_unix, duration_seconds
		FROM recordings WHERE 1=1`
	var args []interface{}
	if f.CameraID != "" {
		query += ` AND camera_id = ?`
		args = append(args, f.CameraID)
	}
	if f.Day != "" {
		query += ` AND date(start_unix, 'unixepoch') = ?`
		args = append(args, f.Day)
	}
	if !f.Start.IsZero() {
		query += ` AND start_unix >= ?`
		args = append(args, float64(f.Start.UnixNano())/1e9)
	}
	if !f.End.IsZero() {
		query += ` AND start_unix <= ?`
		args = append(args, float64(f.End.UnixNano())/1e9)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` ORDER BY start_unix DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		var r Recording
		var startUnix, durSeconds float64
		if err := rows.Scan(&r.ID, &r.CameraID, &r.CameraName, &r.Path, &startUnix, &durSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		r.StartTime = time.Unix(0, int64(startUnix*1e9)).UTC()
		r.Duration = time.Duration(durSeconds * float64(time.Second))
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRecordingByPath removes the metadata row for the given file path and
// reports whether a row was deleted.
func (db *DB) DeleteRecordingByPath(ctx context.Context, path string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM recordings WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("failed to delete recording: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Stats summarises the recordings table for the dashboard.
type Stats struct {
	TotalRecordings int              `json:"total_recordings"`
	TotalDuration   float64          `json:"total_duration_seconds"`
	PerCamera       map[string]int   `json:"per_camera"`
	PerHour         [24]int          `json:"per_hour"`
}

// Stats aggregates counts and durations, including a UTC hour-of-day
// histogram used by the activity chart.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{PerCamera: make(map[string]int)}

	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(duration_seconds), 0) FROM recordings`).
		Scan(&s.TotalRecordings, &s.TotalDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate recordings: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT camera_id, COUNT(*) FROM recordings GROUP BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate per camera: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		s.PerCamera[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hourRows, err := db.QueryContext(ctx, `
		SELECT CAST(strftime('%H', start_unix, 'unixepoch') AS INTEGER), COUNT(*)
		FROM recordings GROUP BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate per hour: %w", err)
	}
	defer hourRows.Close()
	for hourRows.Next() {
		var hour, n int
		if err := hourRows.Scan(&hour, &n); err != nil {
			return nil, err
		}
		if hour >= 0 && hour < 24 {
			s.PerHour[hour] = n
		}
	}
	return s, hourRows.Err()
}
