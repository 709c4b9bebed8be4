package video

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/maauso/avatar-broker/internal/backend"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check that SQLiteRepository implements Repository.
var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository persists records in an embedded SQLite database with
// goose-managed migrations.
type SQLiteRepository struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

// NewSQLiteRepository opens (or creates) the database at path and runs
// migrations.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	registerHook()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL allows concurrent reads but only one writer.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const recordColumns = `id, user_id, image_url, audio_url, text_input, prompt,
	emotion, style, output_video_url, duration, status, tier, error_message,
	settings, created_at, updated_at, started_at, completed_at,
	processing_seconds`

// Save persists a record, replacing any existing row with the same ID. The
// update is conditional: a row already in a terminal status only accepts
// writes that keep that status, so a stale clone held by a concurrent run
// cannot undo a cancellation or a completed result.
func (r *SQLiteRepository) Save(ctx context.Context, rec *Record) error {
	c := rec.Clone()

	settingsJSON, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			image_url = excluded.image_url,
			audio_url = excluded.audio_url,
			text_input = excluded.text_input,
			prompt = excluded.prompt,
			emotion = excluded.emotion,
			style = excluded.style,
			output_video_url = excluded.output_video_url,
			duration = excluded.duration,
			status = excluded.status,
			tier = excluded.tier,
			error_message = excluded.error_message,
			settings = excluded.settings,
			updated_at = excluded.updated_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			processing_seconds = excluded.processing_seconds
		WHERE videos.status NOT IN ('completed', 'failed', 'cancelled')
		   OR videos.status = excluded.status`,
		c.ID, c.UserID, c.ImageURL, c.AudioURL, c.TextInput, c.Prompt,
		c.Emotion, c.Style, c.OutputVideoURL, c.Duration, string(c.Status),
		string(c.Tier), c.Error, string(settingsJSON),
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
		toMillis(c.StartedAt), toMillis(c.CompletedAt),
		c.ProcessingSeconds,
	)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	if n == 0 {
		return ErrTerminalConflict
	}
	return nil
}

// FindByID retrieves a record by its ID.
func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM videos WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns all records, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM videos ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// Delete removes a record from storage.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// StaleProcessing returns processing records whose run started before the
// cutoff.
func (r *SQLiteRepository) StaleProcessing(ctx context.Context, cutoff time.Time) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM videos
		 WHERE status = ? AND started_at > 0 AND started_at < ?`,
		string(StatusProcessing), toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("query stale records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec          Record
		status, tier string
		settingsJSON string
		createdAt    int64
		updatedAt    int64
		startedAt    int64
		completedAt  int64
	)

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.ImageURL, &rec.AudioURL, &rec.TextInput,
		&rec.Prompt, &rec.Emotion, &rec.Style, &rec.OutputVideoURL,
		&rec.Duration, &status, &tier, &rec.Error, &settingsJSON,
		&createdAt, &updatedAt, &startedAt, &completedAt,
		&rec.ProcessingSeconds,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	rec.Tier = backend.Tier(tier)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	rec.StartedAt = fromMillis(startedAt)
	rec.CompletedAt = fromMillis(completedAt)

	if err := json.Unmarshal([]byte(settingsJSON), &rec.Settings); err != nil {
		rec.Settings = make(map[string]any)
	}

	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return result, nil
}

// toMillis converts a time to unix milliseconds, with zero time mapping to 0.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// fromMillis converts unix milliseconds back to a time, with 0 mapping to
// the zero time.
func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
