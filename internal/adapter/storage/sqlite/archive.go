// Package sqlite persists a history of terminal jobs for the stats and
// recent-jobs endpoints. It is observational only: in-flight job state lives
// in the in-memory store and is lost on restart by design.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/convertd/convertd/internal/domain"
	"github.com/convertd/convertd/internal/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Archive struct {
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

func NewArchive(dataDir string) (*Archive, error) {
	registerHook()

	dbPath := dataDir + "/convertd.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
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

	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) Record(job *domain.ArchivedJob) error {
	_, err := a.db.ExecContext(context.Background(), `
		INSERT INTO job_history (
			id, kind, status, error_message,
			total_items, completed_items, failed_items,
			created_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			completed_items = excluded.completed_items,
			failed_items = excluded.failed_items,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms`,
		job.ID, string(job.Kind), string(job.Status), job.ErrorMessage,
		job.TotalItems, job.CompletedItems, job.FailedItems,
		job.CreatedAt, job.CompletedAt, job.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert job history: %w", err)
	}
	return nil
}

func (a *Archive) Stats() (*domain.ArchiveStats, error) {
	rows, err := a.db.QueryContext(context.Background(),
		`SELECT status, COUNT(*) FROM job_history GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	stats := &domain.ArchiveStats{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch domain.JobStatus(status) {
		case domain.JobStatusDone:
			stats.Done = count
		case domain.JobStatusError:
			stats.Error = count
		case domain.JobStatusCancelled:
			stats.Cancelled = count
		}
	}
	return stats, rows.Err()
}

func (a *Archive) Recent(limit int) ([]*domain.ArchivedJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(context.Background(), `
		SELECT id, kind, status, error_message,
			total_items, completed_items, failed_items,
			created_at, completed_at, duration_ms
		FROM job_history
		ORDER BY completed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*domain.ArchivedJob
	for rows.Next() {
		var j domain.ArchivedJob
		var kind, status string
		var durationMS int64
		if err := rows.Scan(&j.ID, &kind, &status, &j.ErrorMessage,
			&j.TotalItems, &j.CompletedItems, &j.FailedItems,
			&j.CreatedAt, &j.CompletedAt, &durationMS); err != nil {
			return nil, err
		}
		j.Kind = domain.JobKind(kind)
		j.Status = domain.JobStatus(status)
		j.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &j)
	}
	return out, rows.Err()
}

var _ port.JobArchive = (*Archive)(nil)
