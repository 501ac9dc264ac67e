package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joescharf/coderev/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a report id is not in the archive.
var ErrNotFound = errors.New("report not found")

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveReport archives a completed report. Saving the same review id again
// replaces the previous row.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *models.Report) error {
	files, err := json.Marshal(report.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	var completedAt any
	if report.Metadata.CompletedAt != nil {
		completedAt = report.Metadata.CompletedAt.UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports
			(review_id, files, score, recommendation, summary, total_issues, total_cost, report, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ReviewID, string(files), report.Score, string(report.Recommendation),
		report.Summary, report.Statistics.TotalIssues, report.Statistics.TotalCost,
		string(body), report.Metadata.CreatedAt.UTC(), completedAt,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// GetReport loads the full archived report.
func (s *SQLiteStore) GetReport(ctx context.Context, reviewID string) (*models.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT report FROM reports WHERE review_id = ?", reviewID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("unmarshal report %s: %w", reviewID, err)
	}
	return &report, nil
}

// ListReports returns summaries newest first.
func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportListFilter) ([]*ReportSummary, error) {
	query := `SELECT review_id, files, score, recommendation, total_issues, total_cost, created_at
		FROM reports`
	var args []any
	if filter.Recommendation != "" {
		query += " WHERE recommendation = ?"
		args = append(args, string(filter.Recommendation))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var summaries []*ReportSummary
	for rows.Next() {
		var sm ReportSummary
		var files string
		var rec string
		var createdAt time.Time
		if err := rows.Scan(&sm.ReviewID, &files, &sm.Score, &rec, &sm.TotalIssues, &sm.TotalCost, &createdAt); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if err := json.Unmarshal([]byte(files), &sm.Files); err != nil {
			return nil, fmt.Errorf("unmarshal files for %s: %w", sm.ReviewID, err)
		}
		sm.Recommendation = models.Recommendation(rec)
		sm.CreatedAt = createdAt.UTC()
		summaries = append(summaries, &sm)
	}
	return summaries, rows.Err()
}

// DeleteReport removes an archived report.
func (s *SQLiteStore) DeleteReport(ctx context.Context, reviewID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM reports WHERE review_id = ?", reviewID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
