package store

import (
	"context"
	"time"

	"github.com/joescharf/coderev/internal/models"
)

// ReportSummary is the list-view projection of an archived report.
type ReportSummary struct {
	ReviewID       string                `json:"review_id"`
	Files          []string              `json:"files"`
	Score          int                   `json:"score"`
	Recommendation models.Recommendation `json:"recommendation"`
	TotalIssues    int                   `json:"total_issues"`
	TotalCost      float64               `json:"total_cost"`
	CreatedAt      time.Time             `json:"created_at"`
}

// ReportListFilter specifies filters for listing archived reports.
type ReportListFilter struct {
	Recommendation models.Recommendation
	Limit          int
}

// Store defines the persistence interface for the report archive. The live
// run registry is memory-only; the archive keeps completed reports across
// daemon restarts.
type Store interface {
	SaveReport(ctx context.Context, report *models.Report) error
	GetReport(ctx context.Context, reviewID string) (*models.Report, error)
	ListReports(ctx context.Context, filter ReportListFilter) ([]*ReportSummary, error)
	DeleteReport(ctx context.Context, reviewID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
