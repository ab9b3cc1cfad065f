package repository

import (
	"context"

	"peerscan/internal/domain"
)

// RunRepository stores discovery run summaries
type RunRepository interface {
	// RecordRun appends a summary
	RecordRun(ctx context.Context, run domain.RunSummary) error
	// ListRuns returns up to limit summaries, newest first
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
	// Close releases resources
	Close() error
}

// Nop is a RunRepository that keeps nothing. It serves when no database is configured.
type Nop struct{}

func (Nop) RecordRun(context.Context, domain.RunSummary) error { return nil }

func (Nop) ListRuns(context.Context, int) ([]domain.RunSummary, error) {
	return []domain.RunSummary{}, nil
}

func (Nop) Close() error { return nil }
