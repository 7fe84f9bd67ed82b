package transfer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"filebox/internal/blobstore"
	"filebox/internal/models"
)

const (
	DefaultSweepGracePeriod = 24 * time.Hour
	DefaultSweepBatchSize   = 500
)

// SweepOptions controls one reconciliation pass.
type SweepOptions struct {
	GracePeriod time.Duration
	BatchSize   int
	Apply       bool
}

// SweepResult summarizes one reconciliation pass.
type SweepResult struct {
	ScannedCount   int      `json:"scanned_count"`
	CandidateCount int      `json:"candidate_count"`
	DeletedCount   int      `json:"deleted_count"`
	FailedCount    int      `json:"failed_count"`
	ReclaimedBytes int64    `json:"reclaimed_bytes"`
	DryRun         bool     `json:"dry_run"`
	Candidates     []string `json:"candidates,omitempty"`
}

// Sweep finds blobs older than the grace period that no file reference
// points at, and deletes them when opts.Apply is set. Pending blobs from
// abandoned uploads are included.
func (s *Service) Sweep(ctx context.Context, opts SweepOptions) (SweepResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "transfer.Sweep")
	defer span.End()
	defer s.metrics.observe(ctx, "sweep", start)

	if opts.GracePeriod < 0 {
		err := fmt.Errorf("grace period must be >= 0: %w", models.ErrInvalidArgument)
		s.fail(ctx, span, "sweep", err)
		return SweepResult{}, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultSweepBatchSize
	}
	cutoff := s.now().UTC().Add(-opts.GracePeriod)
	result := SweepResult{DryRun: !opts.Apply}

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			s.fail(ctx, span, "sweep", err)
			return result, err
		}
		page, err := s.chunks.ListBlobs(ctx, blobstore.ListQuery{
			AfterID:        after,
			Limit:          opts.BatchSize,
			IncludePending: true,
			CreatedBefore:  cutoff,
		})
		if err != nil {
			s.fail(ctx, span, "sweep", err)
			return result, err
		}
		if len(page) == 0 {
			break
		}
		result.ScannedCount += len(page)

		ids := make([]string, len(page))
		for i, meta := range page {
			ids[i] = meta.ID
		}
		referenced, err := s.registry.ReferencedBlobs(ctx, ids)
		if err != nil {
			s.fail(ctx, span, "sweep", err)
			return result, err
		}

		for _, meta := range page {
			if referenced[meta.ID] {
				continue
			}
			result.CandidateCount++
			result.Candidates = append(result.Candidates, meta.ID)
			if !opts.Apply {
				continue
			}
			if err := s.chunks.Delete(ctx, meta.ID); err != nil {
				result.FailedCount++
				s.logger.Warn("sweep delete failed", "blob_id", meta.ID, "err", err)
				continue
			}
			result.DeletedCount++
			result.ReclaimedBytes += meta.Length
			s.metrics.swept.Add(ctx, 1)
		}

		after = page[len(page)-1].ID
		if len(page) < opts.BatchSize {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("filebox.sweep.candidates", result.CandidateCount),
		attribute.Int("filebox.sweep.deleted", result.DeletedCount),
		attribute.Bool("filebox.sweep.dry_run", result.DryRun),
	)
	s.metrics.operation(ctx, "sweep", "ok")
	s.logger.Info("sweep finished",
		"scanned", result.ScannedCount, "candidates", result.CandidateCount,
		"deleted", result.DeletedCount, "failed", result.FailedCount,
		"reclaimed_bytes", result.ReclaimedBytes, "dry_run", result.DryRun)
	return result, nil
}
