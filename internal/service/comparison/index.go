package comparison

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"carelane/internal/domain"
	models "carelane/internal/domain/models/contract"
	contractRepo "carelane/internal/domain/repositories/contract"
	contractSvc "carelane/internal/domain/services/contract"
)

// indexService implements ComparisonIndex over the persisted record
// store. Scoring is cosine similarity computed over the full corpus,
// which stays small (one record per document or reference plan).
type indexService struct {
	repo   contractRepo.ComparisonRepository
	logger *slog.Logger
}

// NewIndexService creates a new comparison index adapter.
func NewIndexService(repo contractRepo.ComparisonRepository, logger *slog.Logger) contractSvc.ComparisonIndex {
	return &indexService{repo: repo, logger: logger}
}

// Upsert replaces the record for id wholesale.
func (s *indexService) Upsert(ctx context.Context, id string, kind models.RecordKind, vector []float32, metadata map[string]string) error {
	if id == "" {
		return &domain.ValidationError{Message: "comparison record id is required"}
	}
	if len(vector) == 0 {
		return &domain.ValidationError{Message: "comparison record vector is empty"}
	}

	rec := &models.ComparisonRecord{
		ID:        id,
		Kind:      kind,
		Vector:    vector,
		Metadata:  metadata,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return err
	}

	s.logger.Debug("comparison record upserted", "record_id", id, "kind", kind, "dim", len(vector))
	return nil
}

// Query returns the k nearest records by descending cosine similarity,
// ties broken by most recent update.
func (s *indexService) Query(ctx context.Context, vector []float32, k int) ([]models.ComparisonHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be a positive integer, got %d", domain.ErrInvalidQuery, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", domain.ErrInvalidQuery)
	}

	records, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		hit       models.ComparisonHit
		updatedAt time.Time
	}
	results := make([]scored, 0, len(records))
	for _, rec := range records {
		score, ok := cosine(vector, rec.Vector)
		if !ok {
			// Dimension mismatch: stale record from an embedder change.
			// Skip rather than fail the whole query.
			s.logger.Warn("skipping comparison record with mismatched dimension",
				"record_id", rec.ID, "record_dim", len(rec.Vector), "query_dim", len(vector))
			continue
		}
		results = append(results, scored{
			hit: models.ComparisonHit{
				RecordID: rec.ID,
				Score:    score,
				Metadata: rec.Metadata,
			},
			updatedAt: rec.UpdatedAt,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].hit.Score != results[j].hit.Score {
			return results[i].hit.Score > results[j].hit.Score
		}
		return results[i].updatedAt.After(results[j].updatedAt)
	})

	if len(results) > k {
		results = results[:k]
	}
	hits := make([]models.ComparisonHit, len(results))
	for i, r := range results {
		hits[i] = r.hit
	}
	return hits, nil
}

// cosine returns the cosine similarity of a and b, or ok=false if the
// dimensions differ or either vector is zero.
func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
