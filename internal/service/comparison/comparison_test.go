package comparison

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelane/internal/domain"
	models "carelane/internal/domain/models/contract"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memComparisonRepo is an in-memory ComparisonRepository.
type memComparisonRepo struct {
	mu      sync.Mutex
	records map[string]models.ComparisonRecord
}

func newMemComparisonRepo() *memComparisonRepo {
	return &memComparisonRepo{records: make(map[string]models.ComparisonRecord)}
}

func (r *memComparisonRepo) Upsert(ctx context.Context, rec *models.ComparisonRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = *rec
	return nil
}

func (r *memComparisonRepo) GetAll(ctx context.Context) ([]models.ComparisonRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ComparisonRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func TestUpsertValidates(t *testing.T) {
	index := NewIndexService(newMemComparisonRepo(), testLogger())
	ctx := context.Background()

	err := index.Upsert(ctx, "", models.RecordKindPlan, []float32{1}, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = index.Upsert(ctx, "plan:gold", models.RecordKindPlan, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpsertReplacesWholesale(t *testing.T) {
	repo := newMemComparisonRepo()
	index := NewIndexService(repo, testLogger())
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, "plan:gold", models.RecordKindPlan, []float32{1, 0}, map[string]string{"tier": "gold"}))
	require.NoError(t, index.Upsert(ctx, "plan:gold", models.RecordKindPlan, []float32{0, 1}, map[string]string{"tier": "platinum"}))

	records, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []float32{0, 1}, records[0].Vector)
	assert.Equal(t, "platinum", records[0].Metadata["tier"])
}

func TestQueryOrdersByCosineSimilarity(t *testing.T) {
	index := NewIndexService(newMemComparisonRepo(), testLogger())
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, "plan:aligned", models.RecordKindPlan, []float32{1, 0}, nil))
	require.NoError(t, index.Upsert(ctx, "plan:diagonal", models.RecordKindPlan, []float32{1, 1}, nil))
	require.NoError(t, index.Upsert(ctx, "plan:orthogonal", models.RecordKindPlan, []float32{0, 1}, nil))

	hits, err := index.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "plan:aligned", hits[0].RecordID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "plan:diagonal", hits[1].RecordID)
	assert.InDelta(t, 1/math.Sqrt2, hits[1].Score, 1e-9)
	assert.Equal(t, "plan:orthogonal", hits[2].RecordID)
}

func TestQueryTruncatesToK(t *testing.T) {
	index := NewIndexService(newMemComparisonRepo(), testLogger())
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, "a", models.RecordKindPlan, []float32{1, 0}, nil))
	require.NoError(t, index.Upsert(ctx, "b", models.RecordKindPlan, []float32{0.9, 0.1}, nil))

	hits, err := index.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestQueryBreaksTiesByRecency(t *testing.T) {
	repo := newMemComparisonRepo()
	index := NewIndexService(repo, testLogger())
	ctx := context.Background()

	// Two identical vectors, upserted with distinct timestamps.
	require.NoError(t, repo.Upsert(ctx, &models.ComparisonRecord{
		ID: "plan:old", Kind: models.RecordKindPlan, Vector: []float32{1, 0},
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, repo.Upsert(ctx, &models.ComparisonRecord{
		ID: "plan:new", Kind: models.RecordKindPlan, Vector: []float32{1, 0},
		UpdatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}))

	hits, err := index.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "plan:new", hits[0].RecordID)
	assert.Equal(t, "plan:old", hits[1].RecordID)
}

func TestQuerySkipsMismatchedDimensions(t *testing.T) {
	index := NewIndexService(newMemComparisonRepo(), testLogger())
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, "plan:stale", models.RecordKindPlan, []float32{1, 0, 0}, nil))
	require.NoError(t, index.Upsert(ctx, "plan:current", models.RecordKindPlan, []float32{1, 0}, nil))

	hits, err := index.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "plan:current", hits[0].RecordID)
}

func TestQueryRejectsInvalidInput(t *testing.T) {
	index := NewIndexService(newMemComparisonRepo(), testLogger())
	ctx := context.Background()

	_, err := index.Query(ctx, []float32{1}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	_, err = index.Query(ctx, nil, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestLocalEmbedderDeterministic(t *testing.T) {
	embedder := NewLocalEmbedder(64)
	ctx := context.Background()

	first, err := embedder.Embed(ctx, "coverage for specialist visits")
	require.NoError(t, err)
	second, err := embedder.Embed(ctx, "coverage for specialist visits")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	// Non-empty text yields a unit vector.
	var norm float64
	for _, v := range first {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestLocalEmbedderRoundTripFindsOwnText(t *testing.T) {
	embedder := NewLocalEmbedder(128)
	index := NewIndexService(newMemComparisonRepo(), testLogger())
	ctx := context.Background()

	texts := map[string]string{
		"plan:dental":  "dental coverage cleanings fillings and orthodontics",
		"plan:vision":  "vision coverage annual exams frames and lenses",
		"plan:hearing": "hearing aids and audiology services coverage",
	}
	for id, text := range texts {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		require.NoError(t, index.Upsert(ctx, id, models.RecordKindPlan, vec, nil))
	}

	query, err := embedder.Embed(ctx, "vision coverage annual exams frames and lenses")
	require.NoError(t, err)
	hits, err := index.Query(ctx, query, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "plan:vision", hits[0].RecordID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}
