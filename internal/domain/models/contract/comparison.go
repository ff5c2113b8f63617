package contract

import "time"

// RecordKind distinguishes indexed documents from reference insurance
// plans inside the comparison index.
type RecordKind string

const (
	RecordKindDocument RecordKind = "document"
	RecordKindPlan     RecordKind = "plan"
)

// ComparisonRecord is a vector embedding plus metadata for either a
// signed document or a reference insurance plan. Records are never
// mutated in place; re-indexing replaces them wholesale.
type ComparisonRecord struct {
	ID        string            `json:"id" db:"id"`
	Kind      RecordKind        `json:"kind" db:"kind"`
	Vector    []float32         `json:"-" db:"vector"`
	Metadata  map[string]string `json:"metadata,omitempty" db:"metadata"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// ComparisonHit is one similarity-search result, ordered by descending
// score with ties broken by most recent UpdatedAt.
type ComparisonHit struct {
	RecordID string            `json:"record_id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DocumentRecordID returns the comparison-index id for a document.
func DocumentRecordID(docID string) string { return "doc:" + docID }

// PlanRecordID returns the comparison-index id for a reference plan.
func PlanRecordID(planID string) string { return "plan:" + planID }
