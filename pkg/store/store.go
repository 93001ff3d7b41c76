// Package store persists assembled case outputs. The Postgres store is
// the production backend; the memory store serves tests and local runs
// without a database.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/medcode-ai/opnote/pkg/assembler"
)

// ErrNotFound is returned when no artifact exists for a case.
var ErrNotFound = errors.New("case output not found")

// StoredOutput wraps an artifact with its persistence metadata.
type StoredOutput struct {
	CaseID    string               `json:"caseId"`
	Output    assembler.CaseOutput `json:"output"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// ArtifactStore persists and retrieves case outputs. Save upserts on
// case ID.
type ArtifactStore interface {
	Save(ctx context.Context, output assembler.CaseOutput) error
	Get(ctx context.Context, caseID string) (*StoredOutput, error)
	List(ctx context.Context, limit int) ([]StoredOutput, error)
	Close()
}
