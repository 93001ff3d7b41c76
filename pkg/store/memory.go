package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medcode-ai/opnote/pkg/assembler"
)

// MemoryStore is an in-process ArtifactStore.
type MemoryStore struct {
	mu      sync.RWMutex
	outputs map[string]StoredOutput
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{outputs: make(map[string]StoredOutput)}
}

// Save implements ArtifactStore.
func (s *MemoryStore) Save(ctx context.Context, output assembler.CaseOutput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.outputs[output.CaseID]
	created := now
	if ok {
		created = existing.CreatedAt
	}
	s.outputs[output.CaseID] = StoredOutput{
		CaseID:    output.CaseID,
		Output:    output,
		CreatedAt: created,
		UpdatedAt: now,
	}
	return nil
}

// Get implements ArtifactStore.
func (s *MemoryStore) Get(ctx context.Context, caseID string) (*StoredOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outputs[caseID]
	if !ok {
		return nil, ErrNotFound
	}
	return &out, nil
}

// List implements ArtifactStore, newest first.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]StoredOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	outputs := make([]StoredOutput, 0, len(s.outputs))
	for _, o := range s.outputs {
		outputs = append(outputs, o)
	}
	s.mu.RUnlock()

	sort.Slice(outputs, func(i, j int) bool { return outputs[i].UpdatedAt.After(outputs[j].UpdatedAt) })
	if limit > 0 && len(outputs) > limit {
		outputs = outputs[:limit]
	}
	return outputs, nil
}

// Close implements ArtifactStore.
func (s *MemoryStore) Close() {}
