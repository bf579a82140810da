package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/roastd/internal/roast"
)

// RecordStore keeps content records in a slice.
type RecordStore struct {
	mu      sync.RWMutex
	records []roast.ContentRecord
	ids     roast.IDGenerator
	clock   roast.Clock
}

// NewRecordStore constructs a RecordStore. ids and clock fill in blank IDs and
// creation times.
func NewRecordStore(ids roast.IDGenerator, clock roast.Clock) *RecordStore {
	return &RecordStore{ids: ids, clock: clock}
}

// CreateRecord appends a record and returns its ID.
func (s *RecordStore) CreateRecord(_ context.Context, record roast.ContentRecord) (string, error) {
	if record.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return "", fmt.Errorf("generate record id: %w", err)
		}
		record.ID = id
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.clock.Now().UTC()
	}
	if record.Status == "" {
		record.Status = roast.RecordCompleted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return record.ID, nil
}

// ListRecent returns up to limit completed records, newest first.
func (s *RecordStore) ListRecent(_ context.Context, limit int) ([]roast.ContentRecord, error) {
	s.mu.RLock()
	out := make([]roast.ContentRecord, 0, len(s.records))
	for _, r := range s.records {
		if r.Status == roast.RecordCompleted {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
