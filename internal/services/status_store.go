package services

import (
	"sync"

	domain "github.com/flss-ops/api/internal/domain"
)

const defaultStatusCapacity = 1024

// ReconciliationStatusStore keeps the last reconciliation outcome per draft
// order in process memory. Capacity is bounded; when full, the oldest entry
// is evicted. A restart loses the stored statuses, which is acceptable
// because any consumer can trigger a fresh reconciliation.
type ReconciliationStatusStore struct {
	mu       sync.RWMutex
	capacity int
	statuses map[int64]domain.ReconciliationStatus
	order    []int64
}

// NewReconciliationStatusStore builds a store with the given capacity; zero
// or negative selects the default.
func NewReconciliationStatusStore(capacity int) *ReconciliationStatusStore {
	if capacity <= 0 {
		capacity = defaultStatusCapacity
	}
	return &ReconciliationStatusStore{
		capacity: capacity,
		statuses: make(map[int64]domain.ReconciliationStatus, capacity),
	}
}

// Put records the latest outcome for a draft order, evicting the oldest
// tracked order when the store is at capacity.
func (s *ReconciliationStatusStore) Put(status domain.ReconciliationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[status.DraftOrderID]; !ok {
		if len(s.order) >= s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.statuses, oldest)
		}
		s.order = append(s.order, status.DraftOrderID)
	}
	s.statuses[status.DraftOrderID] = status
}

// Get returns the recorded status for a draft order, if any.
func (s *ReconciliationStatusStore) Get(draftOrderID int64) (domain.ReconciliationStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[draftOrderID]
	return status, ok
}

// Len reports how many orders currently have a recorded status.
func (s *ReconciliationStatusStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
