package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	domain "github.com/flss-ops/api/internal/domain"
)

// PriceListRepository is an in-memory PriceListRepository used by tests and
// local runs without a Firestore project.
type PriceListRepository struct {
	mu    sync.RWMutex
	lists map[string]domain.PriceList
}

// NewPriceListRepository constructs an empty in-memory repository.
func NewPriceListRepository() *PriceListRepository {
	return &PriceListRepository{lists: make(map[string]domain.PriceList)}
}

type notFoundError struct{ id string }

func (e notFoundError) Error() string       { return fmt.Sprintf("price list %s not found", e.id) }
func (e notFoundError) IsNotFound() bool    { return true }
func (e notFoundError) IsConflict() bool    { return false }
func (e notFoundError) IsUnavailable() bool { return false }

type conflictError struct{ id string }

func (e conflictError) Error() string       { return fmt.Sprintf("price list %s already exists", e.id) }
func (e conflictError) IsNotFound() bool    { return false }
func (e conflictError) IsConflict() bool    { return true }
func (e conflictError) IsUnavailable() bool { return false }

// List returns every stored list ordered by name.
func (r *PriceListRepository) List(ctx context.Context) ([]domain.PriceList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lists := make([]domain.PriceList, 0, len(r.lists))
	for _, list := range r.lists {
		lists = append(lists, clonePriceList(list))
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].Name < lists[j].Name })
	return lists, nil
}

// FindByID loads one list.
func (r *PriceListRepository) FindByID(ctx context.Context, priceListID string) (domain.PriceList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, ok := r.lists[strings.TrimSpace(priceListID)]
	if !ok {
		return domain.PriceList{}, notFoundError{id: priceListID}
	}
	return clonePriceList(list), nil
}

// Insert stores a new list, failing on a duplicate id.
func (r *PriceListRepository) Insert(ctx context.Context, list domain.PriceList) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lists[list.ID]; ok {
		return conflictError{id: list.ID}
	}
	r.lists[list.ID] = clonePriceList(list)
	return nil
}

// Update replaces the stored state.
func (r *PriceListRepository) Update(ctx context.Context, list domain.PriceList) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lists[list.ID]; !ok {
		return notFoundError{id: list.ID}
	}
	r.lists[list.ID] = clonePriceList(list)
	return nil
}

// Delete removes the list. Deleting a missing list is not an error.
func (r *PriceListRepository) Delete(ctx context.Context, priceListID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.lists, strings.TrimSpace(priceListID))
	return nil
}

func clonePriceList(list domain.PriceList) domain.PriceList {
	out := list
	out.Rules = make([]domain.PriceRule, len(list.Rules))
	copy(out.Rules, list.Rules)
	return out
}
