package memory

import (
	"context"
	"errors"
	"testing"

	domain "github.com/flss-ops/api/internal/domain"
	"github.com/flss-ops/api/internal/repositories"
)

func TestPriceListRepositoryRoundTrip(t *testing.T) {
	repo := NewPriceListRepository()
	ctx := context.Background()

	list := domain.PriceList{
		ID:   "pl1",
		Name: "Wholesale",
		Rules: []domain.PriceRule{{
			ID:     "r1",
			Action: domain.RuleAction{Type: domain.ActionFixedUnitPrice, Value: 60},
			Active: true,
		}},
	}
	if err := repo.Insert(ctx, list); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stored, err := repo.FindByID(ctx, "pl1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Name != "Wholesale" || len(stored.Rules) != 1 {
		t.Fatalf("unexpected stored list: %+v", stored)
	}

	// Mutating the returned copy must not leak back into the store.
	stored.Rules[0].Action.Value = 1
	again, _ := repo.FindByID(ctx, "pl1")
	if again.Rules[0].Action.Value != 60 {
		t.Fatalf("expected stored rules isolated from caller mutation, got %v", again.Rules[0].Action.Value)
	}
}

func TestPriceListRepositoryInsertConflict(t *testing.T) {
	repo := NewPriceListRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, domain.PriceList{ID: "pl1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := repo.Insert(ctx, domain.PriceList{ID: "pl1"})
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestPriceListRepositoryNotFound(t *testing.T) {
	repo := NewPriceListRepository()
	ctx := context.Background()

	_, err := repo.FindByID(ctx, "missing")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := repo.Update(ctx, domain.PriceList{ID: "missing"}); !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestPriceListRepositoryListSortsByName(t *testing.T) {
	repo := NewPriceListRepository()
	ctx := context.Background()

	_ = repo.Insert(ctx, domain.PriceList{ID: "b", Name: "Retail"})
	_ = repo.Insert(ctx, domain.PriceList{ID: "a", Name: "Agents"})

	lists, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lists) != 2 || lists[0].Name != "Agents" || lists[1].Name != "Retail" {
		t.Fatalf("expected name-sorted lists, got %+v", lists)
	}
}

func TestPriceListRepositoryDeleteIsIdempotent(t *testing.T) {
	repo := NewPriceListRepository()
	ctx := context.Background()

	_ = repo.Insert(ctx, domain.PriceList{ID: "pl1"})
	if err := repo.Delete(ctx, "pl1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, "pl1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, "pl1"); err == nil {
		t.Fatal("expected the list gone")
	}
}
