package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/odyssey-erp/authcore/internal/shared"
)

type stubRepo struct {
	entries   []Entry
	total     int
	calls     int
	lastQuery Filters
	getErr    error
}

func (s *stubRepo) Query(ctx context.Context, filters Filters) ([]Entry, int, error) {
	s.calls++
	s.lastQuery = filters
	return s.entries, s.total, nil
}

func (s *stubRepo) Get(ctx context.Context, id string) (Entry, error) {
	if s.getErr != nil {
		return Entry{}, s.getErr
	}
	return Entry{ID: id}, nil
}

func TestServiceQueryDefaultsLimit(t *testing.T) {
	repo := &stubRepo{entries: []Entry{{ID: "a"}, {ID: "b"}}, total: 2}
	svc := NewService(repo, 0)

	page, err := svc.Query(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if repo.lastQuery.Limit != DefaultLimit {
		t.Fatalf("expected limit %d, got %d", DefaultLimit, repo.lastQuery.Limit)
	}
	if page.Total != 2 || page.HasMore {
		t.Fatalf("unexpected paging: %+v", page.Pagination)
	}
}

func TestServiceQueryCapsLimit(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, 0)

	if _, err := svc.Query(context.Background(), Filters{Limit: 50_000}); err != nil {
		t.Fatalf("query: %v", err)
	}
	if repo.lastQuery.Limit != MaxLimit {
		t.Fatalf("expected limit capped to %d, got %d", MaxLimit, repo.lastQuery.Limit)
	}

	svc = NewService(repo, 200)
	if _, err := svc.Query(context.Background(), Filters{Limit: 500}); err != nil {
		t.Fatalf("query: %v", err)
	}
	if repo.lastQuery.Limit != 200 {
		t.Fatalf("expected configured cap 200, got %d", repo.lastQuery.Limit)
	}
}

func TestServiceQueryHasMore(t *testing.T) {
	repo := &stubRepo{entries: []Entry{{ID: "a"}, {ID: "b"}}, total: 5}
	svc := NewService(repo, 0)

	page, err := svc.Query(context.Background(), Filters{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !page.HasMore {
		t.Fatalf("expected has_more with 4 of 5 rows seen")
	}
	if page.Offset != 2 || page.Limit != 2 {
		t.Fatalf("unexpected paging: %+v", page.Pagination)
	}
}

func TestServiceQueryRejectsInvalidFilters(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	cases := map[string]Filters{
		"start after end":     {Start: now, End: now.Add(-time.Hour)},
		"unknown action":      {Action: "ROLE_DELETED"},
		"unknown target type": {TargetType: "GROUP"},
		"negative limit":      {Limit: -1},
		"negative offset":     {Offset: -5},
	}
	for name, filters := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &stubRepo{}
			svc := NewService(repo, 0)
			_, err := svc.Query(context.Background(), filters)
			if !errors.Is(err, shared.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || len(verr.FieldErrors()) == 0 {
				t.Fatalf("expected field errors, got %v", err)
			}
			if repo.calls != 0 {
				t.Fatalf("repository must not be queried for invalid filters")
			}
		})
	}
}

func TestServiceGetMapsNotFound(t *testing.T) {
	svc := NewService(&stubRepo{getErr: shared.ErrNotFound}, 0)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "  "); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceWithoutRepository(t *testing.T) {
	svc := NewService(nil, 0)
	if _, err := svc.Query(context.Background(), Filters{}); err == nil {
		t.Fatalf("expected error without repository")
	}
}
