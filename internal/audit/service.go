package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/authcore/internal/shared"
)

// Batas paging query audit.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Repository menyediakan akses baca ke ledger audit.
type Repository interface {
	Query(ctx context.Context, filters Filters) ([]Entry, int, error)
	Get(ctx context.Context, id string) (Entry, error)
}

// Service mengoordinasikan query audit.
type Service struct {
	repo     Repository
	maxLimit int
}

// NewService membuat service audit. maxLimit <= 0 berarti MaxLimit.
func NewService(repo Repository, maxLimit int) *Service {
	if maxLimit <= 0 || maxLimit > MaxLimit {
		maxLimit = MaxLimit
	}
	return &Service{repo: repo, maxLimit: maxLimit}
}

// ValidationError menjelaskan filter yang ditolak.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, field+": "+reason)
	}
	return "audit: invalid filters: " + strings.Join(parts, ", ")
}

// Unwrap menghubungkan ke taksonomi error bersama.
func (e *ValidationError) Unwrap() error { return shared.ErrValidation }

// FieldErrors implements httpx.FieldErrors.
func (e *ValidationError) FieldErrors() map[string]string { return e.Fields }

// Normalize memvalidasi filter dan mengisi default paging tanpa menyentuh repository.
func (s *Service) Normalize(filters Filters) (Filters, error) {
	fields := map[string]string{}
	filters.ActorID = strings.TrimSpace(filters.ActorID)
	filters.ActorUsername = strings.TrimSpace(filters.ActorUsername)
	filters.TargetID = strings.TrimSpace(filters.TargetID)

	if filters.Action != "" && !filters.Action.Valid() {
		fields["action"] = "unknown action"
	}
	if filters.TargetType != "" && !filters.TargetType.Valid() {
		fields["target_type"] = "unknown target type"
	}
	if !filters.Start.IsZero() && !filters.End.IsZero() && filters.Start.After(filters.End) {
		fields["start"] = "must not be after end"
	}
	if filters.Limit < 0 {
		fields["limit"] = "must not be negative"
	}
	if filters.Offset < 0 {
		fields["offset"] = "must not be negative"
	}
	if len(fields) > 0 {
		return Filters{}, &ValidationError{Fields: fields}
	}

	if filters.Limit == 0 {
		filters.Limit = DefaultLimit
	}
	if filters.Limit > s.maxLimit {
		filters.Limit = s.maxLimit
	}
	return filters, nil
}

// Query mengambil satu halaman entri, terbaru lebih dulu.
func (s *Service) Query(ctx context.Context, filters Filters) (Page, error) {
	if s.repo == nil {
		return Page{}, fmt.Errorf("audit: repository not configured")
	}
	filters, err := s.Normalize(filters)
	if err != nil {
		return Page{}, err
	}
	entries, total, err := s.repo.Query(ctx, filters)
	if err != nil {
		return Page{}, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Page{
		Entries:    entries,
		Pagination: shared.NewPagination(filters.Limit, filters.Offset, total, len(entries)),
	}, nil
}

// Get mengambil satu entri.
func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	if s.repo == nil {
		return Entry{}, fmt.Errorf("audit: repository not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Entry{}, fmt.Errorf("audit: get: empty id: %w", shared.ErrValidation)
	}
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Entry{}, fmt.Errorf("audit: entry %s: %w", id, shared.ErrNotFound)
		}
		return Entry{}, err
	}
	return entry, nil
}
