package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/authcore/internal/shared"
)

// Paging bounds for user listings.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// RepositoryPort defines data access methods for principals.
type RepositoryPort interface {
	FindByID(ctx context.Context, id string) (User, error)
	FindByIdentifier(ctx context.Context, identifier string) (User, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filters ListFilters) ([]User, int, error)
}

// Page is one page of a user listing.
type Page struct {
	Users []User `json:"users"`
	shared.Pagination
}

// Service resolves principals for the authorization core.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns the principal with id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("users: empty id: %w", shared.ErrValidation)
	}
	return s.repo.FindByID(ctx, id)
}

// Lookup finds a principal by id, username or email.
func (s *Service) Lookup(ctx context.Context, identifier string) (User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return User{}, fmt.Errorf("users: empty identifier: %w", shared.ErrValidation)
	}
	user, err := s.repo.FindByID(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return User{}, err
	}
	return s.repo.FindByIdentifier(ctx, identifier)
}

// Exists reports whether a principal with id exists.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// List returns a page of principals.
func (s *Service) List(ctx context.Context, filters ListFilters) (Page, error) {
	if filters.Limit < 0 || filters.Offset < 0 {
		return Page{}, fmt.Errorf("users: negative paging: %w", shared.ErrValidation)
	}
	if filters.Limit == 0 {
		filters.Limit = DefaultLimit
	}
	if filters.Limit > MaxLimit {
		filters.Limit = MaxLimit
	}
	rows, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return Page{}, err
	}
	if rows == nil {
		rows = []User{}
	}
	return Page{Users: rows, Pagination: shared.NewPagination(filters.Limit, filters.Offset, total, len(rows))}, nil
}
