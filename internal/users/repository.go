package users

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/authcore/internal/platform/db"
)

const defaultTimeout = 3 * time.Second

// Repository provides SQL backed principal lookups.
type Repository struct {
	db      *sql.DB
	timeout time.Duration
	now     func() time.Time
}

// NewRepository constructs a repository.
func NewRepository(conn *sql.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Repository{db: conn, timeout: timeout, now: time.Now}
}

// Create inserts a principal record, assigning an id when empty.
func (r *Repository) Create(ctx context.Context, user User) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = r.now().UTC().Truncate(time.Microsecond)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, display_name, created_at) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, nullable(user.Email), user.DisplayName, user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("users: create: %w", db.MapError(err))
	}
	return user, nil
}

// FindByID fetches a principal by id.
func (r *Repository) FindByID(ctx context.Context, id string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT id, username, email, display_name, created_at FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("users: find %s: %w", id, db.MapError(err))
	}
	return user, nil
}

// FindByIdentifier fetches a principal by username or email.
func (r *Repository) FindByIdentifier(ctx context.Context, identifier string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, display_name, created_at FROM users WHERE username = $1 OR email = $1 ORDER BY username LIMIT 1`,
		identifier)
	user, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("users: find %q: %w", identifier, db.MapError(err))
	}
	return user, nil
}

// Exists reports whether a principal with id exists.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = $1`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("users: exists: %w", db.MapError(err))
	}
	return count > 0, nil
}

// List returns a page of principals ordered by username and the total match count.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	where := ""
	args := []any{}
	if q := strings.TrimSpace(filters.Query); q != "" {
		where = ` WHERE username LIKE $1 OR email LIKE $1 OR display_name LIKE $1`
		args = append(args, "%"+q+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", db.MapError(err))
	}

	query := fmt.Sprintf(`SELECT id, username, email, display_name, created_at FROM users%s ORDER BY username LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, filters.Limit, filters.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", db.MapError(err))
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("users: scan: %w", db.MapError(err))
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("users: iterate: %w", db.MapError(err))
	}
	return out, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		user  User
		email sql.NullString
	)
	if err := row.Scan(&user.ID, &user.Username, &email, &user.DisplayName, &user.CreatedAt); err != nil {
		return User{}, err
	}
	user.Email = email.String
	return user, nil
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
