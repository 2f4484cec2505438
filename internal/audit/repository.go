package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/authcore/internal/platform/db"
)

const entryColumns = `id, occurred_at, action, actor_id, actor_username, target_type,
	target_id, target_name, details, ip_address, success`

// SQLRepository menyimpan entri audit di tabel audit_logs. Ia juga memenuhi Sink.
type SQLRepository struct {
	db      *sql.DB
	timeout time.Duration
}

var _ Sink = (*SQLRepository)(nil)

// NewRepository membuat repository audit.
func NewRepository(conn *sql.DB, timeout time.Duration) *SQLRepository {
	if timeout <= 0 {
		timeout = defaultAppendTimeout
	}
	return &SQLRepository{db: conn, timeout: timeout}
}

// Write menyisipkan satu entri.
func (r *SQLRepository) Write(ctx context.Context, entry Entry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("audit: encode details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.Timestamp.UTC(), string(entry.Action),
		nullable(entry.ActorID), nullable(entry.ActorUsername), string(entry.TargetType),
		nullable(entry.TargetID), nullable(entry.TargetName), string(details),
		nullable(entry.IPAddress), entry.Success)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", db.MapError(err))
	}
	return nil
}

// Query mengembalikan entri yang cocok beserta total tanpa paging.
func (r *SQLRepository) Query(ctx context.Context, filters Filters) ([]Entry, int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	where, args := buildWhere(filters)
	var (
		entries []Entry
		total   int
	)
	err := db.WithTx(ctx, r.db, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
			return err
		}
		n := len(args)
		pageArgs := append(args, filters.Limit, filters.Offset)
		rows, err := tx.QueryContext(ctx, `SELECT `+entryColumns+` FROM audit_logs`+where+
			` ORDER BY occurred_at DESC, id DESC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("audit: query: %w", db.MapError(err))
	}
	return entries, total, nil
}

// Get mengambil satu entri berdasarkan id.
func (r *SQLRepository) Get(ctx context.Context, id string) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM audit_logs WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: get %s: %w", id, db.MapError(err))
	}
	return entry, nil
}

func buildWhere(filters Filters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(column, op string, value any) {
		args = append(args, value)
		clauses = append(clauses, column+" "+op+" $"+strconv.Itoa(len(args)))
	}
	if filters.Action != "" {
		add("action", "=", string(filters.Action))
	}
	if filters.ActorID != "" {
		add("actor_id", "=", filters.ActorID)
	}
	if filters.ActorUsername != "" {
		add("actor_username", "=", filters.ActorUsername)
	}
	if filters.TargetType != "" {
		add("target_type", "=", string(filters.TargetType))
	}
	if filters.TargetID != "" {
		add("target_id", "=", filters.TargetID)
	}
	if !filters.Start.IsZero() {
		add("occurred_at", ">=", filters.Start.UTC())
	}
	if !filters.End.IsZero() {
		add("occurred_at", "<=", filters.End.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry                                        Entry
		action, targetType                           string
		actorID, actorUsername, targetID, targetName sql.NullString
		ipAddress                                    sql.NullString
		details                                      []byte
	)
	if err := row.Scan(&entry.ID, &entry.Timestamp, &action, &actorID, &actorUsername, &targetType,
		&targetID, &targetName, &details, &ipAddress, &entry.Success); err != nil {
		return Entry{}, err
	}
	entry.Timestamp = entry.Timestamp.UTC()
	entry.Action = Action(action)
	entry.TargetType = TargetType(targetType)
	entry.ActorID = actorID.String
	entry.ActorUsername = actorUsername.String
	entry.TargetID = targetID.String
	entry.TargetName = targetName.String
	entry.IPAddress = ipAddress.String
	entry.Details = map[string]any{}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			return Entry{}, fmt.Errorf("audit: decode details: %w", err)
		}
	}
	return entry, nil
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
