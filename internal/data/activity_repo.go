package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/ledger-console/internal/data/pgxutil"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	apperrors "github.com/target/ledger-console/internal/errors"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

const activityColumns = `id::text AS id, console_id, kind, outcome, email, error_code, created_at`

// ActivityRepo stores the auth activity log in PostgreSQL.
type ActivityRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewActivityRepo creates a new ActivityRepo with the given database connection.
func NewActivityRepo(db *sql.DB) *ActivityRepo {
	return &ActivityRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// WithTimeProvider overrides the clock used to stamp events without a CreatedAt.
func (r *ActivityRepo) WithTimeProvider(tp TimeProvider) *ActivityRepo {
	r.timeProvider = tp
	return r
}

func validKind(k domainauth.ActivityKind) bool {
	switch k {
	case domainauth.ActivityLogin, domainauth.ActivityRegister, domainauth.ActivityLogout, domainauth.ActivityRestore:
		return true
	}
	return false
}

// Record inserts one activity event. Missing ids and timestamps are filled in.
func (r *ActivityRepo) Record(ctx context.Context, evt domainauth.ActivityEvent) error {
	if strings.TrimSpace(evt.ConsoleID) == "" {
		return ErrConsoleIDRequired
	}
	if !validKind(evt.Kind) {
		return fmt.Errorf("%w: %q", ErrActivityKindInvalid, evt.Kind)
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = r.timeProvider.Now()
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO auth_activity (id, console_id, kind, outcome, email, error_code, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, evt.ID, evt.ConsoleID, string(evt.Kind), string(evt.Outcome),
			strings.TrimSpace(evt.Email), evt.ErrorCode, evt.CreatedAt.UTC())
		return execErr
	})
	if err != nil {
		return fmt.Errorf("record activity: %w", apperrors.MapDBError(err))
	}
	return nil
}

// List returns activity newest first, filtered by email (case-insensitive) and kind.
func (r *ActivityRepo) List(
	ctx context.Context,
	opts domainauth.ActivityListOptions,
) ([]domainauth.ActivityEvent, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 3)
	next := func() int { return len(args) + 1 }
	if email := strings.TrimSpace(opts.Email); email != "" {
		conditions = append(conditions, fmt.Sprintf("lower(email) = lower($%d)", next()))
		args = append(args, email)
	}
	if opts.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", next()))
		args = append(args, string(opts.Kind))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	query := fmt.Sprintf(
		`SELECT %s FROM auth_activity %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		activityColumns, where, next(),
	)
	args = append(args, limit)

	var out []domainauth.ActivityEvent
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[domainauth.ActivityEvent])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// GetByID returns a single activity event.
func (r *ActivityRepo) GetByID(ctx context.Context, id string) (*domainauth.ActivityEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrActivityNotFound
	}
	var out domainauth.ActivityEvent
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+activityColumns+` FROM auth_activity WHERE id = $1`, id)
		if err != nil {
			return err
		}
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.ActivityEvent])
		return err
	})
	if err != nil {
		if apperrors.IsNotFound(apperrors.MapDBError(err)) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("get activity: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// Prune deletes events recorded before cutoff and returns how many were removed.
func (r *ActivityRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM auth_activity WHERE created_at < $1`, cutoff.UTC())
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", apperrors.MapDBError(err))
	}
	return n, nil
}
