package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/collegeconnect/collegeconnect-hub/internal/domain/shared"
	"github.com/collegeconnect/collegeconnect-hub/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const userColumns = `
	id, email, full_name, role, verification_status,
	admission_year, graduation_year, current_year, is_graduated,
	role_last_updated, created_at, updated_at
`

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn         Querier
	queryTimeout time.Duration
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn Querier, queryTimeout time.Duration) *UserRepository {
	return &UserRepository{conn: conn, queryTimeout: queryTimeout}
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create creates a new user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.conn.Exec(ctx, query,
		u.ID,
		u.Email,
		u.FullName,
		string(u.Role),
		string(u.VerificationStatus),
		u.AdmissionYear,
		u.GraduationYear,
		u.CurrentYear,
		u.Graduated,
		u.RoleLastUpdated,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID returns a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// UpdateAcademicYears saves admission and graduation years.
func (r *UserRepository) UpdateAcademicYears(ctx context.Context, id string, admission, graduation *int) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return updateYears(ctx, r.conn, id, admission, graduation)
}

// UpdateStanding saves role, current_year, is_graduated and role_last_updated.
// The year and the graduated flag are merged with the stored values so that a
// concurrent writer can never move them backwards.
func (r *UserRepository) UpdateStanding(ctx context.Context, u *user.User) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return updateStanding(ctx, r.conn, u)
}

// UpdateAcademicProfile saves years and standing in one transaction when the
// connection supports it.
func (r *UserRepository) UpdateAcademicProfile(ctx context.Context, u *user.User) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	write := func(q Querier) error {
		if err := updateYears(ctx, q, u.ID, u.AdmissionYear, u.GraduationYear); err != nil {
			return err
		}
		return updateStanding(ctx, q, u)
	}

	tx, ok := r.conn.(TxRunner)
	if !ok {
		return write(r.conn)
	}
	return tx.WithTx(ctx, DefaultTxOptions(), func(t pgx.Tx) error {
		return write(t)
	})
}

func updateYears(ctx context.Context, q Querier, id string, admission, graduation *int) error {
	query := `
		UPDATE users
		SET admission_year = $2, graduation_year = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := q.Exec(ctx, query, id, admission, graduation)
	if err != nil {
		if IsCheckViolation(err) {
			return shared.ErrGraduationBeforeAdmission
		}
		return fmt.Errorf("failed to update academic years: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}

	return nil
}

func updateStanding(ctx context.Context, q Querier, u *user.User) error {
	query := `
		UPDATE users
		SET role = $2,
			current_year = GREATEST(current_year, $3),
			is_graduated = is_graduated OR $4,
			role_last_updated = COALESCE($5, role_last_updated),
			updated_at = $6
		WHERE id = $1
	`

	result, err := q.Exec(ctx, query,
		u.ID,
		string(u.Role),
		u.CurrentYear,
		u.Graduated,
		u.RoleLastUpdated,
		u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update standing: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cohort selection
// ─────────────────────────────────────────────────────────────────────────────

// FindCohort returns users matching a cohort filter, ordered by ID.
func (r *UserRepository) FindCohort(ctx context.Context, q user.CohortQuery) ([]*user.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query, args, err := buildCohortQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return users, nil
}

// buildCohortQuery translates a cohort filter into SQL.
func buildCohortQuery(q user.CohortQuery) (string, []any, error) {
	if len(q.Roles) == 0 {
		return "", nil, fmt.Errorf("%w: cohort query without roles", shared.ErrInvalidInput)
	}

	var op string
	switch q.Comparison {
	case user.YearEqual:
		op = "="
	case user.YearBefore:
		op = "<"
	default:
		return "", nil, fmt.Errorf("%w: unknown year comparison %q", shared.ErrInvalidInput, q.Comparison)
	}

	roles := make([]string, len(q.Roles))
	for i, role := range q.Roles {
		roles[i] = string(role)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT `)
	sb.WriteString(userColumns)
	sb.WriteString(` FROM users
		WHERE verification_status = $1
		  AND role = ANY($2)
		  AND graduation_year IS NOT NULL
		  AND graduation_year `)
	sb.WriteString(op)
	sb.WriteString(` $3
		ORDER BY id`)

	return sb.String(), []any{string(q.Status), roles, q.GraduationYear}, nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var role, status string

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&role,
		&status,
		&u.AdmissionYear,
		&u.GraduationYear,
		&u.CurrentYear,
		&u.Graduated,
		&u.RoleLastUpdated,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = user.Role(role)
	u.VerificationStatus = user.VerificationStatus(status)
	return &u, nil
}
