package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/domain"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/core/port"
	"github.com/akabrrown/voice-of-upsa-sub004/internal/repository"
)

const usersTable = schema + ".users"

// RoleRepository reads role assignments from the authoritative users table.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// RoleForUser returns the role of an active user. Inactive or unknown users yield repository.ErrNotFound.
func (r *RoleRepository) RoleForUser(ctx context.Context, userID string) (domain.Role, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.RoleAnonymous, repository.ErrInvalidArgument
	}

	stmt, args, err := r.builder.Select("role").
		From(usersTable).
		Where(squirrel.Eq{"id": userID, "is_active": true}).
		Limit(1).
		ToSql()
	if err != nil {
		return domain.RoleAnonymous, fmt.Errorf("build select user role sql: %w", err)
	}

	var role string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RoleAnonymous, repository.ErrNotFound
		}
		return domain.RoleAnonymous, fmt.Errorf("select user role: %w", err)
	}

	return domain.ParseRole(role), nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
