// Package accounts resolves the live service tier for a user from the
// accounts database. Archival decisions use the tier at move time, not the
// tier recorded when the job was submitted, so an upgrade that lands while a
// job is queued for archival still protects its results.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tideline/tideline/pkg/jobrecord"
)

// ErrUnknownUser indicates the user has no profile row.
var ErrUnknownUser = errors.New("unknown user")

// Resolver reports a user's current tier.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (jobrecord.Tier, error)
}

// premiumRole is the profile role that grants premium retention.
const premiumRole = "premium_user"

// RowQuerier is the subset of the pgx pool used by the resolver.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresResolver reads the profile role from the accounts database.
type PostgresResolver struct {
	db RowQuerier
}

var _ Resolver = (*PostgresResolver)(nil)

func NewPostgresResolver(db RowQuerier) *PostgresResolver {
	return &PostgresResolver{db: db}
}

func (r *PostgresResolver) Resolve(ctx context.Context, userID string) (jobrecord.Tier, error) {
	var role string
	row := r.db.QueryRow(ctx, `SELECT role FROM profiles WHERE user_id = $1`, userID)
	if err := row.Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("resolve tier for %s: %w", userID, ErrUnknownUser)
		}
		return "", fmt.Errorf("resolve tier for %s: %w", userID, err)
	}
	if role == premiumRole {
		return jobrecord.TierPremium, nil
	}
	return jobrecord.TierFree, nil
}
