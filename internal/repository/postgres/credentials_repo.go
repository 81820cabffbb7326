package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/imagefeed/internal/errs"
	"github.com/and161185/imagefeed/internal/model"
	"github.com/and161185/imagefeed/internal/repository"
)

// DefaultSlot names the row used by a single-account client.
const DefaultSlot = "default"

// noExpiry is stored for tokens without a known lifetime.
var noExpiry = time.Unix(0, 0).UTC()

// CredentialsRepo implements CredentialsRepository using PostgreSQL.
type CredentialsRepo struct {
	db   *DB
	slot string
}

var _ repository.CredentialsRepository = (*CredentialsRepo)(nil)

// NewCredentialsRepo constructs a repository bound to one credentials slot.
func NewCredentialsRepo(db *DB, slot string) *CredentialsRepo {
	if slot == "" {
		slot = DefaultSlot
	}
	return &CredentialsRepo{db: db, slot: slot}
}

// Load selects the slot's credentials.
func (r *CredentialsRepo) Load(ctx context.Context) (model.Credentials, error) {
	const q = `
SELECT access_token, expires_at
FROM credentials WHERE slot=$1`
	var (
		c   model.Credentials
		exp time.Time
	)
	err := r.db.Pool.QueryRow(ctx, q, r.slot).Scan(&c.AccessToken, &exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Credentials{}, errs.ErrNotFound
	}
	if err != nil {
		return model.Credentials{}, err
	}
	if !exp.Equal(noExpiry) {
		c.ExpiresAt = exp
	}
	return c, nil
}

// Save upserts the slot's credentials.
func (r *CredentialsRepo) Save(ctx context.Context, c model.Credentials) error {
	const q = `
INSERT INTO credentials (slot, access_token, expires_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (slot)
DO UPDATE SET access_token=EXCLUDED.access_token, expires_at=EXCLUDED.expires_at, updated_at=now()`
	exp := noExpiry
	if !c.ExpiresAt.IsZero() {
		exp = c.ExpiresAt
	}
	_, err := r.db.Pool.Exec(ctx, q, r.slot, c.AccessToken, exp)
	return err
}

// Clear deletes the slot's credentials.
func (r *CredentialsRepo) Clear(ctx context.Context) error {
	const q = `DELETE FROM credentials WHERE slot=$1`
	_, err := r.db.Pool.Exec(ctx, q, r.slot)
	return err
}
