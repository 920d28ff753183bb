package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/user/entity"
)

// UserRepo mirrors remote directory users into the idp_users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the idp_users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS idp_users (
  user_id TEXT PRIMARY KEY,
  email TEXT,
  email_verified BOOLEAN NOT NULL DEFAULT false,
  connection TEXT,
  user_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  app_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_idp_users_email ON idp_users(email);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Upsert writes one remote user, replacing the previous mirror row.
func (r *UserRepo) Upsert(ctx context.Context, u entity.RemoteUser) error {
	rec, err := toRecord(u, time.Now().UTC())
	if err != nil {
		return err
	}
	const q = `INSERT INTO idp_users (user_id,email,email_verified,connection,user_metadata,app_metadata,synced_at)
		  VALUES (:user_id,:email,:email_verified,:connection,:user_metadata,:app_metadata,:synced_at)
		  ON CONFLICT (user_id) DO UPDATE SET
		    email=EXCLUDED.email,
		    email_verified=EXCLUDED.email_verified,
		    connection=EXCLUDED.connection,
		    user_metadata=EXCLUDED.user_metadata,
		    app_metadata=EXCLUDED.app_metadata,
		    synced_at=EXCLUDED.synced_at`
	_, err = r.db.NamedExecContext(ctx, q, rec)
	return err
}

// Count returns the number of mirrored rows.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM idp_users`); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteAll removes every mirrored row and returns how many were removed.
func (r *UserRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM idp_users`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func toRecord(u entity.RemoteUser, now time.Time) (entity.LocalRecord, error) {
	um, err := metadataJSON(u.UserMetadata)
	if err != nil {
		return entity.LocalRecord{}, err
	}
	am, err := metadataJSON(u.AppMetadata)
	if err != nil {
		return entity.LocalRecord{}, err
	}
	rec := entity.LocalRecord{
		UserID:        u.UserID,
		EmailVerified: u.EmailVerified,
		UserMetadata:  um,
		AppMetadata:   am,
		SyncedAt:      now,
	}
	if u.Email != "" {
		email := u.Email
		rec.Email = &email
	}
	if conn := u.PrimaryConnection(); conn != "" {
		rec.Connection = &conn
	}
	return rec, nil
}

func metadataJSON(m entity.Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
