package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// LockRepository is a per-user transfer lock shared by every process using
// the same database file. Locks carry a TTL so a crashed holder cannot block
// its users forever; live holders keep them with Renew.
type LockRepository struct {
	db      *sql.DB
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewLockRepository(dbConn *sql.DB, ttl time.Duration) *LockRepository {
	return &LockRepository{
		db:      dbConn,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// TryAcquire atomically claims the user's lock for token when it is free or
// expired.
func (r *LockRepository) TryAcquire(ctx context.Context, userID, token string) (bool, error) {
	now := r.nowFunc()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO user_locks (user_id, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE user_locks.holder = '' OR user_locks.expires_at <= ?
	`, userID, token, now.UnixNano(), now.Add(r.ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, err
	}

	return rowsChanged(res)
}

// Renew pushes the expiry of a lock token still holds. It reports false once
// the lock expired and went to someone else.
func (r *LockRepository) Renew(ctx context.Context, userID, token string) (bool, error) {
	now := r.nowFunc()

	res, err := r.db.ExecContext(ctx,
		`UPDATE user_locks SET expires_at = ? WHERE user_id = ? AND holder = ? AND expires_at > ?`,
		now.Add(r.ttl).UnixNano(), userID, token, now.UnixNano(),
	)
	if err != nil {
		return false, err
	}

	return rowsChanged(res)
}

// Release frees the lock if token still holds it.
func (r *LockRepository) Release(ctx context.Context, userID, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_locks SET holder = '', expires_at = 0 WHERE user_id = ? AND holder = ?`,
		userID, token,
	)

	return err
}

func rowsChanged(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}
