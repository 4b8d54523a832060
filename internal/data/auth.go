package data

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gridx-network/gridx-coordinator/db"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

// UserAuth binds an owner id to the shared token its workers present. The
// pair is written on first authenticated hello and checked on every one
// after.
type UserAuth struct {
	UserID    string   `json:"user_id" db:"user_id"`
	AuthToken string   `json:"-" db:"auth_token"`
	CreatedAt *float64 `json:"created_at" db:"created_at"`
}

type UserAuthModel struct {
	dbConnectionPool db.DBConnectionPool
}

// Register stores or replaces the token for the user. created_at is kept from
// the first registration.
func (a *UserAuthModel) Register(ctx context.Context, userID, authToken string) error {
	if userID == "" || authToken == "" {
		return ErrMissingInput
	}

	const query = `
		INSERT INTO user_auth
			(user_id, auth_token, created_at)
		VALUES
			(?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			auth_token = excluded.auth_token
	`

	if _, err := a.dbConnectionPool.ExecContext(ctx, query, userID, authToken, utils.NowEpoch()); err != nil {
		return fmt.Errorf("error registering auth token for user %s: %w", userID, err)
	}
	return nil
}

func (a *UserAuthModel) Get(ctx context.Context, userID string) (*UserAuth, error) {
	var auth UserAuth
	const query = `
		SELECT
			*
		FROM
			user_auth
		WHERE
			user_id = ?
	`

	err := a.dbConnectionPool.GetContext(ctx, &auth, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("error querying auth for user %s: %w", userID, err)
	}
	return &auth, nil
}

// Verify compares the presented token against the stored one. A missing row
// surfaces as ErrRecordNotFound so callers can distinguish an unknown owner
// from a bad token.
func (a *UserAuthModel) Verify(ctx context.Context, userID, authToken string) (bool, error) {
	auth, err := a.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(auth.AuthToken), []byte(authToken)) == 1, nil
}
