package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gridx-network/gridx-coordinator/db"
	"github.com/gridx-network/gridx-coordinator/internal/utils"
)

// UserCredits is one submitter or owner account in the time-based credit
// economy. balance moves on reserve, refund and reward; the lifetime totals
// only ever grow.
type UserCredits struct {
	UserID      string   `json:"user_id" db:"user_id"`
	Balance     float64  `json:"balance" db:"balance"`
	TotalEarned float64  `json:"total_earned" db:"total_earned"`
	TotalSpent  float64  `json:"total_spent" db:"total_spent"`
	LastUpdated *float64 `json:"last_updated" db:"last_updated"`
}

type CreditsModel struct {
	dbConnectionPool db.DBConnectionPool
}

// Ensure creates the account with the given starting balance if it does not
// exist yet and returns the current balance either way.
func (c *CreditsModel) Ensure(ctx context.Context, userID string, initial float64) (float64, error) {
	if userID == "" {
		return 0, ErrMissingInput
	}

	const insertQuery = `
		INSERT INTO user_credits
			(user_id, balance, last_updated)
		VALUES
			(?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`
	if _, err := c.dbConnectionPool.ExecContext(ctx, insertQuery, userID, initial, utils.NowEpoch()); err != nil {
		return 0, fmt.Errorf("error ensuring credits account for user %s: %w", userID, err)
	}

	var balance float64
	const selectQuery = `SELECT balance FROM user_credits WHERE user_id = ?`
	if err := c.dbConnectionPool.GetContext(ctx, &balance, selectQuery, userID); err != nil {
		return 0, fmt.Errorf("error reading balance of user %s: %w", userID, err)
	}
	return balance, nil
}

func (c *CreditsModel) Get(ctx context.Context, userID string) (*UserCredits, error) {
	var credits UserCredits
	const query = `
		SELECT
			*
		FROM
			user_credits
		WHERE
			user_id = ?
	`

	err := c.dbConnectionPool.GetContext(ctx, &credits, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("error querying credits of user %s: %w", userID, err)
	}
	return &credits, nil
}

func (c *CreditsModel) GetBalance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	const query = `SELECT balance FROM user_credits WHERE user_id = ?`

	err := c.dbConnectionPool.GetContext(ctx, &balance, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrRecordNotFound
		}
		return 0, fmt.Errorf("error reading balance of user %s: %w", userID, err)
	}
	return balance, nil
}

// Deduct atomically removes amount from the user's balance if it is covered.
// Returns true when the deduction happened. Non-positive amounts succeed
// without touching the store.
func (c *CreditsModel) Deduct(ctx context.Context, userID string, amount float64) (bool, error) {
	if amount <= 0 {
		return true, nil
	}

	const query = `
		UPDATE user_credits
		SET
			balance = balance - ?,
			total_spent = total_spent + ?,
			last_updated = ?
		WHERE
			user_id = ? AND balance >= ?
	`

	result, err := c.dbConnectionPool.ExecContext(ctx, query, amount, amount, utils.NowEpoch(), userID, amount)
	if err != nil {
		return false, fmt.Errorf("error deducting %.4f from user %s: %w", amount, userID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected deducting from user %s: %w", userID, err)
	}
	return rows > 0, nil
}

// Credit adds amount to the user's balance, creating the account at zero
// first so earners do not receive the submitter starting grant. Non-positive
// amounts are a no-op.
func (c *CreditsModel) Credit(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return nil
	}
	if userID == "" {
		return ErrMissingInput
	}
	now := utils.NowEpoch()

	return db.RunInTransaction(ctx, c.dbConnectionPool, nil, func(dbTx db.DBTransaction) error {
		const insertQuery = `
			INSERT INTO user_credits
				(user_id, balance, last_updated)
			VALUES
				(?, 0, ?)
			ON CONFLICT(user_id) DO NOTHING
		`
		if _, err := dbTx.ExecContext(ctx, insertQuery, userID, now); err != nil {
			return fmt.Errorf("error ensuring credits account for user %s: %w", userID, err)
		}

		const updateQuery = `
			UPDATE user_credits
			SET
				balance = balance + ?,
				total_earned = total_earned + ?,
				last_updated = ?
			WHERE
				user_id = ?
		`
		if _, err := dbTx.ExecContext(ctx, updateQuery, amount, amount, now, userID); err != nil {
			return fmt.Errorf("error crediting %.4f to user %s: %w", amount, userID, err)
		}
		return nil
	})
}
