package inpsql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-fastcore/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-fastcore/internal/storage/v1/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	insertDepositQuery = "INSERT INTO deposits (user_id, login, amount, bonus, provider, operation_id, created_at, processed_at) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (provider, operation_id) DO NOTHING RETURNING id"
	referrerOfQuery           = "SELECT r.id FROM users u JOIN users r ON r.id = u.referrer_id WHERE u.id = $1"
	creditUserQuery           = "UPDATE users SET deposited_total = deposited_total + $1, bonus_balance = bonus_balance + $2 WHERE id = $3"
	addDepositStatsQuery      = "UPDATE stats SET deposits_total = deposits_total + $1 WHERE id = 1"
	insertCommissionQuery     = "INSERT INTO referral_commissions (deposit_id, referrer_id, amount, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (deposit_id) DO NOTHING"
	creditReferrerQuery       = "UPDATE users SET commission_balance = commission_balance + $1, referral_earned = referral_earned + $1 WHERE id = $2"
	addReferralGeneratedQuery = "UPDATE users SET referral_generated = referral_generated + $1 WHERE id = $2"
	savepointQuery            = "SAVEPOINT nested"
	rollbackToSavepointQuery  = "ROLLBACK TO SAVEPOINT nested"
	releaseSavepointQuery     = "RELEASE SAVEPOINT nested"
)

// Tx implements storage.Tx on top of a single sql.Tx.
type Tx struct {
	tx  *sql.Tx
	log *zerolog.Logger
}

// WithinTx runs fn in one database transaction, committing on nil and rolling back otherwise.
func (s *Storage) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	sqlTx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return wrapExecution(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()
	if err = fn(ctx, &Tx{tx: sqlTx, log: s.log}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error().Err(rbErr).Msg("transaction rollback failed")
		}
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return wrapExecution(err)
	}
	return nil
}

// InsertDeposit records a deposit unless its (provider, operation id) pair is already known,
// in which case AlreadyExistsError is returned.
func (t *Tx) InsertDeposit(ctx context.Context, e modelstorage.DepositEntry) (int64, error) {
	key := e.Provider + ":" + e.OperationID
	var id int64
	err := t.tx.QueryRowContext(ctx, insertDepositQuery,
		e.UserID, e.Login, e.Amount, e.Bonus, e.Provider, e.OperationID, e.CreatedAt, e.ProcessedAt).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, &storageErrors.AlreadyExistsError{ID: key}
	case isUniqueViolation(err):
		return 0, &storageErrors.AlreadyExistsError{Err: err, ID: key}
	case err != nil:
		return 0, wrapExecution(err)
	}
	return id, nil
}

// ReferrerOf returns the referrer of userID if one is set and still exists.
func (t *Tx) ReferrerOf(ctx context.Context, userID int64) (int64, bool, error) {
	var referrerID int64
	err := t.tx.QueryRowContext(ctx, referrerOfQuery, userID).Scan(&referrerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, wrapExecution(err)
	}
	return referrerID, true, nil
}

func (t *Tx) CreditUser(ctx context.Context, userID int64, amount, total decimal.Decimal) error {
	return t.updateUser(ctx, userID, creditUserQuery, amount, total, userID)
}

func (t *Tx) AddDepositStats(ctx context.Context, amount decimal.Decimal) error {
	if _, err := t.tx.ExecContext(ctx, addDepositStatsQuery, amount); err != nil {
		return wrapExecution(err)
	}
	return nil
}

// InsertCommission reports false when a commission for the deposit was already applied.
func (t *Tx) InsertCommission(ctx context.Context, e modelstorage.CommissionEntry) (bool, error) {
	res, err := t.tx.ExecContext(ctx, insertCommissionQuery, e.DepositID, e.ReferrerID, e.Amount, now())
	if err != nil {
		return false, wrapExecution(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapExecution(err)
	}
	return n > 0, nil
}

func (t *Tx) CreditReferrer(ctx context.Context, referrerID int64, commission decimal.Decimal) error {
	return t.updateUser(ctx, referrerID, creditReferrerQuery, commission, referrerID)
}

func (t *Tx) AddReferralGenerated(ctx context.Context, depositorID int64, commission decimal.Decimal) error {
	return t.updateUser(ctx, depositorID, addReferralGeneratedQuery, commission, depositorID)
}

func (t *Tx) updateUser(ctx context.Context, userID int64, query string, args ...interface{}) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapExecution(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapExecution(err)
	}
	if n == 0 {
		return &storageErrors.UnknownUserError{UserID: userID}
	}
	return nil
}

// Savepoint runs fn so that its failure undoes only fn's own statements.
// The error of fn is returned as is; the outer transaction stays usable.
func (t *Tx) Savepoint(ctx context.Context, fn func() error) error {
	if _, err := t.tx.ExecContext(ctx, savepointQuery); err != nil {
		return wrapExecution(err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, rollbackToSavepointQuery); rbErr != nil {
			t.log.Error().Err(rbErr).Msg("rollback to savepoint failed")
		}
		return err
	}
	if _, err := t.tx.ExecContext(ctx, releaseSavepointQuery); err != nil {
		return wrapExecution(err)
	}
	return nil
}
