// Package ledger records verified deposits and mutates balances exactly once per
// (provider, operation id) pair.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/logger"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/bonus/v1"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/commission/v1"
	"github.com/danilovkiri/dk-go-fastcore/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-fastcore/internal/storage/v1/errors"
	"github.com/rs/zerolog"
)

// Enqueuer accepts commissions to be retried after their deposit commits.
type Enqueuer interface {
	Enqueue(entry modelstorage.CommissionEntry)
}

// Ledger defines attributes of a struct available to its methods.
type Ledger struct {
	storage    storage.Ledger
	bonus      bonus.Resolver
	commission commission.Distributor
	queue      Enqueuer
	timeout    time.Duration
	log        *zerolog.Logger
}

func NewLedger(st storage.Ledger, res bonus.Resolver, dist commission.Distributor, queue Enqueuer, cfg *config.StorageConfig, log *zerolog.Logger) *Ledger {
	return &Ledger{
		storage:    st,
		bonus:      res,
		commission: dist,
		queue:      queue,
		timeout:    cfg.StorageTimeout,
		log:        log,
	}
}

// Credit records the deposit and credits amount plus bonus to the user in one transaction.
// A deposit already on record yields AlreadyProcessed and changes nothing.
func (l *Ledger) Credit(ctx context.Context, req modeldto.CreditRequest) (*modeldto.CreditResult, error) {
	// the transaction must not observe the caller going away
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	log := logger.FromContext(ctx, l.log).With().Str("provider", req.Provider).Str("operation", req.OperationID).Int64("user", req.UserID).Logger()

	_, bonusAmount, err := l.bonus.Resolve(ctx, req.Amount)
	if err != nil {
		log.Error().Err(err).Msg("bonus resolution failed")
		return nil, err
	}
	total := req.Amount.Add(bonusAmount)

	var depositID int64
	var pending *modelstorage.CommissionEntry
	err = l.storage.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		id, err := tx.InsertDeposit(ctx, modelstorage.DepositEntry{
			UserID:      req.UserID,
			Login:       req.Login,
			Amount:      req.Amount,
			Bonus:       bonusAmount,
			Provider:    req.Provider,
			OperationID: req.OperationID,
			CreatedAt:   req.OriginTime,
			ProcessedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		depositID = id
		if err = tx.CreditUser(ctx, req.UserID, req.Amount, total); err != nil {
			return err
		}
		if err = tx.AddDepositStats(ctx, req.Amount); err != nil {
			return err
		}
		referrerID, ok, err := tx.ReferrerOf(ctx, req.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err = l.commission.Apply(ctx, tx, id, req.UserID, referrerID, req.Amount); err != nil {
			log.Error().Err(err).Int64("referrer", referrerID).Msg("referral commission failed, scheduling retry")
			pending = &modelstorage.CommissionEntry{
				DepositID:     id,
				DepositorID:   req.UserID,
				ReferrerID:    referrerID,
				DepositAmount: req.Amount,
			}
		}
		return nil
	})

	var alreadyExistsError *storageErrors.AlreadyExistsError
	switch {
	case errors.As(err, &alreadyExistsError):
		log.Info().Msg("deposit already processed")
		return &modeldto.CreditResult{Status: modeldto.CreditStatusAlreadyProcessed}, nil
	case err != nil:
		log.Error().Err(err).Msg("deposit crediting failed")
		return nil, err
	}

	if pending != nil {
		l.queue.Enqueue(*pending)
	}
	log.Info().Int64("deposit", depositID).Str("amount", req.Amount.String()).Str("bonus", bonusAmount.String()).Msg("deposit credited")
	return &modeldto.CreditResult{
		Status:    modeldto.CreditStatusCredited,
		DepositID: depositID,
		Amount:    req.Amount,
		Bonus:     bonusAmount,
	}, nil
}
