// Package commission credits referrers with a share of their referrals' deposits.
package commission

import (
	"context"
	"fmt"

	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-fastcore/internal/storage/v1"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Distributor defines attributes of a struct available to its methods.
type Distributor struct {
	ledger storage.Ledger
	rate   decimal.Decimal
	log    *zerolog.Logger
}

func NewDistributor(ledger storage.Ledger, cfg *config.CommissionConfig, log *zerolog.Logger) *Distributor {
	return &Distributor{
		ledger: ledger,
		rate:   decimal.NewFromFloat(cfg.ReferralRate),
		log:    log,
	}
}

// Compute returns the commission owed on a deposit amount, rounded to 2 decimal places.
func (d *Distributor) Compute(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(d.rate).Round(2)
}

// Apply credits the referrer inside a savepoint of tx. A zero referrerID means no referrer.
// On failure only the commission statements are undone and the error is returned.
func (d *Distributor) Apply(ctx context.Context, tx storage.Tx, depositID, depositorID, referrerID int64, amount decimal.Decimal) error {
	if referrerID == 0 {
		return nil
	}
	entry := modelstorage.CommissionEntry{
		DepositID:     depositID,
		DepositorID:   depositorID,
		ReferrerID:    referrerID,
		DepositAmount: amount,
		Amount:        d.Compute(amount),
	}
	return tx.Savepoint(ctx, func() error {
		return d.apply(ctx, tx, entry)
	})
}

// Retry applies a commission left over by a failed savepoint in its own transaction.
func (d *Distributor) Retry(ctx context.Context, entry modelstorage.CommissionEntry) error {
	entry.Amount = d.Compute(entry.DepositAmount)
	return d.ledger.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return d.apply(ctx, tx, entry)
	})
}

func (d *Distributor) apply(ctx context.Context, tx storage.Tx, entry modelstorage.CommissionEntry) error {
	inserted, err := tx.InsertCommission(ctx, entry)
	if err != nil {
		return fmt.Errorf("recording commission for deposit %d: %w", entry.DepositID, err)
	}
	if !inserted {
		d.log.Info().Int64("deposit", entry.DepositID).Msg("commission already applied")
		return nil
	}
	if err = tx.CreditReferrer(ctx, entry.ReferrerID, entry.Amount); err != nil {
		return fmt.Errorf("crediting referrer %d: %w", entry.ReferrerID, err)
	}
	if err = tx.AddReferralGenerated(ctx, entry.DepositorID, entry.Amount); err != nil {
		return fmt.Errorf("updating depositor %d: %w", entry.DepositorID, err)
	}
	d.log.Info().
		Int64("deposit", entry.DepositID).
		Int64("referrer", entry.ReferrerID).
		Str("commission", entry.Amount.String()).
		Msg("referral commission applied")
	return nil
}
