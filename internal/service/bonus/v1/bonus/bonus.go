// Package bonus resolves the deposit bonus from the ordered tier table.
package bonus

import (
	"context"

	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-fastcore/internal/storage/v1"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Resolver defines attributes of a struct available to its methods.
type Resolver struct {
	tiers storage.Tiers
	log   *zerolog.Logger
}

func NewResolver(tiers storage.Tiers, log *zerolog.Logger) *Resolver {
	return &Resolver{tiers: tiers, log: log}
}

// Resolve returns the multiplier of the first tier containing amount and the bonus
// rounded to 2 decimal places. No matching tier means a zero bonus.
func (r *Resolver) Resolve(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	tiers, err := r.tiers.ListBonusTiers(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	multiplier := Match(tiers, amount)
	bonus := amount.Mul(multiplier).Round(2)
	r.log.Debug().Str("amount", amount.String()).Str("multiplier", multiplier.String()).Str("bonus", bonus.String()).Msg("bonus resolved")
	return multiplier, bonus, nil
}

// Match scans tiers in the given order; bounds are inclusive and a NULL maximum is unbounded.
func Match(tiers []modelstorage.BonusTierEntry, amount decimal.Decimal) decimal.Decimal {
	for _, tier := range tiers {
		if amount.LessThan(tier.AmountMin) {
			continue
		}
		if tier.AmountMax.Valid && amount.GreaterThan(tier.AmountMax.Decimal) {
			continue
		}
		return tier.Multiplier
	}
	return decimal.Zero
}
