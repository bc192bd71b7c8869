// Package credit derives the margin credit line from live balances and
// oracle prices.
package credit

import (
	"context"
	"fmt"

	"margin_maker/internal/core"
	apperrors "margin_maker/pkg/errors"
	"margin_maker/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// Assets names the three account legs that enter the credit calculation.
type Assets struct {
	Risk   string // accumulated base asset, priced by oracle
	Stable string // dollar-stable collateral leg, cross-priced into quote terms
	Quote  string // pair denominator, taken at face value
}

// Sizer computes the available credit line. Every call reads fresh balances
// and prices; nothing is cached between cycles.
type Sizer struct {
	exchange             core.IExchange
	assets               Assets
	pair                 string
	minCollateralization decimal.Decimal
	logger               core.ILogger
}

// NewSizer creates a credit sizer for the given account legs.
func NewSizer(exchange core.IExchange, assets Assets, pair string, minCollateralization decimal.Decimal, logger core.ILogger) *Sizer {
	return &Sizer{
		exchange:             exchange,
		assets:               assets,
		pair:                 pair,
		minCollateralization: minCollateralization,
		logger:               logger.WithField("component", "credit_sizer"),
	}
}

// Available computes the credit quote for the given leverage.
//
// The account value is expressed in quote terms: the risk leg at its oracle
// price, the stable leg divided by the quote asset's dollar price, and the
// quote leg as-is. Dividing by the minimum collateralization gives the
// marginable value; multiplying by leverage gives the credit limit. A
// negative quote balance is an existing liability and reduces what remains.
func (s *Sizer) Available(ctx context.Context, leverage decimal.Decimal) (*core.CreditQuote, error) {
	balances, err := s.exchange.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balances: %w", err)
	}

	riskPrice, err := s.exchange.GetOraclePrice(ctx, s.assets.Risk)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s oracle price: %w", s.assets.Risk, err)
	}
	quotePrice, err := s.exchange.GetOraclePrice(ctx, s.assets.Quote)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s oracle price: %w", s.assets.Quote, err)
	}
	if !riskPrice.IsPositive() {
		return nil, fmt.Errorf("%w: %s oracle price %s is not positive", apperrors.ErrStaleBalance, s.assets.Risk, riskPrice)
	}
	if !quotePrice.IsPositive() {
		return nil, fmt.Errorf("%w: %s oracle price %s is not positive", apperrors.ErrStaleBalance, s.assets.Quote, quotePrice)
	}

	riskValue := balances[s.assets.Risk].Mul(riskPrice)
	stableValue := balances[s.assets.Stable].Div(quotePrice)
	quoteValue := balances[s.assets.Quote]

	accountValue := riskValue.Add(stableValue).Add(quoteValue)
	marginLimit := accountValue.Div(s.minCollateralization)
	creditLimit := marginLimit.Mul(leverage)

	liabilities := decimal.Zero
	if quoteValue.IsNegative() {
		liabilities = quoteValue.Abs()
	}

	available := creditLimit.Sub(liabilities)

	s.logger.Debug("Computed credit line",
		"account_value", accountValue.String(),
		"margin_limit", marginLimit.String(),
		"credit_limit", creditLimit.String(),
		"liabilities", liabilities.String(),
		"available", available.String(),
		"leverage", leverage.String())

	avail, _ := available.Float64()
	telemetry.GetGlobalMetrics().SetAvailableCredit(s.pair, avail)

	return &core.CreditQuote{
		AccountValue:    accountValue,
		MarginLimit:     marginLimit,
		CreditLimit:     creditLimit,
		Liabilities:     liabilities,
		AvailableCredit: available,
	}, nil
}
