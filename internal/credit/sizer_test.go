package credit

import (
	"context"
	"testing"

	"margin_maker/internal/mock"
	apperrors "margin_maker/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wethDaiAssets = Assets{Risk: "WETH", Stable: "USDC", Quote: "DAI"}

func newTestSizer(ex *mock.MockExchange) *Sizer {
	return NewSizer(ex, wethDaiAssets, "WETH-DAI", decimal.RequireFromString("1.25"), mock.NopLogger{})
}

func TestAvailableCredit(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetBalance("WETH", decimal.NewFromInt(2))
	ex.SetBalance("USDC", decimal.NewFromInt(500))
	ex.SetBalance("DAI", decimal.NewFromInt(-100))
	ex.SetOraclePrice("WETH", decimal.NewFromInt(2000))
	ex.SetOraclePrice("DAI", decimal.NewFromInt(1))

	quote, err := newTestSizer(ex).Available(context.Background(), decimal.NewFromInt(4))
	require.NoError(t, err)

	assert.True(t, quote.AccountValue.Equal(decimal.NewFromInt(4400)), "account value %s", quote.AccountValue)
	assert.True(t, quote.MarginLimit.Equal(decimal.NewFromInt(3520)), "margin limit %s", quote.MarginLimit)
	assert.True(t, quote.CreditLimit.Equal(decimal.NewFromInt(14080)), "credit limit %s", quote.CreditLimit)
	assert.True(t, quote.Liabilities.Equal(decimal.NewFromInt(100)), "liabilities %s", quote.Liabilities)
	assert.True(t, quote.AvailableCredit.Equal(decimal.NewFromInt(13980)), "available %s", quote.AvailableCredit)
}

func TestNoLiabilitiesWithPositiveQuoteBalance(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetBalance("WETH", decimal.NewFromInt(1))
	ex.SetBalance("USDC", decimal.Zero)
	ex.SetBalance("DAI", decimal.NewFromInt(250))
	ex.SetOraclePrice("WETH", decimal.NewFromInt(2000))
	ex.SetOraclePrice("DAI", decimal.NewFromInt(1))

	quote, err := newTestSizer(ex).Available(context.Background(), decimal.NewFromInt(2))
	require.NoError(t, err)

	assert.True(t, quote.Liabilities.IsZero())
	assert.True(t, quote.AccountValue.Equal(decimal.NewFromInt(2250)))
	assert.True(t, quote.AvailableCredit.Equal(decimal.NewFromInt(3600)))
}

func TestStableLegCrossPricing(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetBalance("WETH", decimal.Zero)
	ex.SetBalance("USDC", decimal.NewFromInt(500))
	ex.SetBalance("DAI", decimal.Zero)
	ex.SetOraclePrice("WETH", decimal.NewFromInt(2000))
	// Quote trading at 1.25 dollars shrinks the dollar leg in quote terms.
	ex.SetOraclePrice("DAI", decimal.RequireFromString("1.25"))

	quote, err := newTestSizer(ex).Available(context.Background(), decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.True(t, quote.AccountValue.Equal(decimal.NewFromInt(400)), "account value %s", quote.AccountValue)
}

func TestMissingOraclePrice(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetBalance("WETH", decimal.NewFromInt(1))

	_, err := newTestSizer(ex).Available(context.Background(), decimal.NewFromInt(4))
	assert.Error(t, err)
}

func TestInconsistentPricesAreStale(t *testing.T) {
	ex := mock.NewMockExchange("mock")
	ex.SetOraclePrice("WETH", decimal.NewFromInt(2000))
	ex.SetOraclePrice("DAI", decimal.Zero)

	_, err := newTestSizer(ex).Available(context.Background(), decimal.NewFromInt(4))
	assert.ErrorIs(t, err, apperrors.ErrStaleBalance)

	ex.SetOraclePrice("DAI", decimal.NewFromInt(1))
	ex.SetOraclePrice("WETH", decimal.NewFromInt(-5))
	_, err = newTestSizer(ex).Available(context.Background(), decimal.NewFromInt(4))
	assert.ErrorIs(t, err, apperrors.ErrStaleBalance)

	ex.SetOraclePrice("WETH", decimal.Zero)
	_, err = newTestSizer(ex).Available(context.Background(), decimal.NewFromInt(4))
	assert.ErrorIs(t, err, apperrors.ErrStaleBalance)
}
