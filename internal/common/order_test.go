package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_Validation(t *testing.T) {
	_, err := NewOrder(GoodTillCancel, 1, Buy, 100, 0)
	assert.ErrorIs(t, err, ErrZeroQuantity)

	_, err = NewOrder(OrderType(7), 1, Buy, 100, 10)
	assert.ErrorIs(t, err, ErrInvalidOrderType)

	_, err = NewOrder(GoodTillCancel, 1, Side(3), 100, 10)
	assert.ErrorIs(t, err, ErrInvalidSide)

	order, err := NewOrder(FillAndKill, 1, Sell, -5, 10)
	require.NoError(t, err)
	assert.Equal(t, Price(-5), order.Price())
	assert.Equal(t, Quantity(10), order.RemainingQuantity())
	assert.Equal(t, Quantity(10), order.InitialQuantity())
	assert.False(t, order.IsFilled())
}

func TestOrder_Fill(t *testing.T) {
	order, err := NewOrder(GoodTillCancel, 1, Buy, 100, 10)
	require.NoError(t, err)

	require.NoError(t, order.Fill(4))
	assert.Equal(t, Quantity(6), order.RemainingQuantity())
	assert.Equal(t, Quantity(4), order.FilledQuantity())

	// Overfilling is never clamped.
	err = order.Fill(7)
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, Quantity(6), order.RemainingQuantity())

	require.NoError(t, order.Fill(6))
	assert.True(t, order.IsFilled())
	assert.Equal(t, order.InitialQuantity(), order.FilledQuantity()+order.RemainingQuantity())
}

func TestOrder_ToGoodTillCancel(t *testing.T) {
	market, err := NewMarketOrder(5, Buy, 30)
	require.NoError(t, err)
	assert.Equal(t, Market, market.Type())

	require.NoError(t, market.ToGoodTillCancel(100))
	assert.Equal(t, GoodTillCancel, market.Type())
	assert.Equal(t, Price(100), market.Price())

	// Only market orders convert.
	assert.ErrorIs(t, market.ToGoodTillCancel(90), ErrInvariantViolation)
	assert.Equal(t, Price(100), market.Price())
}

func TestOrderModify_ToOrder(t *testing.T) {
	modify := OrderModify{ID: 9, Side: Sell, Price: 42, Quantity: 3}
	order, err := modify.ToOrder(FillAndKill)
	require.NoError(t, err)
	assert.Equal(t, OrderID(9), order.ID())
	assert.Equal(t, FillAndKill, order.Type())
	assert.Equal(t, Sell, order.Side())

	_, err = OrderModify{ID: 9, Side: Sell, Price: 42}.ToOrder(GoodTillCancel)
	assert.ErrorIs(t, err, ErrZeroQuantity)
}

func TestTrades_Quantity(t *testing.T) {
	trades := Trades{
		{Bid: TradeInfo{1, 100, 4}, Ask: TradeInfo{2, 90, 4}},
		{Bid: TradeInfo{1, 100, 6}, Ask: TradeInfo{3, 95, 6}},
	}
	assert.Equal(t, Quantity(10), trades.Quantity())
	assert.Equal(t, Quantity(0), Trades(nil).Quantity())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "BUY", Buy.String())
	assert.Equal(t, "SELL", Sell.String())
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
	assert.Equal(t, "GTC", GoodTillCancel.String())
	assert.Equal(t, "FAK", FillAndKill.String())
	assert.Equal(t, "MARKET", Market.String())
	assert.Equal(t, "OrderType(9)", OrderType(9).String())
}
