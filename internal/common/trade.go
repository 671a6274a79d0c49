package common

import "fmt"

// TradeInfo is one side's view of a match.
type TradeInfo struct {
	OrderID  OrderID
	Price    Price
	Quantity Quantity
}

// Trade accounts for the two orders that matched. Each side carries its own
// resting price, so the bid and ask prices differ when the bid crossed deeper
// than the best ask.
type Trade struct {
	Bid TradeInfo
	Ask TradeInfo
}

type Trades []Trade

func (t Trade) String() string {
	return fmt.Sprintf(
		"Bid: [id=%d price=%d qty=%d] Ask: [id=%d price=%d qty=%d]",
		t.Bid.OrderID, t.Bid.Price, t.Bid.Quantity,
		t.Ask.OrderID, t.Ask.Price, t.Ask.Quantity,
	)
}

// Quantity returns the total quantity matched across the trades.
func (ts Trades) Quantity() Quantity {
	var total Quantity
	for _, t := range ts {
		total += t.Bid.Quantity
	}
	return total
}
