package common

import "fmt"

type OrderID = uint64
type Price = int64
type Quantity = uint64

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

type OrderType int

const (
	// GoodTillCancel orders rest on the book at their limit price until they
	// are filled or cancelled.
	GoodTillCancel OrderType = iota
	// FillAndKill orders execute immediately against whatever crosses and any
	// unfilled remainder is discarded instead of resting.
	FillAndKill
	// Market orders carry no limit price. On admission they are repriced to the
	// worst resting price on the opposite side and then behave as a
	// GoodTillCancel order.
	Market
)

func (t OrderType) Valid() bool {
	return t >= GoodTillCancel && t <= Market
}

func (t OrderType) String() string {
	switch t {
	case GoodTillCancel:
		return "GTC"
	case FillAndKill:
		return "FAK"
	case Market:
		return "MARKET"
	}
	return fmt.Sprintf("OrderType(%d)", int(t))
}
