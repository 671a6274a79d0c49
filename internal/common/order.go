package common

import (
	"errors"
	"fmt"
)

var (
	ErrZeroQuantity     = errors.New("order quantity must be positive")
	ErrInvalidSide      = errors.New("invalid order side")
	ErrInvalidOrderType = errors.New("invalid order type")

	// ErrInvariantViolation marks a broken book invariant. It is not reachable
	// through the public book operations; seeing it means the indices are
	// corrupt.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Order tracks the remaining quantity of a single resting or aggressing
// order. Only the matching loop mutates it, through Fill.
type Order struct {
	id        OrderID
	orderType OrderType
	side      Side
	price     Price
	initial   Quantity
	remaining Quantity
}

// NewOrder validates and creates a priced order. Zero quantities and unknown
// enum values are rejected here, before anything reaches a book.
func NewOrder(orderType OrderType, id OrderID, side Side, price Price, quantity Quantity) (*Order, error) {
	if !orderType.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrderType, int(orderType))
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, int(side))
	}
	if quantity == 0 {
		return nil, ErrZeroQuantity
	}
	return &Order{
		id:        id,
		orderType: orderType,
		side:      side,
		price:     price,
		initial:   quantity,
		remaining: quantity,
	}, nil
}

// NewMarketOrder creates a Market order. Its price stays meaningless until the
// book converts it with ToGoodTillCancel.
func NewMarketOrder(id OrderID, side Side, quantity Quantity) (*Order, error) {
	return NewOrder(Market, id, side, 0, quantity)
}

func (o *Order) ID() OrderID                 { return o.id }
func (o *Order) Type() OrderType             { return o.orderType }
func (o *Order) Side() Side                  { return o.side }
func (o *Order) Price() Price                { return o.price }
func (o *Order) InitialQuantity() Quantity   { return o.initial }
func (o *Order) RemainingQuantity() Quantity { return o.remaining }
func (o *Order) FilledQuantity() Quantity    { return o.initial - o.remaining }
func (o *Order) IsFilled() bool              { return o.remaining == 0 }

// Fill reduces the remaining quantity. Filling more than what remains is an
// invariant violation and leaves the order untouched.
func (o *Order) Fill(quantity Quantity) error {
	if quantity > o.remaining {
		return fmt.Errorf(
			"%w: order %d cannot be filled for %d, only %d remaining",
			ErrInvariantViolation, o.id, quantity, o.remaining,
		)
	}
	o.remaining -= quantity
	return nil
}

// ToGoodTillCancel pegs a Market order to price. Only Market orders can be
// converted.
func (o *Order) ToGoodTillCancel(price Price) error {
	if o.orderType != Market {
		return fmt.Errorf(
			"%w: order %d of type %v cannot be converted to %v",
			ErrInvariantViolation, o.id, o.orderType, GoodTillCancel,
		)
	}
	o.price = price
	o.orderType = GoodTillCancel
	return nil
}

func (o Order) String() string {
	return fmt.Sprintf(
		`ID:        %d
OrderType: %v
Side:      %v
Price:     %d
Quantity:  %d (Initial: %d)`,
		o.id,
		o.orderType,
		o.side,
		o.price,
		o.remaining,
		o.initial,
	)
}

// OrderModify carries the replacement parameters for an existing order.
type OrderModify struct {
	ID       OrderID
	Side     Side
	Price    Price
	Quantity Quantity
}

// ToOrder builds the replacement order, keeping the caller supplied type.
func (m OrderModify) ToOrder(orderType OrderType) (*Order, error) {
	return NewOrder(orderType, m.ID, m.Side, m.Price, m.Quantity)
}
