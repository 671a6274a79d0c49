package engine

import (
	"matchbook/internal/common"

	"github.com/rs/zerolog/log"
)

// OrderBook matches orders for a single instrument in price-time priority.
//
// It keeps three coupled indices: bid levels, ask levels and a registry from
// order id to the order's handle inside its level. An id is in the registry
// iff its order sits in exactly one level queue, and no empty level is ever
// left in either side.
//
// OrderBook is not safe for concurrent use. Engine serializes access when a
// book is shared between goroutines.
type OrderBook struct {
	bids   *PriceLevels
	asks   *PriceLevels
	orders map[common.OrderID]*orderNode
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:   newBidLevels(),
		asks:   newAskLevels(),
		orders: make(map[common.OrderID]*orderNode),
	}
}

// AddOrder admits order to the book and runs the matching loop. The book takes
// ownership of order; callers must not mutate it afterwards.
//
// Rejections (duplicate id, a Market order facing an empty book, a
// Fill-and-Kill order that cannot cross) return no trades and leave the book
// untouched. The only error returned is an invariant violation.
func (book *OrderBook) AddOrder(order *common.Order) (common.Trades, error) {
	if order == nil || order.RemainingQuantity() == 0 {
		log.Debug().Msg("rejected empty order")
		return nil, nil
	}
	if _, ok := book.orders[order.ID()]; ok {
		log.Debug().Uint64("id", order.ID()).Msg("rejected order: duplicate id")
		return nil, nil
	}

	if order.Type() == common.Market {
		converted, err := book.convertMarket(order)
		if err != nil {
			return nil, err
		}
		if !converted {
			log.Debug().
				Uint64("id", order.ID()).
				Stringer("side", order.Side()).
				Msg("rejected market order: no opposing liquidity")
			return nil, nil
		}
	}

	if order.Type() == common.FillAndKill && !book.canMatch(order.Side(), order.Price()) {
		log.Debug().
			Uint64("id", order.ID()).
			Int64("price", order.Price()).
			Msg("rejected fill and kill order: no cross")
		return nil, nil
	}

	book.insert(order)
	return book.match()
}

// convertMarket pegs a Market order to the worst price resting on the
// opposite side, so it can sweep every opposing level during this admission.
// It reports false when the opposite side is empty.
func (book *OrderBook) convertMarket(order *common.Order) (bool, error) {
	// Max on either tree is the least favourable price: the highest ask or the
	// lowest bid.
	worst, ok := book.levels(order.Side().Opposite()).Max()
	if !ok {
		return false, nil
	}
	if err := order.ToGoodTillCancel(worst.price); err != nil {
		return false, err
	}
	return true, nil
}

// canMatch reports whether an order on side at price would cross the best
// opposing level.
func (book *OrderBook) canMatch(side common.Side, price common.Price) bool {
	switch side {
	case common.Buy:
		bestAsk, ok := book.asks.Min()
		return ok && price >= bestAsk.price
	case common.Sell:
		bestBid, ok := book.bids.Min()
		return ok && price <= bestBid.price
	}
	return false
}

// insert appends order to the tail of its price level, creating the level if
// absent, and registers its handle.
func (book *OrderBook) insert(order *common.Order) {
	levels := book.levels(order.Side())

	// Levels comparator only accounts for prices, so search with a dummy level.
	level, ok := levels.GetMut(&PriceLevel{price: order.Price()})
	if !ok {
		level = &PriceLevel{price: order.Price()}
		levels.Set(level)
	}
	book.orders[order.ID()] = level.pushBack(order)
}

// CancelOrder removes a resting order. Unknown ids are ignored.
func (book *OrderBook) CancelOrder(id common.OrderID) {
	node, ok := book.orders[id]
	if !ok {
		return
	}
	book.remove(node)
}

// remove unlinks node from its level, drops the level once empty and erases
// the registry entry.
func (book *OrderBook) remove(node *orderNode) {
	order, level := node.order, node.level
	level.remove(node)
	if level.empty() {
		book.levels(order.Side()).Delete(level)
	}
	delete(book.orders, order.ID())
}

// ModifyOrder replaces an existing order with new side, price and quantity,
// keeping its order type. The replacement re-enters at the back of its level:
// time priority is not kept, even when only the quantity changes.
//
// Unknown ids are ignored. Invalid replacement parameters leave the existing
// order resting and are returned as an error.
func (book *OrderBook) ModifyOrder(modify common.OrderModify) (common.Trades, error) {
	node, ok := book.orders[modify.ID]
	if !ok {
		return nil, nil
	}

	order, err := modify.ToOrder(node.order.Type())
	if err != nil {
		return nil, err
	}

	book.remove(node)
	return book.AddOrder(order)
}

// Match consumes the top of book price levels while they cross (i.e., bid >= ask).
// While these orders cross, we match orders in price-time-priority.
//
// Once nothing crosses, a Fill-and-Kill order left at the top of either side
// is cancelled: it could only have partially filled and may not rest.
func (book *OrderBook) match() (common.Trades, error) {
	var trades common.Trades

	for {
		bestBid, bidOk := book.bids.MinMut()
		bestAsk, askOk := book.asks.MinMut()

		// If either side is empty, or prices don't cross, we are done.
		if !bidOk || !askOk || bestBid.price < bestAsk.price {
			break
		}

		// Walk both queues front to back until one of the levels runs dry,
		// then re-evaluate the new best levels.
		for !bestBid.empty() && !bestAsk.empty() {
			bidNode, askNode := bestBid.front(), bestAsk.front()
			bid, ask := bidNode.order, askNode.order

			quantity := min(bid.RemainingQuantity(), ask.RemainingQuantity())
			if err := bid.Fill(quantity); err != nil {
				return trades, err
			}
			if err := ask.Fill(quantity); err != nil {
				return trades, err
			}

			trades = append(trades, common.Trade{
				Bid: common.TradeInfo{OrderID: bid.ID(), Price: bestBid.price, Quantity: quantity},
				Ask: common.TradeInfo{OrderID: ask.ID(), Price: bestAsk.price, Quantity: quantity},
			})

			if bid.IsFilled() {
				book.remove(bidNode)
			}
			if ask.IsFilled() {
				book.remove(askNode)
			}
		}
	}

	book.killFront(book.bids)
	book.killFront(book.asks)

	return trades, nil
}

// killFront cancels the order at the front of the best level of levels if it
// is a Fill-and-Kill order.
func (book *OrderBook) killFront(levels *PriceLevels) {
	best, ok := levels.Min()
	if !ok {
		return
	}
	if order := best.front().order; order.Type() == common.FillAndKill {
		log.Debug().
			Uint64("id", order.ID()).
			Uint64("remaining", order.RemainingQuantity()).
			Msg("killed fill and kill remainder")
		book.CancelOrder(order.ID())
	}
}

func (book *OrderBook) levels(side common.Side) *PriceLevels {
	if side == common.Buy {
		return book.bids
	}
	return book.asks
}

// Size returns the number of resting orders.
func (book *OrderBook) Size() int {
	return len(book.orders)
}

// Order returns a copy of a resting order.
func (book *OrderBook) Order(id common.OrderID) (common.Order, bool) {
	node, ok := book.orders[id]
	if !ok {
		return common.Order{}, false
	}
	return *node.order, true
}

// BestBid returns the highest resting bid price.
func (book *OrderBook) BestBid() (common.Price, bool) {
	level, ok := book.bids.Min()
	if !ok {
		return 0, false
	}
	return level.price, true
}

// BestAsk returns the lowest resting ask price.
func (book *OrderBook) BestAsk() (common.Price, bool) {
	level, ok := book.asks.Min()
	if !ok {
		return 0, false
	}
	return level.price, true
}

// Levels aggregates the remaining quantity per price on both sides, bids
// highest first and asks lowest first. The result is a copy.
func (book *OrderBook) Levels() common.OrderBookLevels {
	return common.OrderBookLevels{
		Bids: levelInfos(book.bids),
		Asks: levelInfos(book.asks),
	}
}

func levelInfos(levels *PriceLevels) common.LevelInfos {
	infos := make(common.LevelInfos, 0, levels.Len())
	levels.Scan(func(level *PriceLevel) bool {
		infos = append(infos, common.LevelInfo{Price: level.price, Quantity: level.quantity()})
		return true
	})
	return infos
}
