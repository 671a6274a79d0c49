package engine

import (
	"testing"

	. "matchbook/internal/common"

	"pgregory.net/rapid"
)

// Random sequences of book operations must keep every index consistent and
// conserve quantity across trades.
func TestProperty_BookInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook()

		// initial and filled quantity per order id ever admitted.
		initial := make(map[OrderID]Quantity)
		filled := make(map[OrderID]Quantity)
		nextID := OrderID(1)

		checkTrades := func(trades Trades) {
			for _, trade := range trades {
				if trade.Bid.Quantity == 0 || trade.Bid.Quantity != trade.Ask.Quantity {
					t.Fatalf("unbalanced trade %v", trade)
				}
				if trade.Bid.Price < trade.Ask.Price {
					t.Fatalf("trade matched a bid below the ask: %v", trade)
				}
				filled[trade.Bid.OrderID] += trade.Bid.Quantity
				filled[trade.Ask.OrderID] += trade.Ask.Quantity
			}
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0, 1:
				orderType := OrderType(rapid.IntRange(0, 2).Draw(t, "type"))
				side := Side(rapid.IntRange(0, 1).Draw(t, "side"))
				price := Price(rapid.Int64Range(95, 105).Draw(t, "price"))
				qty := Quantity(rapid.Uint64Range(1, 20).Draw(t, "qty"))

				order, err := NewOrder(orderType, nextID, side, price, qty)
				if err != nil {
					t.Fatalf("building order: %v", err)
				}
				initial[nextID] = qty
				nextID++

				trades, err := book.AddOrder(order)
				if err != nil {
					t.Fatalf("add: %v", err)
				}
				checkTrades(trades)
			case 2:
				if nextID == 1 {
					continue
				}
				id := OrderID(rapid.Uint64Range(1, uint64(nextID)).Draw(t, "cancel"))
				before := book.Size()
				_, resting := book.Order(id)
				book.CancelOrder(id)
				if resting && book.Size() != before-1 || !resting && book.Size() != before {
					t.Fatalf("cancel of %d changed size from %d to %d", id, before, book.Size())
				}
			case 3:
				if nextID == 1 {
					continue
				}
				id := OrderID(rapid.Uint64Range(1, uint64(nextID)).Draw(t, "modify"))
				modify := OrderModify{
					ID:       id,
					Side:     Side(rapid.IntRange(0, 1).Draw(t, "side")),
					Price:    Price(rapid.Int64Range(95, 105).Draw(t, "price")),
					Quantity: Quantity(rapid.Uint64Range(1, 20).Draw(t, "qty")),
				}
				if _, ok := book.Order(id); ok {
					// A modify starts the order over with fresh quantity.
					initial[id] = modify.Quantity
					filled[id] = 0
				}
				trades, err := book.ModifyOrder(modify)
				if err != nil {
					t.Fatalf("modify: %v", err)
				}
				checkTrades(trades)
			}

			if err := book.verify(); err != nil {
				t.Fatalf("after step %d: %v", i, err)
			}
			for id, qty := range filled {
				if qty > initial[id] {
					t.Fatalf("order %d filled %d of %d", id, qty, initial[id])
				}
				if order, ok := book.Order(id); ok && order.RemainingQuantity()+qty != initial[id] {
					t.Fatalf("order %d remaining %d + filled %d != initial %d",
						id, order.RemainingQuantity(), qty, initial[id])
				}
			}
		}
	})
}

// A Fill-and-Kill order either trades immediately or leaves no trace.
func TestProperty_FillAndKillNeverRests(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook()
		n := rapid.IntRange(0, 10).Draw(t, "resting")
		for i := 0; i < n; i++ {
			order, err := NewOrder(
				GoodTillCancel,
				OrderID(i+1),
				Sell,
				Price(rapid.Int64Range(100, 110).Draw(t, "askPrice")),
				Quantity(rapid.Uint64Range(1, 10).Draw(t, "askQty")),
			)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := book.AddOrder(order); err != nil {
				t.Fatal(err)
			}
		}

		id := OrderID(1000)
		price := Price(rapid.Int64Range(95, 115).Draw(t, "fakPrice"))
		order, err := NewOrder(FillAndKill, id, Buy, price, Quantity(rapid.Uint64Range(1, 50).Draw(t, "fakQty")))
		if err != nil {
			t.Fatal(err)
		}
		crossed := book.canMatch(Buy, price)
		trades, err := book.AddOrder(order)
		if err != nil {
			t.Fatal(err)
		}

		if !crossed && len(trades) != 0 {
			t.Fatalf("non-crossing fill and kill traded: %v", trades)
		}
		if crossed && len(trades) == 0 {
			t.Fatalf("crossing fill and kill did not trade")
		}
		if _, ok := book.Order(id); ok {
			t.Fatalf("fill and kill order %d rests on the book", id)
		}
		if err := book.verify(); err != nil {
			t.Fatal(err)
		}
	})
}
