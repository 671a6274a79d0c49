package engine

import (
	"matchbook/internal/common"

	"github.com/tidwall/btree"
)

// orderNode is the stable handle an order keeps into its level's queue. The
// registry holds the node itself, so cancellation unlinks it directly.
type orderNode struct {
	order *common.Order
	level *PriceLevel
	prev  *orderNode
	next  *orderNode
}

// PriceLevel is a FIFO queue of orders resting at a single price, oldest at
// the head.
type PriceLevel struct {
	price common.Price
	head  *orderNode
	tail  *orderNode
	count int
}

type PriceLevels = btree.BTreeG[*PriceLevel]

func newBidLevels() *PriceLevels {
	// Sorted greatest first.
	return btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.price > b.price
	})
}

func newAskLevels() *PriceLevels {
	// Sorted least first.
	return btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.price < b.price
	})
}

func (level *PriceLevel) Price() common.Price { return level.price }
func (level *PriceLevel) Len() int            { return level.count }
func (level *PriceLevel) empty() bool         { return level.head == nil }

// front returns the oldest order at this level.
func (level *PriceLevel) front() *orderNode { return level.head }

// pushBack appends order to the tail and returns its handle.
func (level *PriceLevel) pushBack(order *common.Order) *orderNode {
	node := &orderNode{order: order, level: level}
	if level.tail == nil {
		level.head = node
	} else {
		level.tail.next = node
		node.prev = level.tail
	}
	level.tail = node
	level.count++
	return node
}

// remove unlinks node from anywhere in the queue.
func (level *PriceLevel) remove(node *orderNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		level.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		level.tail = node.prev
	}
	node.prev, node.next, node.level = nil, nil, nil
	level.count--
}

// quantity sums the remaining quantity of every order at this level.
func (level *PriceLevel) quantity() common.Quantity {
	var total common.Quantity
	for n := level.head; n != nil; n = n.next {
		total += n.order.RemainingQuantity()
	}
	return total
}
