package common

// LevelInfo aggregates the remaining quantity resting at one price.
type LevelInfo struct {
	Price    Price
	Quantity Quantity
}

type LevelInfos []LevelInfo

// OrderBookLevels is a point in time copy of both sides of a book. Bids are
// ordered best (highest) first, asks best (lowest) first.
type OrderBookLevels struct {
	Bids LevelInfos
	Asks LevelInfos
}
