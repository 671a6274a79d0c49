package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchbook/internal/common"
	"matchbook/internal/metrics"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	DefaultQueueSize  = 1024
	reportsBufferSize = 1024
)

var ErrEngineStopped = errors.New("engine stopped")

// Reporter receives every batch of trades the book produces, in order.
type Reporter interface {
	ReportTrades(symbol string, trades common.Trades) error
}

// AddResult describes the outcome of an admission.
type AddResult struct {
	Trades common.Trades
	// Accepted is false when the book rejected the order outright (duplicate
	// id, unfillable Market or non-crossing Fill-and-Kill).
	Accepted bool
	// Resting is the quantity left on the book for the order after matching.
	Resting common.Quantity
	// Removed lists every order that traded during the admission and no
	// longer rests on the book, counterparties included.
	Removed []common.OrderID
}

// This is the main matching engine. It owns the book for one instrument and
// is the single writer to it: every operation is queued as a command and
// applied by one goroutine, in submission order.
type Engine struct {
	symbol    string
	book      *OrderBook
	commands  chan command
	reports   chan common.Trades
	stopped   chan struct{}
	reporters []Reporter
}

type command struct {
	name  string
	apply func(book *OrderBook) (common.Trades, error)
	done  chan error
}

func New(symbol string, queueSize int) *Engine {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Engine{
		symbol:   symbol,
		book:     NewOrderBook(),
		commands: make(chan command, queueSize),
		reports:  make(chan common.Trades, reportsBufferSize),
		stopped:  make(chan struct{}),
	}
}

// AddReporter registers a trade reporter. It must be called before Run.
func (engine *Engine) AddReporter(reporter Reporter) {
	engine.reporters = append(engine.reporters, reporter)
}

func (engine *Engine) Symbol() string {
	return engine.symbol
}

// Run applies queued commands until the tomb starts dying. A broken book
// invariant stops the engine and is returned so the tomb dies with it.
func (engine *Engine) Run(t *tomb.Tomb) error {
	defer close(engine.stopped)

	t.Go(func() error {
		engine.report(t)
		return nil
	})

	log.Info().Str("symbol", engine.symbol).Msg("engine running")
	for {
		select {
		case <-t.Dying():
			log.Info().Str("symbol", engine.symbol).Msg("engine stopping")
			return nil
		case cmd := <-engine.commands:
			if err := engine.execute(t, cmd); err != nil {
				log.Error().
					Err(err).
					Str("symbol", engine.symbol).
					Str("command", cmd.name).
					Msg("book invariant broken, stopping engine")
				return err
			}
		}
	}
}

// execute applies a single command and returns an error only when the book
// can no longer be trusted.
func (engine *Engine) execute(t *tomb.Tomb, cmd command) error {
	start := time.Now()
	trades, err := cmd.apply(engine.book)
	metrics.CommandDuration.WithLabelValues(engine.symbol, cmd.name).Observe(time.Since(start).Seconds())
	metrics.RestingOrders.WithLabelValues(engine.symbol).Set(float64(engine.book.Size()))

	if len(trades) > 0 {
		metrics.TradesTotal.WithLabelValues(engine.symbol).Add(float64(len(trades)))
		metrics.TradedQuantityTotal.WithLabelValues(engine.symbol).Add(float64(trades.Quantity()))
		if len(engine.reporters) > 0 {
			select {
			case engine.reports <- trades:
			case <-t.Dying():
			}
		}
	}

	cmd.done <- err
	if errors.Is(err, common.ErrInvariantViolation) {
		return err
	}
	return nil
}

// report fans trades out to the reporters off the matching goroutine.
func (engine *Engine) report(t *tomb.Tomb) {
	for {
		select {
		case <-t.Dying():
			return
		case trades := <-engine.reports:
			for _, reporter := range engine.reporters {
				if err := reporter.ReportTrades(engine.symbol, trades); err != nil {
					metrics.ReportErrorsTotal.WithLabelValues(fmt.Sprintf("%T", reporter)).Inc()
					log.Error().
						Err(err).
						Str("symbol", engine.symbol).
						Int("trades", len(trades)).
						Msg("unable to report trades")
				}
			}
		}
	}
}

// submit queues apply and waits for the engine to run it.
func (engine *Engine) submit(
	ctx context.Context,
	name string,
	apply func(book *OrderBook) (common.Trades, error),
) error {
	cmd := command{name: name, apply: apply, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-engine.stopped:
		return ErrEngineStopped
	case engine.commands <- cmd:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-engine.stopped:
		// The command may have been applied just before the engine stopped.
		select {
		case err := <-cmd.done:
			return err
		default:
			return ErrEngineStopped
		}
	case err := <-cmd.done:
		return err
	}
}

// AddOrder admits order to the book. See OrderBook.AddOrder. A nil order is
// rejected without reaching the book.
func (engine *Engine) AddOrder(ctx context.Context, order *common.Order) (AddResult, error) {
	if order == nil {
		return AddResult{}, nil
	}
	id, orderType := order.ID(), order.Type()

	var result AddResult
	err := engine.submit(ctx, "add", func(book *OrderBook) (common.Trades, error) {
		var err error
		result, err = admit(book, id, false, func() (common.Trades, error) {
			return book.AddOrder(order)
		})
		return result.Trades, err
	})
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(engine.symbol, orderType.String(), metrics.OutcomeError).Inc()
		return AddResult{}, err
	}

	outcome := metrics.OutcomeAccepted
	if !result.Accepted {
		outcome = metrics.OutcomeRejected
	}
	metrics.OrdersTotal.WithLabelValues(engine.symbol, orderType.String(), outcome).Inc()
	return result, nil
}

// ModifyOrder replaces a resting order. See OrderBook.ModifyOrder.
func (engine *Engine) ModifyOrder(ctx context.Context, modify common.OrderModify) (AddResult, error) {
	var result AddResult
	err := engine.submit(ctx, "modify", func(book *OrderBook) (common.Trades, error) {
		var err error
		result, err = admit(book, modify.ID, true, func() (common.Trades, error) {
			return book.ModifyOrder(modify)
		})
		return result.Trades, err
	})
	if err != nil {
		return AddResult{}, err
	}
	return result, nil
}

// CancelOrder removes a resting order. Unknown ids are a no-op.
func (engine *Engine) CancelOrder(ctx context.Context, id common.OrderID) error {
	err := engine.submit(ctx, "cancel", func(book *OrderBook) (common.Trades, error) {
		book.CancelOrder(id)
		return nil, nil
	})
	if err == nil {
		metrics.CancelsTotal.WithLabelValues(engine.symbol).Inc()
	}
	return err
}

// Size returns the number of resting orders.
func (engine *Engine) Size(ctx context.Context) (int, error) {
	var size int
	err := engine.submit(ctx, "size", func(book *OrderBook) (common.Trades, error) {
		size = book.Size()
		return nil, nil
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

// Levels returns a copy of the aggregated book levels.
func (engine *Engine) Levels(ctx context.Context) (common.OrderBookLevels, error) {
	var levels common.OrderBookLevels
	err := engine.submit(ctx, "levels", func(book *OrderBook) (common.Trades, error) {
		levels = book.Levels()
		return nil, nil
	})
	if err != nil {
		return common.OrderBookLevels{}, err
	}
	return levels, nil
}

// admit runs add against book and classifies the outcome for order id.
// replacing is set when id is expected to already rest on the book.
func admit(
	book *OrderBook,
	id common.OrderID,
	replacing bool,
	add func() (common.Trades, error),
) (AddResult, error) {
	_, existed := book.orders[id]
	trades, err := add()
	if err != nil {
		return AddResult{Trades: trades}, err
	}

	result := AddResult{Trades: trades, Removed: removed(book, trades)}
	if existed != replacing {
		return result, nil
	}
	if node, ok := book.orders[id]; ok {
		result.Resting = node.order.RemainingQuantity()
	}
	result.Accepted = len(trades) > 0 || result.Resting > 0
	return result, nil
}

// removed returns the ids appearing in trades that no longer rest on book, in
// first-trade order.
func removed(book *OrderBook, trades common.Trades) []common.OrderID {
	var ids []common.OrderID
	seen := make(map[common.OrderID]struct{})
	for _, trade := range trades {
		for _, id := range []common.OrderID{trade.Bid.OrderID, trade.Ask.OrderID} {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if _, resting := book.orders[id]; !resting {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
