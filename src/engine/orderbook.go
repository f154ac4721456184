package engine

import (
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// PriceLevel bundles every resting order at one price on one side. Orders
// are appended in arrival order and always matched from the head — no
// order in the queue may have zero remaining quantity once a Process call
// returns (spec.md §3, Ladder invariants).
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*Order
}

// bidLevelItem sorts descending (highest price is Min() in the btree).
type bidLevelItem struct {
	level *PriceLevel
}

func (b *bidLevelItem) Less(than btree.Item) bool {
	return b.level.Price.GreaterThan(than.(*bidLevelItem).level.Price)
}

// askLevelItem sorts ascending (lowest price is Min() in the btree).
type askLevelItem struct {
	level *PriceLevel
}

func (a *askLevelItem) Less(than btree.Item) bool {
	return a.level.Price.LessThan(than.(*askLevelItem).level.Price)
}

// OrderBook owns exactly one bid ladder and one ask ladder for a single
// symbol. Book-crossed guard: after any completed Process call, best bid <
// best ask, or at least one side is empty.
type OrderBook struct {
	Symbol string
	bids   *btree.BTree // descending, degree 32 matches the teacher's tuning
	asks   *btree.BTree // ascending

	orders map[int64]*Order // id -> resting order, for status lookups only

	mu sync.Mutex
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		bids:   btree.New(32),
		asks:   btree.New(32),
		orders: make(map[int64]*Order),
	}
}

// Process runs the full matching state machine for one incoming order and
// returns the trades it produced, in execution order. See spec.md §4.2.2.
func (ob *OrderBook) Process(order *Order) []*Trade {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.processLocked(order)
}

// Lock and Unlock let a caller (the MatchingEngine) hold this book's lock
// across a whole snapshot/process/snapshot/emit sequence, so a concurrent
// Submit for the same symbol can't interleave between the pieces. Callers
// that lock directly must use the *Locked accessors below instead of the
// public ones, which would otherwise deadlock re-acquiring ob.mu.
func (ob *OrderBook) Lock()   { ob.mu.Lock() }
func (ob *OrderBook) Unlock() { ob.mu.Unlock() }

// ProcessLocked is Process for a caller that already holds ob.mu (see Lock).
func (ob *OrderBook) ProcessLocked(order *Order) []*Trade {
	return ob.processLocked(order)
}

// DepthLocked is Depth for a caller that already holds ob.mu (see Lock).
func (ob *OrderBook) DepthLocked(n int, side OrderSide) []DepthLevel {
	return ob.depthLocked(n, side)
}

// BBOLocked is BBO for a caller that already holds ob.mu (see Lock).
func (ob *OrderBook) BBOLocked() (bid, ask decimal.Decimal, ok bool) {
	return ob.bboLocked()
}

func (ob *OrderBook) processLocked(order *Order) []*Trade {
	if order.Remaining.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	if order.Type == TypeFOK {
		if !ob.canFillLocked(order) {
			return nil
		}
	}

	trades := ob.matchLocked(order)

	if order.RemainingQty().GreaterThan(decimal.Zero) && order.Type == TypeLimit {
		ob.restLocked(order)
	}

	return trades
}

// canFillLocked walks the opposite ladder from best outward, summing
// executable quantity, stopping at levels beyond the order's limit for a
// priced FOK. Caller holds ob.mu.
func (ob *OrderBook) canFillLocked(order *Order) bool {
	needed := order.Remaining
	available := decimal.Zero

	opposite := ob.oppositeTree(order.Side)
	opposite.Ascend(func(item btree.Item) bool {
		level := levelOf(item)
		if order.Side == SideBuy && order.Price.LessThan(level.Price) {
			return false
		}
		if order.Side == SideSell && order.Price.GreaterThan(level.Price) {
			return false
		}
		for _, o := range level.Orders {
			available = available.Add(o.RemainingQty())
		}
		return available.LessThan(needed)
	})
	return available.GreaterThanOrEqual(needed)
}

// matchLocked runs the price-time matching loop. Caller holds ob.mu.
func (ob *OrderBook) matchLocked(order *Order) []*Trade {
	var trades []*Trade

	for order.RemainingQty().GreaterThan(decimal.Zero) {
		tree := ob.oppositeTree(order.Side)
		item := tree.Min()
		if item == nil {
			break
		}
		level := levelOf(item)

		if order.Type != TypeMarket {
			if order.Side == SideBuy && order.Price.LessThan(level.Price) {
				break
			}
			if order.Side == SideSell && order.Price.GreaterThan(level.Price) {
				break
			}
		}

		if len(level.Orders) == 0 {
			tree.Delete(item)
			continue
		}

		maker := level.Orders[0]
		makerRemaining := maker.RemainingQty()
		if makerRemaining.LessThanOrEqual(decimal.Zero) {
			level.Orders = level.Orders[1:]
			continue
		}

		qty := decimal.Min(order.RemainingQty(), makerRemaining)

		trade := newTrade(ob.Symbol, level.Price, qty, order.Side, maker.ID, order.ID)
		trades = append(trades, trade)

		order.Reduce(qty)
		maker.Reduce(qty)

		if maker.IsFilled() {
			level.Orders = level.Orders[1:]
			delete(ob.orders, maker.ID)
			if len(level.Orders) == 0 {
				tree.Delete(item)
			}
		}
	}

	return trades
}

// restLocked appends the order's residual to the tail of its side's level,
// creating the level if absent. Caller holds ob.mu.
func (ob *OrderBook) restLocked(order *Order) {
	tree := ob.sameTree(order.Side)
	probe := ob.probeItem(order.Side, order.Price)

	existing := tree.Get(probe)
	var level *PriceLevel
	if existing != nil {
		level = levelOf(existing)
	} else {
		level = &PriceLevel{Price: order.Price}
		tree.ReplaceOrInsert(ob.wrapItem(order.Side, level))
	}

	level.Orders = append(level.Orders, order)
	ob.orders[order.ID] = order
}

// BBO returns the best bid and ask prices, or ok=false if either side is
// empty.
func (ob *OrderBook) BBO() (bid, ask decimal.Decimal, ok bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.bboLocked()
}

func (ob *OrderBook) bboLocked() (bid, ask decimal.Decimal, ok bool) {
	bidItem := ob.bids.Min()
	askItem := ob.asks.Min()
	if bidItem == nil || askItem == nil {
		return decimal.Zero, decimal.Zero, false
	}
	return levelOf(bidItem).Price, levelOf(askItem).Price, true
}

// DepthLevel is one aggregated (price, quantity) pair.
type DepthLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Depth returns at most the top n levels of the requested side, best first.
func (ob *OrderBook) Depth(n int, side OrderSide) []DepthLevel {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.depthLocked(n, side)
}

func (ob *OrderBook) depthLocked(n int, side OrderSide) []DepthLevel {
	tree := ob.sameTree(side)
	out := make([]DepthLevel, 0, n)
	count := 0
	tree.Ascend(func(item btree.Item) bool {
		if count >= n {
			return false
		}
		level := levelOf(item)
		total := decimal.Zero
		for _, o := range level.Orders {
			total = total.Add(o.RemainingQty())
		}
		out = append(out, DepthLevel{Price: level.Price, Quantity: total})
		count++
		return true
	})
	return out
}

// GetOrder looks up a resting order by id, for status queries only — the
// core never exposes cancel (spec.md §1 Non-goals).
func (ob *OrderBook) GetOrder(id int64) (*Order, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	o, ok := ob.orders[id]
	return o, ok
}

func (ob *OrderBook) RestingCount() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return len(ob.orders)
}

func (ob *OrderBook) oppositeTree(side OrderSide) *btree.BTree {
	if side == SideBuy {
		return ob.asks
	}
	return ob.bids
}

func (ob *OrderBook) sameTree(side OrderSide) *btree.BTree {
	if side == SideBuy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) wrapItem(side OrderSide, level *PriceLevel) btree.Item {
	if side == SideBuy {
		return &bidLevelItem{level: level}
	}
	return &askLevelItem{level: level}
}

func (ob *OrderBook) probeItem(side OrderSide, price decimal.Decimal) btree.Item {
	return ob.wrapItem(side, &PriceLevel{Price: price})
}

func levelOf(item btree.Item) *PriceLevel {
	switch v := item.(type) {
	case *bidLevelItem:
		return v.level
	case *askLevelItem:
		return v.level
	default:
		return nil
	}
}
