package engine

import (
	"sync"
)

const topDepth = 10

// MatchingEngine owns a symbol -> OrderBook mapping, lazily creating books
// on first use, and fans out trade/market-data events after each Submit.
type MatchingEngine struct {
	books map[string]*OrderBook
	mu    sync.RWMutex

	tradeSinks      *SinkRegistry
	marketDataSinks *SinkRegistry
}

func NewMatcher() *MatchingEngine {
	return &MatchingEngine{
		books:           make(map[string]*OrderBook),
		tradeSinks:      NewSinkRegistry(),
		marketDataSinks: NewSinkRegistry(),
	}
}

// GetOrCreateOrderBook returns the book for symbol, creating it on first
// reference. Symbols are used verbatim as map keys — no normalization.
func (m *MatchingEngine) GetOrCreateOrderBook(symbol string) *OrderBook {
	m.mu.RLock()
	if ob, exists := m.books[symbol]; exists {
		m.mu.RUnlock()
		return ob
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// double-check after acquiring the write lock
	if ob, exists := m.books[symbol]; exists {
		return ob
	}

	ob := NewOrderBook(symbol)
	m.books[symbol] = ob
	return ob
}

func (m *MatchingEngine) BooksSnapshot() map[string]*OrderBook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]*OrderBook, len(m.books))
	for k, v := range m.books {
		snapshot[k] = v
	}
	return snapshot
}

// Submit routes order to its book, matches it, and emits events. Trades are
// emitted in execution order, followed by at most one market-data event —
// spec.md §4.3.3.
//
// The whole before-snapshot/process/after-snapshot/emit sequence runs under
// the book's own lock, held for its entire duration. Two overlapping Submit
// calls for the same symbol would otherwise be able to interleave between
// separately-locked snapshot/process/snapshot steps: one goroutine's
// "before" snapshot could be taken, the other's entire process-and-emit
// could run, and the first would then diff against a now-stale "before",
// producing a wrong emit decision and reordering trades relative to when
// they actually matched. Holding one lock across the sequence serializes
// Submit per symbol, matching spec.md §5's per-symbol ordering guarantee.
func (m *MatchingEngine) Submit(order *Order) []*Trade {
	book := m.GetOrCreateOrderBook(order.Symbol)

	book.Lock()
	defer book.Unlock()

	beforeBids := book.DepthLocked(topDepth, SideBuy)
	beforeAsks := book.DepthLocked(topDepth, SideSell)

	trades := book.ProcessLocked(order)

	for _, t := range trades {
		m.tradeSinks.Emit(encodeTradeEvent(t))
	}

	afterBids := book.DepthLocked(topDepth, SideBuy)
	afterAsks := book.DepthLocked(topDepth, SideSell)

	if !depthEqual(beforeBids, afterBids) || !depthEqual(beforeAsks, afterAsks) {
		m.emitMarketDataLocked(book, afterBids, afterAsks)
	}

	return trades
}

func (m *MatchingEngine) emitMarketDataLocked(book *OrderBook, bids, asks []DepthLevel) {
	// Each side's best price is the head of its depth snapshot, or null when
	// that side is empty.
	var bidPtr, askPtr *string
	if len(bids) > 0 {
		b := bids[0].Price.StringFixed(6)
		bidPtr = &b
	}
	if len(asks) > 0 {
		a := asks[0].Price.StringFixed(6)
		askPtr = &a
	}
	m.marketDataSinks.Emit(encodeL2Update(book.Symbol, bidPtr, askPtr, bids, asks))
}

// depthEqual is a structural comparison of two top-N (price, quantity)
// sequences — cheaper than the source's serialize-then-string-compare
// approach and equivalent per spec.md §9.
func depthEqual(a, b []DepthLevel) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Price.Equal(b[i].Price) || !a[i].Quantity.Equal(b[i].Quantity) {
			return false
		}
	}
	return true
}

func (m *MatchingEngine) SubscribeTradeSink(sink EventSink) SinkID {
	return m.tradeSinks.Add(sink)
}

func (m *MatchingEngine) SubscribeMarketDataSink(sink EventSink) SinkID {
	return m.marketDataSinks.Add(sink)
}

func (m *MatchingEngine) UnsubscribeTradeSink(id SinkID) {
	m.tradeSinks.Remove(id)
}

func (m *MatchingEngine) UnsubscribeMarketDataSink(id SinkID) {
	m.marketDataSinks.Remove(id)
}

func (m *MatchingEngine) TradeSinkCount() int {
	return m.tradeSinks.Len()
}

func (m *MatchingEngine) MarketDataSinkCount() int {
	return m.marketDataSinks.Len()
}
