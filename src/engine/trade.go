package engine

import (
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// process-wide, strictly increasing, shared across symbols (same scheme as
// order ids — see spec.md §9 "Order identity scope").
var tradeIDCounter int64

func nextTradeID() int64 {
	return atomic.AddInt64(&tradeIDCounter, 1)
}

// Trade is immutable once created. Price always equals the maker's resting
// limit price at match time (spec.md §3, "Maker-price invariant").
type Trade struct {
	ID            int64
	Symbol        string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	AggressorSide OrderSide
	MakerOrderID  int64
	TakerOrderID  int64
	Timestamp     int64
}

func newTrade(symbol string, price, quantity decimal.Decimal, aggressor OrderSide, makerID, takerID int64) *Trade {
	return &Trade{
		ID:            nextTradeID(),
		Symbol:        symbol,
		Price:         price,
		Quantity:      quantity,
		AggressorSide: aggressor,
		MakerOrderID:  makerID,
		TakerOrderID:  takerID,
		Timestamp:     time.Now().UnixMilli(),
	}
}
