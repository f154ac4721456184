package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

type OrderType string

const (
	TypeMarket OrderType = "market"
	TypeLimit  OrderType = "limit"
	TypeIOC    OrderType = "ioc"
	TypeFOK    OrderType = "fok"
)

type OrderStatus string

const (
	StatusAccepted    OrderStatus = "ACCEPTED"
	StatusPartialFill OrderStatus = "PARTIAL_FILL"
	StatusFilled      OrderStatus = "FILLED"
	StatusRejected    OrderStatus = "REJECTED" // Market/IOC/FOK with zero fills
)

// process-wide, strictly increasing counters. The source assigned a UUID
// per order; spec.md requires an integer identity shared across symbols,
// so the counter (not the string) is what's monotonic and unique here.
var orderIDCounter int64

func nextOrderID() int64 {
	return atomic.AddInt64(&orderIDCounter, 1)
}

// Order is immutable on create except for Remaining, which only decreases,
// and Status, which follows it.
type Order struct {
	ID        int64
	Symbol    string
	Side      OrderSide
	Type      OrderType
	Price     decimal.Decimal // meaningful for Limit/IOC/FOK, ignored for Market
	Quantity  decimal.Decimal // quantity at construction, never mutated
	Remaining decimal.Decimal
	Status    OrderStatus
	Timestamp int64

	statusMu sync.Mutex
	qtyMu    sync.Mutex
}

// NewOrder assigns the next order id. Market orders ignore whatever price
// is supplied. Validating that quantity/price are positive is the
// submission layer's contract, not the core's — see spec.md §4.2.5.
func NewOrder(symbol string, side OrderSide, orderType OrderType, price, quantity decimal.Decimal) *Order {
	if orderType == TypeMarket {
		price = decimal.Zero
	}
	return &Order{
		ID:        nextOrderID(),
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Price:     price,
		Quantity:  quantity,
		Remaining: quantity,
		Status:    StatusAccepted,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Reduce decrements remaining quantity by amount. If amount exceeds
// remaining, the reduction is silently skipped: the matcher always computes
// amount = min(taker.remaining, maker.remaining) before calling, so this
// guard only protects against a caller bug.
func (o *Order) Reduce(amount decimal.Decimal) {
	o.qtyMu.Lock()
	if amount.GreaterThan(o.Remaining) {
		o.qtyMu.Unlock()
		return
	}
	o.Remaining = o.Remaining.Sub(amount)
	filled := o.Remaining.IsZero()
	o.qtyMu.Unlock()

	o.statusMu.Lock()
	if filled {
		o.Status = StatusFilled
	} else if o.Remaining.LessThan(o.Quantity) {
		o.Status = StatusPartialFill
	}
	o.statusMu.Unlock()
}

func (o *Order) RemainingQty() decimal.Decimal {
	o.qtyMu.Lock()
	defer o.qtyMu.Unlock()
	return o.Remaining
}

func (o *Order) IsFilled() bool {
	o.qtyMu.Lock()
	defer o.qtyMu.Unlock()
	return o.Remaining.IsZero()
}

func (o *Order) GetStatus() OrderStatus {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	return o.Status
}

func (o *Order) SetStatus(status OrderStatus) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	o.Status = status
}
