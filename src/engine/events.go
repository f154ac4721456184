package engine

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// EventSink is the write-capable, writability-queryable handle a
// downstream collaborator (SSE connection, websocket connection, or a test
// double) implements to receive core events. See spec.md §6.2.
type EventSink interface {
	Write(p []byte) (n int, err error)
	Writable() bool
}

// SinkID identifies a registered sink so it can be evicted later. Sinks
// themselves carry no identity requirement; the registry assigns one.
type SinkID string

func newSinkID() SinkID {
	return SinkID(uuid.New().String())
}

type registeredSink struct {
	id   SinkID
	sink EventSink
}

// SinkRegistry fans a byte payload out to every registered sink under one
// lock held across the whole fan-out, so a sink can't be removed mid-write
// and an add can't observe a partial emission (spec.md §5).
type SinkRegistry struct {
	mu    sync.Mutex
	sinks []registeredSink
}

func NewSinkRegistry() *SinkRegistry {
	return &SinkRegistry{}
}

func (r *SinkRegistry) Add(sink EventSink) SinkID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := newSinkID()
	r.sinks = append(r.sinks, registeredSink{id: id, sink: sink})
	return id
}

func (r *SinkRegistry) Remove(id SinkID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, rs := range r.sinks {
		if rs.id == id {
			r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
			return
		}
	}
}

// Emit writes payload to every registered sink. A write failure or a sink
// reporting itself unwritable does not abort the fan-out to the rest and
// does not undo matching, which is already committed by the time events
// are emitted (spec.md §7). Dead sinks are left for the stream handler to
// evict via Remove — the registry itself never removes on write failure.
func (r *SinkRegistry) Emit(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rs := range r.sinks {
		if !rs.sink.Writable() {
			continue
		}
		_, _ = rs.sink.Write(payload)
	}
}

func (r *SinkRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sinks)
}

// --- wire payload shapes, spec.md §6.3 ---

type tradeEvent struct {
	Type          string `json:"type"`
	TradeID       int64  `json:"trade_id"`
	Symbol        string `json:"symbol"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	AggressorSide string `json:"aggressor_side"`
	MakerOrderID  int64  `json:"maker_order_id"`
	TakerOrderID  int64  `json:"taker_order_id"`
}

func encodeTradeEvent(t *Trade) []byte {
	ev := tradeEvent{
		Type:          "trade",
		TradeID:       t.ID,
		Symbol:        t.Symbol,
		Price:         t.Price.StringFixed(6),
		Quantity:      t.Quantity.StringFixed(6),
		AggressorSide: string(t.AggressorSide),
		MakerOrderID:  t.MakerOrderID,
		TakerOrderID:  t.TakerOrderID,
	}
	b, _ := json.Marshal(ev)
	return b
}

type l2UpdateEvent struct {
	Type    string      `json:"type"`
	Symbol  string      `json:"symbol"`
	BestBid *string     `json:"best_bid"`
	BestAsk *string     `json:"best_ask"`
	Bids    [][2]string `json:"bids"`
	Asks    [][2]string `json:"asks"`
}

func encodeL2Update(symbol string, bid, ask *string, bids, asks []DepthLevel) []byte {
	ev := l2UpdateEvent{
		Type:    "l2update",
		Symbol:  symbol,
		BestBid: bid,
		BestAsk: ask,
		Bids:    depthToPairs(bids),
		Asks:    depthToPairs(asks),
	}
	b, _ := json.Marshal(ev)
	return b
}

func depthToPairs(levels []DepthLevel) [][2]string {
	out := make([][2]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, [2]string{l.Price.StringFixed(6), l.Quantity.StringFixed(6)})
	}
	return out
}
