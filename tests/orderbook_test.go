package tests

import (
	"testing"

	"github.com/shopspring/decimal"

	"matchcore/src/engine"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestOrderBookRestsAndFindsOrder(t *testing.T) {
	book := engine.NewOrderBook("AAPL")
	order := engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.50"), dec("100"))
	book.Process(order)

	retrieved, exists := book.GetOrder(order.ID)
	if !exists {
		t.Fatal("order should exist in book")
	}
	if retrieved.ID != order.ID {
		t.Errorf("expected order id %d, got %d", order.ID, retrieved.ID)
	}
}

func TestOrderBookBBO(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	book.Process(engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.50"), dec("100")))
	book.Process(engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.60"), dec("200")))
	book.Process(engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.40"), dec("300")))

	book.Process(engine.NewOrder("AAPL", engine.SideSell, engine.TypeLimit, dec("150.70"), dec("100")))
	book.Process(engine.NewOrder("AAPL", engine.SideSell, engine.TypeLimit, dec("150.65"), dec("300")))

	bid, ask, ok := book.BBO()
	if !ok {
		t.Fatal("expected a BBO with both sides populated")
	}
	if !bid.Equal(dec("150.60")) {
		t.Errorf("expected best bid 150.60, got %s", bid)
	}
	if !ask.Equal(dec("150.65")) {
		t.Errorf("expected best ask 150.65, got %s", ask)
	}
}

func TestOrderBookDepthOrdering(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	bidPrices := []string{"150.50", "150.40", "150.60", "150.45", "150.55"}
	for _, p := range bidPrices {
		book.Process(engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec(p), dec("100")))
	}
	askPrices := []string{"150.70", "150.80", "150.65", "150.75", "150.85"}
	for _, p := range askPrices {
		book.Process(engine.NewOrder("AAPL", engine.SideSell, engine.TypeLimit, dec(p), dec("100")))
	}

	bids := book.Depth(10, engine.SideBuy)
	if len(bids) != 5 {
		t.Fatalf("expected 5 bid levels, got %d", len(bids))
	}
	if !bids[0].Price.Equal(dec("150.60")) {
		t.Errorf("expected best bid first, got %s", bids[0].Price)
	}
	for i := 0; i < len(bids)-1; i++ {
		if bids[i].Price.LessThan(bids[i+1].Price) {
			t.Errorf("bids should be sorted descending: %s before %s", bids[i].Price, bids[i+1].Price)
		}
	}

	asks := book.Depth(10, engine.SideSell)
	if !asks[0].Price.Equal(dec("150.65")) {
		t.Errorf("expected lowest ask first, got %s", asks[0].Price)
	}
	for i := 0; i < len(asks)-1; i++ {
		if asks[i].Price.GreaterThan(asks[i+1].Price) {
			t.Errorf("asks should be sorted ascending: %s before %s", asks[i].Price, asks[i+1].Price)
		}
	}
}

func TestOrderBookPriceLevelAggregation(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	book.Process(engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.50"), dec("100")))
	book.Process(engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.50"), dec("200")))
	book.Process(engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.50"), dec("300")))

	bids := book.Depth(10, engine.SideBuy)
	if len(bids) != 1 {
		t.Fatalf("expected orders at same price to aggregate into 1 level, got %d", len(bids))
	}
	if !bids[0].Quantity.Equal(dec("600")) {
		t.Errorf("expected aggregated quantity 600, got %s", bids[0].Quantity)
	}
}

func TestOrderBookDepthLimit(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	for i := 0; i < 15; i++ {
		p := decimal.NewFromInt(150).Add(decimal.New(int64(i), -1))
		book.Process(engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, p, dec("100")))
	}

	bids := book.Depth(5, engine.SideBuy)
	if len(bids) > 5 {
		t.Errorf("expected at most 5 levels, got %d", len(bids))
	}
}

func TestOrderBookEmptyBBO(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	_, _, ok := book.BBO()
	if ok {
		t.Error("expected no BBO on empty book")
	}
}

func TestOrderBookFIFOWithinPriceLevel(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	sell1 := engine.NewOrder("AAPL", engine.SideSell, engine.TypeLimit, dec("150.50"), dec("200"))
	sell2 := engine.NewOrder("AAPL", engine.SideSell, engine.TypeLimit, dec("150.50"), dec("300"))
	sell3 := engine.NewOrder("AAPL", engine.SideSell, engine.TypeLimit, dec("150.50"), dec("400"))
	book.Process(sell1)
	book.Process(sell2)
	book.Process(sell3)

	buy := engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.50"), dec("500"))
	trades := book.Process(buy)

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].MakerOrderID != sell1.ID || !trades[0].Quantity.Equal(dec("200")) {
		t.Errorf("expected first trade to fully consume the earliest resting order")
	}
	if trades[1].MakerOrderID != sell2.ID || !trades[1].Quantity.Equal(dec("300")) {
		t.Errorf("expected second trade to consume the next order in FIFO order")
	}

	_, exists := book.GetOrder(sell3.ID)
	if !exists {
		t.Fatal("third sell order should still be resting, untouched")
	}
}

func TestOrderBookRestingCount(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	book.Process(engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.50"), dec("100")))
	book.Process(engine.NewOrder("AAPL", engine.SideSell, engine.TypeLimit, dec("150.60"), dec("100")))

	if book.RestingCount() != 2 {
		t.Errorf("expected 2 resting orders, got %d", book.RestingCount())
	}

	book.Process(engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.60"), dec("100")))
	if book.RestingCount() != 1 {
		t.Errorf("expected the matched order pair to leave 1 resting order, got %d", book.RestingCount())
	}
}

func TestOrderBookZeroRemainingIsNoOp(t *testing.T) {
	book := engine.NewOrderBook("AAPL")

	order := engine.NewOrder("AAPL", engine.SideBuy, engine.TypeLimit, dec("150.50"), dec("100"))
	order.Reduce(dec("100"))

	trades := book.Process(order)
	if trades != nil {
		t.Error("expected no trades from an already-exhausted order")
	}
	if book.RestingCount() != 0 {
		t.Error("an exhausted order should never rest")
	}
}
