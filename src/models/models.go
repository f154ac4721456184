package models

// SubmitOrderRequest is the JSON body accepted by POST /api/v1/orders.
// Price and quantity travel as decimal strings so a client can send exact
// values without floating-point round-trip loss.
type SubmitOrderRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`  // "buy" | "sell"
	Type     string `json:"type"`  // "market" | "limit" | "ioc" | "fok"
	Price    string `json:"price"` // required for limit/ioc/fok, ignored for market
	Quantity string `json:"quantity"`
}

type SubmitOrderResponse struct {
	OrderID           int64       `json:"order_id"`
	Status            string      `json:"status"`
	Message           string      `json:"message,omitempty"`
	FilledQuantity    string      `json:"filled_quantity"`
	RemainingQuantity string      `json:"remaining_quantity"`
	Trades            []TradeInfo `json:"trades,omitempty"`
}

type TradeInfo struct {
	TradeID   int64  `json:"trade_id"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderBookResponse struct {
	Symbol    string           `json:"symbol"`
	Timestamp int64            `json:"timestamp"`
	BestBid   *string          `json:"best_bid"`
	BestAsk   *string          `json:"best_ask"`
	Bids      []PriceLevelInfo `json:"bids"` // descending
	Asks      []PriceLevelInfo `json:"asks"` // ascending
}

type PriceLevelInfo struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type OrderStatusResponse struct {
	OrderID           int64  `json:"order_id"`
	Symbol            string `json:"symbol"`
	Side              string `json:"side"`
	Type              string `json:"type"`
	Price             string `json:"price"`
	Quantity          string `json:"quantity"`
	RemainingQuantity string `json:"remaining_quantity"`
	Status            string `json:"status"`
	Timestamp         int64  `json:"timestamp"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	OrdersProcessed int64  `json:"orders_processed"`
}

type MetricsResponse struct {
	OrdersReceived         int64   `json:"orders_received"`
	OrdersMatched          int64   `json:"orders_matched"`
	TradesExecuted         int64   `json:"trades_executed"`
	OrdersInBook           int64   `json:"orders_in_book"`
	TradeSubscribers       int     `json:"trade_subscribers"`
	MarketDataSubscribers  int     `json:"market_data_subscribers"`
	LatencyP50Ms           float64 `json:"latency_p50_ms"`
	LatencyP99Ms           float64 `json:"latency_p99_ms"`
	LatencyP999Ms          float64 `json:"latency_p999_ms"`
	ThroughputOrdersPerSec float64 `json:"throughput_orders_per_sec"`
}
