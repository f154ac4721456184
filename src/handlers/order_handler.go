package handlers

import (
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"matchcore/src/engine"
	"matchcore/src/models"
)

type OrderHandler struct {
	Matcher        *engine.MatchingEngine
	StartTime      time.Time
	OrdersReceived int64
	OrdersMatched  int64
	TradesExecuted int64

	latencies    []time.Duration
	latenciesMu  sync.RWMutex
	maxLatencies int
}

func NewOrderHandler(matcher *engine.MatchingEngine) *OrderHandler {
	maxLatencies := 10000
	if envMax := os.Getenv("METRICS_MAX_LATENCIES"); envMax != "" {
		if parsed, err := strconv.Atoi(envMax); err == nil && parsed > 0 {
			maxLatencies = parsed
		}
	}

	return &OrderHandler{
		Matcher:      matcher,
		StartTime:    time.Now(),
		latencies:    make([]time.Duration, 0, maxLatencies),
		maxLatencies: maxLatencies,
	}
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	side, orderType, price, quantity, err := parseSubmitOrderRequest(&req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("symbol", req.Symbol).
			Str("side", req.Side).
			Str("type", req.Type).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: err.Error(),
		})
	}

	order := engine.NewOrder(req.Symbol, side, orderType, price, quantity)

	startTime := time.Now()

	log.Info().
		Int64("order_id", order.ID).
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Str("type", req.Type).
		Str("price", price.StringFixed(6)).
		Str("quantity", quantity.StringFixed(6)).
		Str("ip", c.IP()).
		Msg("Order submitted")

	atomic.AddInt64(&h.OrdersReceived, 1)

	trades := h.Matcher.Submit(order)

	latency := time.Since(startTime)
	h.recordLatency(latency)

	tradeInfos := make([]models.TradeInfo, 0, len(trades))
	for _, trade := range trades {
		tradeInfos = append(tradeInfos, models.TradeInfo{
			TradeID:   trade.ID,
			Price:     trade.Price.StringFixed(6),
			Quantity:  trade.Quantity.StringFixed(6),
			Timestamp: trade.Timestamp,
		})
	}

	remaining := order.RemainingQty()
	status := order.GetStatus()
	if len(trades) == 0 && orderType != engine.TypeLimit {
		status = engine.StatusRejected
	}

	response := models.SubmitOrderResponse{
		OrderID:           order.ID,
		Status:            string(status),
		FilledQuantity:    quantity.Sub(remaining).StringFixed(6),
		RemainingQuantity: remaining.StringFixed(6),
		Trades:            tradeInfos,
	}

	if len(trades) > 0 {
		atomic.AddInt64(&h.OrdersMatched, 1)
	}
	atomic.AddInt64(&h.TradesExecuted, int64(len(trades)))

	log.Info().
		Int64("order_id", order.ID).
		Str("status", string(status)).
		Str("remaining_quantity", remaining.StringFixed(6)).
		Int("trades_count", len(trades)).
		Msg("Order processed")

	switch status {
	case engine.StatusAccepted:
		response.Message = "Order added to book"
		return c.Status(fiber.StatusCreated).JSON(response)
	case engine.StatusPartialFill:
		return c.Status(fiber.StatusAccepted).JSON(response)
	default:
		return c.Status(fiber.StatusOK).JSON(response)
	}
}

func (h *OrderHandler) GetOrderBook(c *fiber.Ctx) error {
	symbol := c.Params("symbol")

	defaultDepth := 10
	if envDepth := os.Getenv("ORDERBOOK_DEFAULT_DEPTH"); envDepth != "" {
		if parsed, err := strconv.Atoi(envDepth); err == nil && parsed > 0 {
			defaultDepth = parsed
		}
	}

	maxDepth := 1000
	if envMaxDepth := os.Getenv("ORDERBOOK_MAX_DEPTH"); envMaxDepth != "" {
		if parsed, err := strconv.Atoi(envMaxDepth); err == nil && parsed > 0 {
			maxDepth = parsed
		}
	}

	depthStr := c.Query("depth", strconv.Itoa(defaultDepth))
	depth, err := strconv.Atoi(depthStr)
	if err != nil || depth <= 0 {
		depth = defaultDepth
	}
	if depth > maxDepth {
		depth = maxDepth
	}

	orderBook := h.Matcher.GetOrCreateOrderBook(symbol)

	bidLevels := orderBook.Depth(depth, engine.SideBuy)
	askLevels := orderBook.Depth(depth, engine.SideSell)

	bids := make([]models.PriceLevelInfo, 0, len(bidLevels))
	for _, level := range bidLevels {
		bids = append(bids, models.PriceLevelInfo{
			Price:    level.Price.StringFixed(6),
			Quantity: level.Quantity.StringFixed(6),
		})
	}

	asks := make([]models.PriceLevelInfo, 0, len(askLevels))
	for _, level := range askLevels {
		asks = append(asks, models.PriceLevelInfo{
			Price:    level.Price.StringFixed(6),
			Quantity: level.Quantity.StringFixed(6),
		})
	}

	var bestBid, bestAsk *string
	if len(bids) > 0 {
		bestBid = &bids[0].Price
	}
	if len(asks) > 0 {
		bestAsk = &asks[0].Price
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderBookResponse{
		Symbol:    symbol,
		Timestamp: time.Now().UnixMilli(),
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		Bids:      bids,
		Asks:      asks,
	})
}

func (h *OrderHandler) GetOrderStatus(c *fiber.Ctx) error {
	idStr := c.Params("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid order id",
		})
	}

	var foundOrder *engine.Order
	for _, orderBook := range h.Matcher.BooksSnapshot() {
		if order, exists := orderBook.GetOrder(id); exists {
			foundOrder = order
			break
		}
	}

	if foundOrder == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderStatusResponse{
		OrderID:           foundOrder.ID,
		Symbol:            foundOrder.Symbol,
		Side:              string(foundOrder.Side),
		Type:              string(foundOrder.Type),
		Price:             foundOrder.Price.StringFixed(6),
		Quantity:          foundOrder.Quantity.StringFixed(6),
		RemainingQuantity: foundOrder.RemainingQty().StringFixed(6),
		Status:            string(foundOrder.GetStatus()),
		Timestamp:         foundOrder.Timestamp,
	})
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	uptime := time.Since(h.StartTime).Seconds()

	var ordersProcessed int64
	for _, orderBook := range h.Matcher.BooksSnapshot() {
		ordersProcessed += int64(orderBook.RestingCount())
	}

	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:          "healthy",
		UptimeSeconds:   int64(uptime),
		OrdersProcessed: ordersProcessed,
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	var ordersInBook int64
	for _, orderBook := range h.Matcher.BooksSnapshot() {
		ordersInBook += int64(orderBook.RestingCount())
	}

	p50, p99, p999 := h.calculateLatencyPercentiles()
	throughput := h.calculateThroughput()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersReceived:         atomic.LoadInt64(&h.OrdersReceived),
		OrdersMatched:          atomic.LoadInt64(&h.OrdersMatched),
		TradesExecuted:         atomic.LoadInt64(&h.TradesExecuted),
		OrdersInBook:           ordersInBook,
		TradeSubscribers:       h.Matcher.TradeSinkCount(),
		MarketDataSubscribers:  h.Matcher.MarketDataSinkCount(),
		LatencyP50Ms:           p50,
		LatencyP99Ms:           p99,
		LatencyP999Ms:          p999,
		ThroughputOrdersPerSec: throughput,
	})
}

func (h *OrderHandler) recordLatency(latency time.Duration) {
	h.latenciesMu.Lock()
	defer h.latenciesMu.Unlock()

	h.latencies = append(h.latencies, latency)

	if len(h.latencies) > h.maxLatencies {
		removeCount := len(h.latencies) - h.maxLatencies
		h.latencies = h.latencies[removeCount:]
	}
}

func (h *OrderHandler) calculateLatencyPercentiles() (p50, p99, p999 float64) {
	h.latenciesMu.RLock()
	defer h.latenciesMu.RUnlock()

	if len(h.latencies) == 0 {
		return 0, 0, 0
	}

	latenciesCopy := make([]time.Duration, len(h.latencies))
	copy(latenciesCopy, h.latencies)

	sort.Slice(latenciesCopy, func(i, j int) bool {
		return latenciesCopy[i] < latenciesCopy[j]
	})

	p50Index := int(float64(len(latenciesCopy)) * 0.50)
	p99Index := int(float64(len(latenciesCopy)) * 0.99)
	p999Index := int(float64(len(latenciesCopy)) * 0.999)

	if p50Index >= len(latenciesCopy) {
		p50Index = len(latenciesCopy) - 1
	}
	if p99Index >= len(latenciesCopy) {
		p99Index = len(latenciesCopy) - 1
	}
	if p999Index >= len(latenciesCopy) {
		p999Index = len(latenciesCopy) - 1
	}

	p50 = float64(latenciesCopy[p50Index].Nanoseconds()) / 1e6
	p99 = float64(latenciesCopy[p99Index].Nanoseconds()) / 1e6
	p999 = float64(latenciesCopy[p999Index].Nanoseconds()) / 1e6

	return p50, p99, p999
}

func (h *OrderHandler) calculateThroughput() float64 {
	uptime := time.Since(h.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}

	ordersReceived := atomic.LoadInt64(&h.OrdersReceived)
	return float64(ordersReceived) / uptime
}

func parseSubmitOrderRequest(req *models.SubmitOrderRequest) (engine.OrderSide, engine.OrderType, decimal.Decimal, decimal.Decimal, error) {
	if req.Symbol == "" {
		return "", "", decimal.Zero, decimal.Zero, &ValidationError{Message: "Invalid order: symbol is required"}
	}

	var side engine.OrderSide
	switch req.Side {
	case "buy":
		side = engine.SideBuy
	case "sell":
		side = engine.SideSell
	default:
		return "", "", decimal.Zero, decimal.Zero, &ValidationError{Message: "Invalid order: side must be buy or sell"}
	}

	var orderType engine.OrderType
	switch req.Type {
	case "market":
		orderType = engine.TypeMarket
	case "limit":
		orderType = engine.TypeLimit
	case "ioc":
		orderType = engine.TypeIOC
	case "fok":
		orderType = engine.TypeFOK
	default:
		return "", "", decimal.Zero, decimal.Zero, &ValidationError{Message: "Invalid order: type must be market, limit, ioc, or fok"}
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil || quantity.LessThanOrEqual(decimal.Zero) {
		return "", "", decimal.Zero, decimal.Zero, &ValidationError{Message: "Invalid order: quantity must be positive"}
	}

	var price decimal.Decimal
	if orderType != engine.TypeMarket {
		price, err = decimal.NewFromString(req.Price)
		if err != nil || price.LessThanOrEqual(decimal.Zero) {
			return "", "", decimal.Zero, decimal.Zero, &ValidationError{Message: "Invalid order: price must be positive for limit, ioc, and fok orders"}
		}
	}

	return side, orderType, price, quantity, nil
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
