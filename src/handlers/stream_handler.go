package handlers

import (
	"bufio"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"matchcore/src/engine"
)

// StreamHandler exposes the core's trade and market-data event streams over
// SSE and, for market data, WebSocket. It owns no matching state — it only
// registers EventSink implementations with the MatchingEngine and frames
// whatever bytes the core hands it.
type StreamHandler struct {
	matcher    *engine.MatchingEngine
	bufferSize int
}

func NewStreamHandler(matcher *engine.MatchingEngine, bufferSize int) *StreamHandler {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &StreamHandler{matcher: matcher, bufferSize: bufferSize}
}

// sseSink buffers outbound frames in a bounded channel and drops the oldest
// frame on overflow rather than blocking the matcher's Submit call — the
// backpressure policy spec.md §9 leaves open, resolved here in favor of
// drop-oldest so a slow client can never stall matching.
type sseSink struct {
	ch     chan []byte
	closed atomic.Bool
}

func newSSESink(bufSize int) *sseSink {
	return &sseSink{ch: make(chan []byte, bufSize)}
}

func (s *sseSink) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case s.ch <- buf:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- buf:
		default:
		}
	}
	return len(p), nil
}

func (s *sseSink) Writable() bool {
	return !s.closed.Load()
}

func (s *sseSink) close() {
	s.closed.Store(true)
}

func (h *StreamHandler) serveSSE(c *fiber.Ctx, subscribe func(engine.EventSink) engine.SinkID, unsubscribe func(engine.SinkID)) error {
	sink := newSSESink(h.bufferSize)
	id := subscribe(sink)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			sink.close()
			unsubscribe(id)
		}()

		heartbeat := time.NewTicker(15 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case payload, ok := <-sink.ch:
				if !ok {
					return
				}
				if _, err := w.WriteString("data: "); err != nil {
					return
				}
				if _, err := w.Write(payload); err != nil {
					return
				}
				if _, err := w.WriteString("\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

// TradeFeed streams every trade event over SSE.
func (h *StreamHandler) TradeFeed(c *fiber.Ctx) error {
	return h.serveSSE(c, h.matcher.SubscribeTradeSink, h.matcher.UnsubscribeTradeSink)
}

// MarketDataFeed streams every l2update event over SSE.
func (h *StreamHandler) MarketDataFeed(c *fiber.Ctx) error {
	return h.serveSSE(c, h.matcher.SubscribeMarketDataSink, h.matcher.UnsubscribeMarketDataSink)
}

// wsSink adapts a gorilla websocket connection to engine.EventSink.
type wsSink struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func (s *wsSink) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		s.closed.Store(true)
		return 0, err
	}
	return len(p), nil
}

func (s *wsSink) Writable() bool {
	return !s.closed.Load()
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MarketDataWS streams l2update events over a WebSocket connection instead
// of SSE — a second concrete EventSink for the same market-data stream,
// grounded on the gorilla/websocket usage in the retrieved sibling repos.
func (h *StreamHandler) MarketDataWS(c *fiber.Ctx) error {
	upgradeHandler := func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		sink := &wsSink{conn: conn}
		id := h.matcher.SubscribeMarketDataSink(sink)

		defer func() {
			h.matcher.UnsubscribeMarketDataSink(id)
			_ = conn.Close()
		}()

		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}

	fasthttpadaptor.NewFastHTTPHandler(http.HandlerFunc(upgradeHandler))(c.Context())
	return nil
}
