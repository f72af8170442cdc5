package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/metrics"
)

const streamSource = "stream"

// Stream maintains a websocket subscription to a ticker feed and pushes live
// quotes into the oracle cache. It reconnects with capped exponential backoff
// and runs until the context is done.
type Stream struct {
	url     string
	symbols []string
	oracle  *Oracle
	logger  *slog.Logger

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	pingInterval      time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
}

func NewStream(url string, symbols []string, oracle *Oracle, logger *slog.Logger) *Stream {
	return &Stream{
		url:               url,
		symbols:           symbols,
		oracle:            oracle,
		logger:            logger.With("component", "price_stream"),
		reconnectDelay:    1 * time.Second,
		maxReconnectDelay: 30 * time.Second,
		pingInterval:      30 * time.Second,
		readTimeout:       60 * time.Second,
		writeTimeout:      10 * time.Second,
	}
}

type streamSubscribe struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

type streamTick struct {
	Symbol string      `json:"symbol"`
	USD    json.Number `json:"usd"`
	TS     int64       `json:"ts,omitempty"` // unix milliseconds, optional
}

// Run connects, subscribes, and consumes ticks until ctx is done. Each
// disconnect doubles the reconnect delay up to the cap; a session that
// delivered at least one tick resets it.
func (s *Stream) Run(ctx context.Context) error {
	delay := s.reconnectDelay
	for {
		ticks, err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.PriceFeedErrors.WithLabelValues(streamSource).Inc()
		s.logger.Warn("price stream disconnected; reconnecting",
			"ticks", ticks,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if ticks > 0 {
			delay = s.reconnectDelay
		} else {
			delay *= 2
			if delay > s.maxReconnectDelay {
				delay = s.maxReconnectDelay
			}
		}
	}
}

// consume runs a single websocket session and returns how many ticks it
// delivered before failing.
func (s *Stream) consume(ctx context.Context) (int, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := conn.WriteJSON(streamSubscribe{Op: "subscribe", Symbols: s.symbols}); err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	})

	// Unblock ReadMessage on shutdown and keep the connection alive on
	// quiet markets.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	ticks := 0
	for {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return ticks, fmt.Errorf("read: %w", err)
		}

		var tick streamTick
		if err := json.Unmarshal(message, &tick); err != nil || tick.Symbol == "" {
			continue
		}
		rate, err := decimal.NewFromString(tick.USD.String())
		if err != nil || !rate.IsPositive() {
			s.logger.Debug("discarding malformed tick", "symbol", tick.Symbol, "usd", tick.USD)
			continue
		}

		quote := model.PriceQuote{
			Symbol:    strings.ToUpper(tick.Symbol),
			USDRate:   rate,
			FetchedAt: time.Now(),
			Source:    streamSource,
		}
		if tick.TS > 0 {
			quote.FetchedAt = time.UnixMilli(tick.TS)
		}
		s.oracle.Put(quote)
		ticks++
	}
}
