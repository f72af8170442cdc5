// Package main implements a load test harness for the payraild HTTP API.
// It submits payments at a configurable rate and concurrency, replays a
// fraction of request IDs to exercise the idempotency path, and reports
// throughput, latency percentiles, and the outcome distribution.
//
// Usage:
//
//	go run ./test/loadtest \
//	  -url "http://localhost:8080" \
//	  -concurrency 4 \
//	  -rate 20 \
//	  -duration 30s \
//	  -token SOL \
//	  -amount 0.0001 \
//	  -recipient 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin \
//	  -duplicate-pct 10
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type payRequest struct {
	RequestID string `json:"request_id"`
	Token     string `json:"token,omitempty"`
	Amount    string `json:"amount,omitempty"`
	USD       string `json:"usd,omitempty"`
	Recipient string `json:"recipient"`
}

type counters struct {
	sent          atomic.Int64
	created       atomic.Int64
	duplicates    atomic.Int64
	insufficient  atomic.Int64
	throttled     atomic.Int64
	clientErrors  atomic.Int64
	serverErrors  atomic.Int64
	networkErrors atomic.Int64
}

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:8080", "payraild base URL")
		concurrency  = flag.Int("concurrency", 4, "Number of parallel submitters")
		rps          = flag.Float64("rate", 20, "Target requests per second across all workers")
		duration     = flag.Duration("duration", 30*time.Second, "Test duration")
		token        = flag.String("token", "SOL", "Token symbol to pay in (empty for USD-denominated)")
		amount       = flag.String("amount", "0.0001", "Token amount per payment")
		usd          = flag.String("usd", "", "USD amount per payment (used when -token is empty)")
		recipient    = flag.String("recipient", "", "Recipient address (required)")
		duplicatePct = flag.Int("duplicate-pct", 10, "Percentage of requests that reuse a prior request ID")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *recipient == "" {
		logger.Error("missing required flag -recipient")
		os.Exit(1)
	}
	if *duplicatePct < 0 || *duplicatePct > 100 {
		logger.Error("-duplicate-pct must be in [0,100]")
		os.Exit(1)
	}

	logger.Info("load test configuration",
		"url", *baseURL,
		"concurrency", *concurrency,
		"rate", *rps,
		"duration", *duration,
		"token", *token,
		"duplicate_pct", *duplicatePct,
	)

	ctx, cancel := context.WithTimeout(context.Background(), *duration+10*time.Second)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	client := &http.Client{Timeout: 30 * time.Second}
	limiter := rate.NewLimiter(rate.Limit(*rps), *concurrency)

	var (
		stats       counters
		latenciesMu sync.Mutex
		latenciesNs []int64
	)
	recordLatency := func(d time.Duration) {
		latenciesMu.Lock()
		latenciesNs = append(latenciesNs, d.Nanoseconds())
		latenciesMu.Unlock()
	}

	// Recently used request IDs, shared across workers, for duplicate replay.
	var (
		seenMu  sync.Mutex
		seenIDs []string
	)
	rememberID := func(id string) {
		seenMu.Lock()
		if len(seenIDs) < 10_000 {
			seenIDs = append(seenIDs, id)
		}
		seenMu.Unlock()
	}
	randomSeenID := func(rng *rand.Rand) (string, bool) {
		seenMu.Lock()
		defer seenMu.Unlock()
		if len(seenIDs) == 0 {
			return "", false
		}
		return seenIDs[rng.Intn(len(seenIDs))], true
	}

	worker := func(workerID int) {
		rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
		deadline := time.Now().Add(*duration)

		for time.Now().Before(deadline) {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			requestID := uuid.NewString()
			if rng.Intn(100) < *duplicatePct {
				if id, ok := randomSeenID(rng); ok {
					requestID = id
				}
			}

			body := payRequest{
				RequestID: requestID,
				Recipient: *recipient,
			}
			if *token != "" {
				body.Token = *token
				body.Amount = *amount
			} else {
				body.USD = *usd
			}

			start := time.Now()
			status, err := submitPayment(ctx, client, *baseURL, body)
			recordLatency(time.Since(start))
			stats.sent.Add(1)

			switch {
			case err != nil:
				stats.networkErrors.Add(1)
				if ctx.Err() != nil {
					return
				}
			case status == http.StatusCreated:
				stats.created.Add(1)
				rememberID(requestID)
			case status == http.StatusOK:
				stats.duplicates.Add(1)
			case status == http.StatusPaymentRequired:
				stats.insufficient.Add(1)
			case status == http.StatusTooManyRequests:
				stats.throttled.Add(1)
			case status >= 400 && status < 500:
				stats.clientErrors.Add(1)
			default:
				stats.serverErrors.Add(1)
			}
		}
	}

	logger.Info("starting load test", "workers", *concurrency, "duration", *duration)
	testStart := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(id)
		}(i)
	}
	wg.Wait()

	testDuration := time.Since(testStart)

	latenciesMu.Lock()
	allLatencies := make([]int64, len(latenciesNs))
	copy(allLatencies, latenciesNs)
	latenciesMu.Unlock()
	sort.Slice(allLatencies, func(i, j int) bool { return allLatencies[i] < allLatencies[j] })

	sent := stats.sent.Load()
	requestsPerSec := float64(sent) / testDuration.Seconds()
	failures := stats.serverErrors.Load() + stats.networkErrors.Load()

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("       LOAD TEST RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Duration:       %s\n", testDuration.Round(time.Millisecond))
	fmt.Printf("Workers:        %d\n", *concurrency)
	fmt.Printf("Target rate:    %.1f req/s\n", *rps)
	fmt.Println("----------------------------------------")
	fmt.Println("Throughput:")
	fmt.Printf("  Requests:     %d\n", sent)
	fmt.Printf("  Requests/sec: %.2f\n", requestsPerSec)
	fmt.Println("----------------------------------------")
	fmt.Println("Outcomes:")
	fmt.Printf("  Created:      %d\n", stats.created.Load())
	fmt.Printf("  Duplicates:   %d\n", stats.duplicates.Load())
	fmt.Printf("  Insufficient: %d\n", stats.insufficient.Load())
	fmt.Printf("  Throttled:    %d\n", stats.throttled.Load())
	fmt.Printf("  Client errs:  %d\n", stats.clientErrors.Load())
	fmt.Printf("  Server errs:  %d\n", stats.serverErrors.Load())
	fmt.Printf("  Network errs: %d\n", stats.networkErrors.Load())
	fmt.Println("----------------------------------------")
	fmt.Println("Latency (per request):")
	fmt.Printf("  p50:          %s\n", formatNanos(percentile(allLatencies, 50)))
	fmt.Printf("  p95:          %s\n", formatNanos(percentile(allLatencies, 95)))
	fmt.Printf("  p99:          %s\n", formatNanos(percentile(allLatencies, 99)))
	fmt.Println("========================================")

	if failures > 0 {
		os.Exit(1)
	}
}

func submitPayment(ctx context.Context, client *http.Client, baseURL string, body payRequest) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/payments", bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("submit payment: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// percentile returns the value at the given percentile from a sorted slice.
func percentile(sorted []int64, pct float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// formatNanos formats nanoseconds as a human-readable duration string.
func formatNanos(ns int64) string {
	d := time.Duration(ns)
	if d < time.Millisecond {
		return fmt.Sprintf("%.1fus", float64(d.Microseconds()))
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
