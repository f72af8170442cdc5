// Package engine runs the payment lifecycle: validate, resolve price,
// compute amounts, check balances, execute the transfer, and record the
// terminal outcome in the ledger. The request ID is the idempotency key
// throughout; a completed ID replays its stored outcome and an in-flight
// ID joins the running attempt.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/payrail/payrail/internal/alert"
	"github.com/payrail/payrail/internal/balance"
	"github.com/payrail/payrail/internal/chain"
	"github.com/payrail/payrail/internal/contacts"
	"github.com/payrail/payrail/internal/convert"
	"github.com/payrail/payrail/internal/domain/event"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/ledger"
	"github.com/payrail/payrail/internal/metrics"
	"github.com/payrail/payrail/internal/price"
	"github.com/payrail/payrail/internal/retry"
	"github.com/payrail/payrail/internal/selector"
	"github.com/payrail/payrail/internal/store"
	redisstream "github.com/payrail/payrail/internal/store/redis"
)

const (
	stageTransferSubmit = "transfer.submit"

	// recordTimeout bounds the terminal ledger write and event publish.
	// These run on a fresh context so a dead caller cannot lose the record.
	recordTimeout = 10 * time.Second

	// healthProbeTimeout bounds one adapter health probe in Status.
	healthProbeTimeout = 3 * time.Second
)

var (
	// ErrInvalidRequest marks requests rejected before the lifecycle starts.
	ErrInvalidRequest = errors.New("invalid payment request")

	// ErrInvalidRecipient marks recipient addresses that fail the target
	// chain's encoding rules. The request ID is not consumed.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrNotConfigured marks tokens whose chain has no registered adapter.
	ErrNotConfigured = errors.New("chain not configured")

	// ErrUnknownRequest marks status lookups for request IDs the engine has
	// never seen.
	ErrUnknownRequest = errors.New("unknown request")
)

// payEndpoint pairs a chain adapter with the wallet it spends from.
type payEndpoint struct {
	adapter chain.Adapter
	wallet  string
}

// Config carries the engine's collaborators. Registry, Oracle, Converter,
// Aggregator, Selector, Ledger, and Contacts are required; Attempts,
// Transport, and Alerter degrade to no-ops when nil.
type Config struct {
	Registry   *model.Registry
	Oracle     *price.Oracle
	Converter  *convert.Converter
	Aggregator *balance.Aggregator
	Selector   *selector.Selector
	Ledger     ledger.Ledger
	Contacts   *contacts.Service
	Attempts   store.AttemptRepository
	Transport  redisstream.MessageTransport
	Alerter    alert.Alerter
	Policy     retry.Policy
	Logger     *slog.Logger
}

// Engine orchestrates payments across the registered chain adapters.
type Engine struct {
	registry   *model.Registry
	oracle     *price.Oracle
	converter  *convert.Converter
	aggregator *balance.Aggregator
	selector   *selector.Selector
	ledger     ledger.Ledger
	contacts   *contacts.Service
	attempts   store.AttemptRepository
	transport  redisstream.MessageTransport
	alerter    alert.Alerter
	policy     retry.Policy
	logger     *slog.Logger

	mu        sync.RWMutex
	endpoints map[model.Chain]payEndpoint

	flights *flightRegistry
	started time.Time
	nowFn   func() time.Time
}

func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("engine: nil registry")
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("engine: nil oracle")
	}
	if cfg.Converter == nil {
		return nil, fmt.Errorf("engine: nil converter")
	}
	if cfg.Aggregator == nil {
		return nil, fmt.Errorf("engine: nil balance aggregator")
	}
	if cfg.Selector == nil {
		return nil, fmt.Errorf("engine: nil selector")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("engine: nil ledger")
	}
	if cfg.Contacts == nil {
		return nil, fmt.Errorf("engine: nil contacts service")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("engine: nil logger")
	}
	alerter := cfg.Alerter
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	policy := cfg.Policy
	if policy.MaxRetries == 0 && policy.BaseDelay == 0 {
		policy = retry.DefaultPolicy()
	}
	return &Engine{
		registry:   cfg.Registry,
		oracle:     cfg.Oracle,
		converter:  cfg.Converter,
		aggregator: cfg.Aggregator,
		selector:   cfg.Selector,
		ledger:     cfg.Ledger,
		contacts:   cfg.Contacts,
		attempts:   cfg.Attempts,
		transport:  cfg.Transport,
		alerter:    alerter,
		policy:     policy,
		logger:     cfg.Logger.With("component", "payment_engine"),
		endpoints:  make(map[model.Chain]payEndpoint),
		flights:    newFlightRegistry(),
		started:    time.Now(),
		nowFn:      time.Now,
	}, nil
}

// RegisterAdapter wires a chain adapter and its spending wallet into the
// engine, the balance aggregator, and contact address validation. One
// adapter per chain; registering the same chain again replaces it.
func (e *Engine) RegisterAdapter(adapter chain.Adapter, wallet string) {
	e.mu.Lock()
	e.endpoints[adapter.Chain()] = payEndpoint{adapter: adapter, wallet: wallet}
	e.mu.Unlock()

	e.aggregator.RegisterAdapter(adapter, wallet)
	e.contacts.RegisterAdapter(adapter)

	e.logger.Info("chain adapter registered",
		"chain", adapter.Chain(),
		"network", adapter.Network(),
	)
}

// endpointFor returns the pay endpoint serving the given chain.
func (e *Engine) endpointFor(c model.Chain) (payEndpoint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ep, ok := e.endpoints[c]
	return ep, ok
}

// Balances reads current holdings across every registered chain.
func (e *Engine) Balances(ctx context.Context) (map[string]model.Balance, []balance.ChainFailure, error) {
	return e.aggregator.GetAllBalances(ctx)
}

// BalancesUSD reads holdings valued at current prices.
func (e *Engine) BalancesUSD(ctx context.Context) (balance.Portfolio, error) {
	return e.aggregator.GetAllBalancesUSD(ctx)
}

// History pages through completed payments, newest first.
func (e *Engine) History(ctx context.Context, q ledger.HistoryQuery) ([]model.LedgerEntry, error) {
	return e.ledger.History(ctx, q)
}

// Attempts returns the transfer audit trail for a request ID, oldest first.
// Without an attempt repository the trail is always empty.
func (e *Engine) Attempts(ctx context.Context, requestID string) ([]model.PaymentAttempt, error) {
	if e.attempts == nil {
		return nil, nil
	}
	return e.attempts.ListByRequest(ctx, requestID)
}

// PaymentState reports where a request ID currently stands. For in-flight
// payments Outcome is nil; for completed ones it carries the stored result.
type PaymentState struct {
	RequestID string                `json:"request_id"`
	Status    model.PaymentStatus   `json:"status"`
	InFlight  bool                  `json:"in_flight"`
	Outcome   *model.PaymentOutcome `json:"outcome,omitempty"`
}

// GetPayment looks a request ID up among in-flight payments first, then in
// the ledger.
func (e *Engine) GetPayment(ctx context.Context, requestID string) (PaymentState, error) {
	if f, ok := e.flights.get(requestID); ok {
		return PaymentState{
			RequestID: requestID,
			Status:    f.currentStatus(),
			InFlight:  true,
		}, nil
	}
	entry, found, err := e.ledger.Get(ctx, requestID)
	if err != nil {
		return PaymentState{}, fmt.Errorf("lookup payment %s: %w", requestID, err)
	}
	if !found {
		return PaymentState{}, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	outcome := entry.Outcome()
	return PaymentState{
		RequestID: requestID,
		Status:    entry.Status,
		Outcome:   &outcome,
	}, nil
}

// ChainStatus is one chain's health as seen from the engine.
type ChainStatus struct {
	Chain   model.Chain   `json:"chain"`
	Network model.Network `json:"network"`
	Wallet  string        `json:"wallet"`
	Healthy bool          `json:"healthy"`
	Error   string        `json:"error,omitempty"`
}

// EngineStatus is the operational snapshot served by the status endpoint.
type EngineStatus struct {
	Uptime       string        `json:"uptime"`
	Chains       []ChainStatus `json:"chains"`
	Tokens       []string      `json:"tokens"`
	CachedQuotes []string      `json:"cached_quotes"`
	PriceBreaker string        `json:"price_breaker"`
	InFlight     int           `json:"in_flight"`
}

// Status probes every registered adapter and snapshots the oracle state.
// Adapters without a health probe count as healthy when registered.
func (e *Engine) Status(ctx context.Context) EngineStatus {
	e.mu.RLock()
	endpoints := make([]payEndpoint, 0, len(e.endpoints))
	for _, ep := range e.endpoints {
		endpoints = append(endpoints, ep)
	}
	e.mu.RUnlock()
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].adapter.Chain() < endpoints[j].adapter.Chain()
	})

	chains := make([]ChainStatus, 0, len(endpoints))
	for _, ep := range endpoints {
		cs := ChainStatus{
			Chain:   ep.adapter.Chain(),
			Network: ep.adapter.Network(),
			Wallet:  ep.wallet,
			Healthy: true,
		}
		if hc, ok := ep.adapter.(chain.HealthChecker); ok {
			probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
			if err := hc.Health(probeCtx); err != nil {
				cs.Healthy = false
				cs.Error = err.Error()
			}
			cancel()
		}
		chains = append(chains, cs)
	}

	return EngineStatus{
		Uptime:       time.Since(e.started).Round(time.Second).String(),
		Chains:       chains,
		Tokens:       e.registry.Symbols(),
		CachedQuotes: e.oracle.CachedSymbols(),
		PriceBreaker: e.oracle.BreakerState().String(),
		InFlight:     e.flights.size(),
	}
}

// recordOutcome writes the terminal ledger entry. It runs on a fresh
// context so caller cancellation cannot drop the record, and adopts the
// stored entry when another process won the insert race.
func (e *Engine) recordOutcome(req model.PaymentRequest, outcome model.PaymentOutcome) (model.PaymentOutcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	entry := model.LedgerEntry{
		RequestID:     outcome.RequestID,
		Kind:          req.Kind,
		Token:         outcome.Token,
		Amount:        outcome.Amount,
		USDAmount:     outcome.USDAmount,
		Recipient:     outcome.Recipient,
		Description:   req.Description,
		Status:        outcome.Status,
		TxHash:        outcome.TxHash,
		FailureReason: outcome.FailureReason,
		CompletedAt:   outcome.CompletedAt,
	}
	stored, inserted, err := e.ledger.RecordIfAbsent(ctx, entry)
	if err != nil {
		metrics.LedgerInsertsTotal.WithLabelValues("error").Inc()
		// The transfer may have gone out. Surface the outcome alongside the
		// record failure so the operator can reconcile by request ID.
		e.logger.Error("ledger record failed after terminal outcome",
			"request_id", outcome.RequestID,
			"status", outcome.Status,
			"tx_hash", outcome.TxHash,
			"error", err,
		)
		return outcome, fmt.Errorf("record payment %s: %w", outcome.RequestID, err)
	}
	if !inserted {
		metrics.LedgerConflictsTotal.Inc()
		return stored.Outcome(), nil
	}
	metrics.LedgerInsertsTotal.WithLabelValues(statusLabel(outcome.Status)).Inc()
	return outcome, nil
}

// publishEvent pushes a terminal outcome onto the payment stream. Publishing
// is best-effort; a failure is logged and never fails the payment.
func (e *Engine) publishEvent(kind model.PaymentKind, outcome model.PaymentOutcome) {
	if e.transport == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	ev := event.NewPaymentEvent(kind, outcome)
	if _, err := e.transport.PublishJSON(ctx, event.PaymentStream, ev); err != nil {
		e.logger.Warn("payment event publish failed",
			"request_id", outcome.RequestID,
			"status", outcome.Status,
			"error", err,
		)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(statusLabel(outcome.Status)).Inc()
}

// auditAttempt records one transfer attempt in the audit trail and the
// attempt metrics. The retry executor calls it between attempts, so it runs
// synchronously on the lifecycle goroutine.
func (e *Engine) auditAttempt(requestID string, chainName model.Chain, a retry.Attempt) {
	outcome := model.AttemptOK
	errMsg := ""
	if a.Err != nil {
		errMsg = a.Err.Error()
		if a.Decision.IsTransient() {
			outcome = model.AttemptTransient
		} else {
			outcome = model.AttemptTerminal
		}
	}
	metrics.TransferAttemptsTotal.WithLabelValues(chainName.String(), string(outcome)).Inc()

	if e.attempts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.attempts.Append(ctx, model.PaymentAttempt{
		RequestID: requestID,
		Attempt:   a.Number,
		Stage:     a.Stage,
		Outcome:   outcome,
		Error:     errMsg,
	})
	if err != nil {
		e.logger.Warn("attempt audit write failed",
			"request_id", requestID,
			"attempt", a.Number,
			"error", err,
		)
	}
}

// alertFailure notifies the alert channels about a failed payment.
func (e *Engine) alertFailure(ctx context.Context, chainName model.Chain, outcome model.PaymentOutcome) {
	err := e.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypePaymentFailed,
		Scope:   chainName.String(),
		Title:   "Payment failed",
		Message: outcome.FailureReason,
		Fields: map[string]string{
			"request_id": outcome.RequestID,
			"token":      outcome.Token,
			"amount":     outcome.Amount.String(),
			"recipient":  outcome.Recipient,
		},
	})
	if err != nil {
		e.logger.Warn("payment failure alert failed", "request_id", outcome.RequestID, "error", err)
	}
}

func statusLabel(s model.PaymentStatus) string {
	return strings.ToLower(string(s))
}
