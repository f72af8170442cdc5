package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/payrail/payrail/internal/chain"
	"github.com/payrail/payrail/internal/contacts"
	"github.com/payrail/payrail/internal/convert"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/metrics"
	"github.com/payrail/payrail/internal/price"
	"github.com/payrail/payrail/internal/retry"
	"github.com/payrail/payrail/internal/selector"
	"github.com/payrail/payrail/internal/tracing"
)

const (
	// maxRequestIDLen mirrors the ledger's request_id column width.
	maxRequestIDLen = 128

	reasonCancelled = "cancelled by caller"
)

// Pay runs one payment request to a terminal outcome. The request ID makes
// the call idempotent: a completed ID replays its ledger entry, and a
// concurrent resubmission joins the in-flight attempt and receives the
// identical outcome. A non-nil error means the request was rejected before
// anything ran or the terminal record could not be written; lifecycle
// failures come back as Failed outcomes with a nil error.
func (e *Engine) Pay(ctx context.Context, req model.PaymentRequest) (model.PaymentOutcome, error) {
	req, err := e.normalize(req)
	if err != nil {
		return model.PaymentOutcome{}, err
	}

	// Recipient and adapter checks run before the idempotency lookup so a
	// rejected request never consumes its ID.
	if req.Token != "" {
		token, _ := e.registry.Lookup(req.Token)
		ep, ok := e.endpointFor(token.Chain)
		if !ok {
			return model.PaymentOutcome{}, fmt.Errorf("%w: no adapter for %s", ErrNotConfigured, token.Chain)
		}
		if err := ep.adapter.ValidateAddress(req.Recipient); err != nil {
			return model.PaymentOutcome{}, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
		}
	}

	if entry, found, err := e.ledger.Get(ctx, req.RequestID); err != nil {
		return model.PaymentOutcome{}, fmt.Errorf("idempotency check %s: %w", req.RequestID, err)
	} else if found {
		metrics.DuplicateRequestsTotal.Inc()
		e.logger.Info("request replayed from ledger",
			"request_id", req.RequestID,
			"status", entry.Status,
		)
		return entry.Outcome(), nil
	}

	f, joined := e.flights.joinOrStart(req.RequestID)
	if joined {
		metrics.DuplicateRequestsTotal.Inc()
		e.logger.Info("joined in-flight payment", "request_id", req.RequestID)
		return f.wait(ctx)
	}
	defer e.flights.remove(req.RequestID)

	outcome, err := e.run(f, req)
	// The ledger write precedes completion, so once waiters wake (and the
	// flight is dropped) any new submission finds the stored entry.
	f.complete(outcome, err)
	return outcome, err
}

// PayUSD pays a USD-denominated amount, letting the engine pick the funding
// token.
func (e *Engine) PayUSD(ctx context.Context, requestID string, usd decimal.Decimal, recipient, description string) (model.PaymentOutcome, error) {
	return e.Pay(ctx, model.PaymentRequest{
		RequestID:   requestID,
		USDAmount:   usd,
		Recipient:   recipient,
		Description: description,
		Kind:        model.KindPayment,
	})
}

// PayContact resolves a saved contact and pays its address. With no token
// on the request, the contact's default token applies.
func (e *Engine) PayContact(ctx context.Context, alias string, req model.PaymentRequest) (model.PaymentOutcome, error) {
	contact, found, err := e.contacts.Resolve(ctx, alias)
	if err != nil {
		return model.PaymentOutcome{}, err
	}
	if !found {
		return model.PaymentOutcome{}, fmt.Errorf("%w: %s", contacts.ErrUnknownContact, alias)
	}
	req.Recipient = contact.Address
	if req.Token == "" && contact.Token != "" {
		req.Token = contact.Token
	}
	return e.Pay(ctx, req)
}

// TokenQuote is one token's rate and the units needed to cover a USD amount.
type TokenQuote struct {
	Symbol  string          `json:"symbol"`
	USDRate decimal.Decimal `json:"usd_rate"`
	Amount  decimal.Decimal `json:"amount"`
}

// Quote prices a USD amount in every registered token, skipping tokens
// without a resolvable rate. All rates failing is an error.
func (e *Engine) Quote(ctx context.Context, usd decimal.Decimal) ([]TokenQuote, error) {
	if !usd.IsPositive() {
		return nil, fmt.Errorf("%w: usd amount must be positive", ErrInvalidRequest)
	}
	quotes, err := e.oracle.GetPrices(ctx, e.registry.Symbols())
	if err != nil {
		return nil, fmt.Errorf("quote %s USD: %w", usd, err)
	}

	out := make([]TokenQuote, 0, len(quotes))
	for _, token := range e.registry.Tokens() {
		quote, ok := quotes[token.Symbol]
		if !ok {
			continue
		}
		amount, err := convert.UsdToTokenAmount(usd, quote, token.Decimals)
		if err != nil {
			continue
		}
		out = append(out, TokenQuote{
			Symbol:  token.Symbol,
			USDRate: quote.USDRate,
			Amount:  amount,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("quote %s USD: %w", usd, price.ErrPriceUnavailable)
	}
	return out, nil
}

// Cancel stops an in-flight payment if it has not started executing. It
// reports whether this call cancelled the payment; either way it returns
// the terminal outcome, waiting for an in-flight one to finish. A request
// ID that is neither in flight nor in the ledger is unknown.
func (e *Engine) Cancel(ctx context.Context, requestID string) (model.PaymentOutcome, bool, error) {
	if f, ok := e.flights.get(requestID); ok {
		cancelled := f.tryCancel()
		if cancelled {
			metrics.PaymentsCancelledTotal.Inc()
			e.logger.Info("payment cancelled", "request_id", requestID)
		}
		outcome, err := f.wait(ctx)
		return outcome, cancelled, err
	}

	entry, found, err := e.ledger.Get(ctx, requestID)
	if err != nil {
		return model.PaymentOutcome{}, false, fmt.Errorf("lookup payment %s: %w", requestID, err)
	}
	if !found {
		return model.PaymentOutcome{}, false, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	return entry.Outcome(), false, nil
}

// normalize validates caller input and canonicalizes the token symbol.
// Rejections wrap ErrInvalidRequest or model.ErrUnknownToken so transports
// can map them to client errors.
func (e *Engine) normalize(req model.PaymentRequest) (model.PaymentRequest, error) {
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Recipient = strings.TrimSpace(req.Recipient)
	req.Token = strings.TrimSpace(req.Token)

	if req.RequestID == "" {
		return req, fmt.Errorf("%w: request id is empty", ErrInvalidRequest)
	}
	if len(req.RequestID) > maxRequestIDLen {
		return req, fmt.Errorf("%w: request id exceeds %d bytes", ErrInvalidRequest, maxRequestIDLen)
	}
	if req.Recipient == "" {
		return req, fmt.Errorf("%w: recipient is empty", ErrInvalidRequest)
	}
	if req.Amount.IsNegative() || req.USDAmount.IsNegative() {
		return req, fmt.Errorf("%w: negative amount", ErrInvalidRequest)
	}
	hasAmount := req.Amount.IsPositive()
	hasUSD := req.USDAmount.IsPositive()
	if hasAmount == hasUSD {
		return req, fmt.Errorf("%w: exactly one of amount and usd amount must be positive", ErrInvalidRequest)
	}
	if hasAmount && req.Token == "" {
		return req, fmt.Errorf("%w: token required with a token amount", ErrInvalidRequest)
	}
	if req.Token != "" {
		token, ok := e.registry.Lookup(req.Token)
		if !ok {
			return req, fmt.Errorf("%w: %s", model.ErrUnknownToken, req.Token)
		}
		req.Token = token.Symbol
	}
	if req.Kind == "" {
		req.Kind = model.KindPayment
	}
	if !req.Kind.Valid() {
		return req, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	return req, nil
}

// run executes the lifecycle on the owning flight. It always produces a
// terminal outcome; the error return reports rejections discovered inside
// the flight and ledger-write failures, not payment failures.
func (e *Engine) run(f *flight, req model.PaymentRequest) (outcome model.PaymentOutcome, err error) {
	ctx := f.ctx
	start := e.nowFn()

	ctx, span := tracing.StartSpan(ctx, "payment.lifecycle",
		attribute.String("payment.request_id", req.RequestID),
		attribute.String("payment.kind", string(req.Kind)),
	)
	defer func() {
		span.SetAttributes(attribute.String("payment.status", string(outcome.Status)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	// Another process may have finished this ID between the caller's
	// fast-path check and flight ownership.
	if entry, found, err := e.ledger.Get(ctx, req.RequestID); err != nil {
		return model.PaymentOutcome{}, fmt.Errorf("idempotency check %s: %w", req.RequestID, err)
	} else if found {
		metrics.DuplicateRequestsTotal.Inc()
		return entry.Outcome(), nil
	}

	outcome = model.PaymentOutcome{
		RequestID: req.RequestID,
		Token:     req.Token,
		Recipient: req.Recipient,
	}

	var (
		ep     payEndpoint
		token  model.Token
		amount decimal.Decimal
		usd    decimal.Decimal
	)

	f.setStatus(model.StatusPriceResolving)

	if req.Token == "" {
		walkCtx, walkSpan := tracing.StartSpan(ctx, "payment.funding_walk",
			attribute.String("payment.usd_amount", req.USDAmount.String()),
		)
		plan, err := e.selectFundingToken(walkCtx, req)
		walkSpan.End()
		if err != nil {
			if errors.Is(err, ErrInvalidRecipient) || errors.Is(err, ErrNotConfigured) {
				// Rejected before anything ran; the ID stays free.
				return model.PaymentOutcome{}, err
			}
			return e.failRun(f, req, "", start, outcome, err)
		}
		// The walk priced and balance-checked every candidate.
		f.setStatus(model.StatusAmountComputed)
		f.setStatus(model.StatusBalanceChecked)
		if !plan.found {
			outcome.Status = model.StatusInsufficientFunds
			outcome.USDAmount = req.USDAmount
			outcome.FailureReason = fmt.Sprintf("no token covers %s USD", req.USDAmount)
			outcome.Suggestions = toFundingSuggestions(plan.ranked)
			return e.finish(req, "", start, outcome)
		}
		ep, token, amount, usd = plan.ep, plan.token, plan.amount, req.USDAmount
	} else {
		token, _ = e.registry.Lookup(req.Token)
		var ok bool
		ep, ok = e.endpointFor(token.Chain)
		if !ok {
			return model.PaymentOutcome{}, fmt.Errorf("%w: no adapter for %s", ErrNotConfigured, token.Chain)
		}

		priceCtx, priceSpan := tracing.StartSpan(ctx, "payment.price",
			attribute.String("payment.token", token.Symbol),
		)
		quote, err := e.oracle.GetPrice(priceCtx, token.Symbol)
		priceSpan.End()
		if err != nil {
			return e.failRun(f, req, token.Chain, start, outcome, fmt.Errorf("resolve %s price: %w", token.Symbol, err))
		}

		f.setStatus(model.StatusAmountComputed)
		if req.UsdDenominated() {
			usd = req.USDAmount
			amount, err = convert.UsdToTokenAmount(usd, quote, token.Decimals)
		} else {
			amount = req.Amount
			usd, err = convert.TokenAmountToUsd(amount, quote)
		}
		if err != nil {
			return e.failRun(f, req, token.Chain, start, outcome, fmt.Errorf("compute amount: %w", err))
		}
		if !amount.IsPositive() {
			return e.failRun(f, req, token.Chain, start, outcome,
				fmt.Errorf("%s USD rounds to zero %s at the current rate", usd, token.Symbol))
		}

		f.setStatus(model.StatusBalanceChecked)
		balCtx, balSpan := tracing.StartSpan(ctx, "payment.balance")
		balances, failures, err := e.aggregator.GetAllBalances(balCtx)
		balSpan.End()
		if err != nil {
			return e.failRun(f, req, token.Chain, start, outcome, fmt.Errorf("check balances: %w", err))
		}
		for _, failure := range failures {
			if failure.Chain == token.Chain {
				return e.failRun(f, req, token.Chain, start, outcome,
					fmt.Errorf("balance check failed for %s: %v", failure.Chain, failure.Err))
			}
		}

		decision, err := e.selector.Evaluate(ctx, token.Symbol, amount, balances)
		if err != nil {
			return e.failRun(f, req, token.Chain, start, outcome, fmt.Errorf("evaluate funding: %w", err))
		}
		if !decision.Feasible {
			outcome.Status = model.StatusInsufficientFunds
			outcome.Amount = amount
			outcome.USDAmount = usd
			outcome.FailureReason = fmt.Sprintf("insufficient %s: need %s, have %s",
				token.Symbol, decision.Required, decision.Available)
			outcome.Suggestions = toFundingSuggestions(decision.Suggestions)
			return e.finish(req, token.Chain, start, outcome)
		}
	}

	outcome.Token = token.Symbol
	outcome.Amount = amount
	outcome.USDAmount = usd

	if !f.beginExecuting() {
		outcome.Status = model.StatusFailed
		outcome.FailureReason = reasonCancelled
		return e.finish(req, token.Chain, start, outcome)
	}

	executor := retry.NewExecutor(e.policy, e.logger, retry.WithOnAttempt(func(a retry.Attempt) {
		e.auditAttempt(req.RequestID, token.Chain, a)
	}))
	execCtx, execSpan := tracing.StartSpan(ctx, "payment.transfer",
		attribute.String("payment.chain", token.Chain.String()),
		attribute.String("payment.token", token.Symbol),
	)
	receipt, err := retry.DoValue(execCtx, executor, stageTransferSubmit, func(ctx context.Context) (chain.TransferReceipt, error) {
		return ep.adapter.Transfer(ctx, chain.TransferRequest{
			RequestID: req.RequestID,
			Token:     token,
			From:      ep.wallet,
			To:        req.Recipient,
			Amount:    amount,
			Memo:      req.Description,
		})
	})
	execSpan.End()
	if err != nil {
		return e.failRun(f, req, token.Chain, start, outcome, fmt.Errorf("transfer: %w", err))
	}

	outcome.Status = model.StatusSucceeded
	outcome.TxHash = receipt.TxHash
	return e.finish(req, token.Chain, start, outcome)
}

// fundingPlan is the walk result for USD requests without an explicit
// token. When no token is affordable, found is false and ranked carries the
// near-miss suggestions.
type fundingPlan struct {
	found  bool
	ep     payEndpoint
	token  model.Token
	amount decimal.Decimal
	ranked []selector.Suggestion
}

// selectFundingToken walks the registry in declaration order and picks the
// first token that can reach the recipient and covers the USD amount.
// Tokens are skipped when their chain has no adapter, the chain rejects the
// recipient address, the token has no contract on the network, the balance
// query failed, or no rate is available.
func (e *Engine) selectFundingToken(ctx context.Context, req model.PaymentRequest) (fundingPlan, error) {
	balances, failures, err := e.aggregator.GetAllBalances(ctx)
	if err != nil {
		return fundingPlan{}, fmt.Errorf("check balances: %w", err)
	}
	failedChains := make(map[model.Chain]error, len(failures))
	for _, failure := range failures {
		failedChains[failure.Chain] = failure.Err
	}

	var (
		candidates     []selector.Suggestion
		sawAdapter     bool
		addrAccepted   bool
		balanceBlocked int
		priceable      int
		priced         int
	)
	for _, token := range e.registry.Tokens() {
		ep, ok := e.endpointFor(token.Chain)
		if !ok {
			continue
		}
		sawAdapter = true
		if err := ep.adapter.ValidateAddress(req.Recipient); err != nil {
			continue
		}
		addrAccepted = true
		if !token.Native() {
			if _, ok := token.Contract(ep.adapter.Network()); !ok {
				continue
			}
		}
		if chainErr, failed := failedChains[token.Chain]; failed {
			balanceBlocked++
			e.logger.Debug("funding walk skipping token on failed chain",
				"symbol", token.Symbol,
				"chain", token.Chain,
				"error", chainErr,
			)
			continue
		}
		priceable++
		required, err := e.converter.UsdToToken(ctx, req.USDAmount, token.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return fundingPlan{}, ctx.Err()
			}
			e.logger.Debug("funding walk skipping unpriced token",
				"symbol", token.Symbol,
				"error", err,
			)
			continue
		}
		priced++
		if !required.IsPositive() {
			// Rounds to zero units; not payable in this token.
			continue
		}
		available := balances[token.Symbol].Amount
		if available.GreaterThanOrEqual(required) {
			e.logger.Info("funding token selected",
				"request_id", req.RequestID,
				"token", token.Symbol,
				"required", required,
				"available", available,
			)
			return fundingPlan{found: true, ep: ep, token: token, amount: required}, nil
		}
		candidates = append(candidates, selector.Suggestion{
			Symbol:    token.Symbol,
			Required:  required,
			Available: available,
		})
	}

	if !sawAdapter {
		return fundingPlan{}, fmt.Errorf("%w: no chain adapters registered", ErrNotConfigured)
	}
	if !addrAccepted {
		return fundingPlan{}, fmt.Errorf("%w: %s is not valid on any configured chain", ErrInvalidRecipient, req.Recipient)
	}
	if priceable == 0 && balanceBlocked > 0 {
		return fundingPlan{}, fmt.Errorf("balance check failed on every funding chain")
	}
	if priceable > 0 && priced == 0 {
		return fundingPlan{}, fmt.Errorf("funding walk: %w", price.ErrPriceUnavailable)
	}
	return fundingPlan{ranked: e.selector.Rank(candidates)}, nil
}

// failRun converts a stage error into a recorded Failed outcome. A
// cancellation observed mid-stage reports as cancelled rather than as the
// context error it surfaced through.
func (e *Engine) failRun(f *flight, req model.PaymentRequest, payChain model.Chain, start time.Time, outcome model.PaymentOutcome, cause error) (model.PaymentOutcome, error) {
	reason := cause.Error()
	if f.wasCancelled() {
		reason = reasonCancelled
	}
	outcome.Status = model.StatusFailed
	outcome.FailureReason = reason
	return e.finish(req, payChain, start, outcome)
}

// finish stamps, records, publishes, and counts a terminal outcome.
// InsufficientFunds skips the ledger so the ID can be resubmitted once the
// wallet is funded; every other terminal status consumes the request ID,
// including cancellations.
func (e *Engine) finish(req model.PaymentRequest, payChain model.Chain, start time.Time, outcome model.PaymentOutcome) (model.PaymentOutcome, error) {
	outcome.CompletedAt = e.nowFn().UTC()

	var recordErr error
	if outcome.Status != model.StatusInsufficientFunds {
		outcome, recordErr = e.recordOutcome(req, outcome)
	}

	e.publishEvent(req.Kind, outcome)

	label := outcome.Token
	if label == "" {
		label = "unresolved"
	}
	metrics.PaymentsTotal.WithLabelValues(label, statusLabel(outcome.Status)).Inc()
	metrics.PaymentDuration.WithLabelValues(label).Observe(e.nowFn().Sub(start).Seconds())

	if outcome.Status == model.StatusFailed {
		alertCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		e.alertFailure(alertCtx, payChain, outcome)
		cancel()
	}

	e.logger.Info("payment finished",
		"request_id", outcome.RequestID,
		"status", outcome.Status,
		"token", outcome.Token,
		"amount", outcome.Amount,
		"usd", outcome.USDAmount,
		"tx_hash", outcome.TxHash,
		"reason", outcome.FailureReason,
		"duration", e.nowFn().Sub(start),
	)
	return outcome, recordErr
}

func toFundingSuggestions(in []selector.Suggestion) []model.FundingSuggestion {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.FundingSuggestion, len(in))
	for i, s := range in {
		out[i] = model.FundingSuggestion{
			Symbol:     s.Symbol,
			Required:   s.Required,
			Available:  s.Available,
			Sufficient: s.Sufficient,
		}
	}
	return out
}
