package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payrail/payrail/internal/chain"
	"github.com/payrail/payrail/internal/contacts"
	"github.com/payrail/payrail/internal/convert"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/engine"
	"github.com/payrail/payrail/internal/price"
)

// payRequest is the POST /v1/payments body. Amount and USD are decimal
// strings; exactly one must be set. Recipient and Contact are mutually
// exclusive.
type payRequest struct {
	RequestID   string `json:"request_id"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	USD         string `json:"usd"`
	Recipient   string `json:"recipient"`
	Contact     string `json:"contact"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

type suggestionResponse struct {
	Symbol     string          `json:"symbol"`
	Required   decimal.Decimal `json:"required"`
	Available  decimal.Decimal `json:"available"`
	Sufficient bool            `json:"sufficient"`
}

type outcomeResponse struct {
	RequestID   string               `json:"request_id"`
	Status      model.PaymentStatus  `json:"status"`
	Token       string               `json:"token,omitempty"`
	Amount      decimal.Decimal      `json:"amount"`
	USDAmount   decimal.Decimal      `json:"usd_amount"`
	Recipient   string               `json:"recipient,omitempty"`
	TxHash      string               `json:"tx_hash,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Suggestions []suggestionResponse `json:"suggestions,omitempty"`
	Duplicate   bool                 `json:"duplicate,omitempty"`
	CompletedAt time.Time            `json:"completed_at"`
}

func toOutcomeResponse(o model.PaymentOutcome) outcomeResponse {
	resp := outcomeResponse{
		RequestID:   o.RequestID,
		Status:      o.Status,
		Token:       o.Token,
		Amount:      o.Amount,
		USDAmount:   o.USDAmount,
		Recipient:   o.Recipient,
		TxHash:      o.TxHash,
		Reason:      o.FailureReason,
		Duplicate:   o.Duplicate,
		CompletedAt: o.CompletedAt,
	}
	for _, sg := range o.Suggestions {
		resp.Suggestions = append(resp.Suggestions, suggestionResponse{
			Symbol:     sg.Symbol,
			Required:   sg.Required,
			Available:  sg.Available,
			Sufficient: sg.Sufficient,
		})
	}
	return resp
}

type ledgerEntryResponse struct {
	RequestID   string              `json:"request_id"`
	Kind        model.PaymentKind   `json:"kind"`
	Token       string              `json:"token"`
	Amount      decimal.Decimal     `json:"amount"`
	USDAmount   decimal.Decimal     `json:"usd_amount"`
	Recipient   string              `json:"recipient"`
	Description string              `json:"description,omitempty"`
	Status      model.PaymentStatus `json:"status"`
	TxHash      string              `json:"tx_hash,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	CompletedAt time.Time           `json:"completed_at"`
}

func toLedgerEntryResponse(e model.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		RequestID:   e.RequestID,
		Kind:        e.Kind,
		Token:       e.Token,
		Amount:      e.Amount,
		USDAmount:   e.USDAmount,
		Recipient:   e.Recipient,
		Description: e.Description,
		Status:      e.Status,
		TxHash:      e.TxHash,
		Reason:      e.FailureReason,
		CompletedAt: e.CompletedAt,
	}
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var body payRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}
	if body.Recipient == "" && body.Contact == "" {
		writeError(w, http.StatusBadRequest, "recipient or contact is required")
		return
	}
	if body.Recipient != "" && body.Contact != "" {
		writeError(w, http.StatusBadRequest, "recipient and contact are mutually exclusive")
		return
	}

	req := model.PaymentRequest{
		RequestID:   body.RequestID,
		Token:       body.Token,
		Recipient:   body.Recipient,
		Description: body.Description,
		Kind:        model.PaymentKind(body.Kind),
	}
	// A missing request ID gets a generated one. That covers only retries
	// inside this daemon; callers wanting cross-submission idempotency must
	// supply their own.
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if body.Amount != "" {
		amount, err := decimal.NewFromString(body.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "amount must be a decimal string")
			return
		}
		req.Amount = amount
	}
	if body.USD != "" {
		usd, err := decimal.NewFromString(body.USD)
		if err != nil {
			writeError(w, http.StatusBadRequest, "usd must be a decimal string")
			return
		}
		req.USDAmount = usd
	}

	var (
		outcome model.PaymentOutcome
		err     error
	)
	if body.Contact != "" {
		outcome, err = s.engine.PayContact(r.Context(), body.Contact, req)
	} else {
		outcome, err = s.engine.Pay(r.Context(), req)
	}
	if err != nil {
		s.writePaymentError(w, err)
		return
	}

	writeJSON(w, payStatusCode(outcome), toOutcomeResponse(outcome))
}

// payStatusCode maps a terminal outcome to its HTTP status. Replayed
// outcomes are 200 regardless of their stored status; the request succeeded
// as a no-op.
func payStatusCode(o model.PaymentOutcome) int {
	if o.Duplicate {
		return http.StatusOK
	}
	switch o.Status {
	case model.StatusSucceeded:
		return http.StatusCreated
	case model.StatusInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusBadGateway
	}
}

// writePaymentError maps engine rejections to client-facing status codes.
func (s *Server) writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest),
		errors.Is(err, engine.ErrInvalidRecipient),
		errors.Is(err, chain.ErrInvalidAddress),
		errors.Is(err, convert.ErrInvalidAmount),
		errors.Is(err, model.ErrUnknownToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, contacts.ErrUnknownContact),
		errors.Is(err, engine.ErrUnknownRequest):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, price.ErrPriceUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("payment request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := s.engine.GetPayment(r.Context(), id)
	if err != nil {
		s.writePaymentError(w, err)
		return
	}
	resp := map[string]any{
		"request_id": state.RequestID,
		"status":     state.Status,
		"in_flight":  state.InFlight,
	}
	if state.Outcome != nil {
		resp["outcome"] = toOutcomeResponse(*state.Outcome)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	outcome, cancelled, err := s.engine.Cancel(r.Context(), id)
	if err != nil {
		s.writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cancelled": cancelled,
		"outcome":   toOutcomeResponse(outcome),
	})
}

type attemptResponse struct {
	Attempt int                  `json:"attempt"`
	Stage   string               `json:"stage"`
	Outcome model.AttemptOutcome `json:"outcome"`
	Error   string               `json:"error,omitempty"`
	At      time.Time            `json:"at"`
}

func (s *Server) handleGetAttempts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	attempts, err := s.engine.Attempts(r.Context(), id)
	if err != nil {
		s.logger.Error("attempt lookup failed", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "attempt lookup failed")
		return
	}
	out := make([]attemptResponse, len(attempts))
	for i, a := range attempts {
		out[i] = attemptResponse{
			Attempt: a.Attempt,
			Stage:   a.Stage,
			Outcome: a.Outcome,
			Error:   a.Error,
			At:      a.At,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": id,
		"attempts":   out,
	})
}
