// Package api exposes the payment engine over HTTP. All responses are JSON;
// monetary amounts are serialized as decimal strings.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/payrail/payrail/internal/balance"
	"github.com/payrail/payrail/internal/contacts"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/engine"
	"github.com/payrail/payrail/internal/ledger"
	"github.com/payrail/payrail/internal/metrics"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// Server routes HTTP requests to the payment engine.
type Server struct {
	engine   *engine.Engine
	contacts *contacts.Service
	logger   *slog.Logger
	limiter  *RateLimitMiddleware
}

// NewServer creates the API server. Without WithRateLimiter the server runs
// unthrottled, which is what tests want.
func NewServer(eng *engine.Engine, contactSvc *contacts.Service, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		engine:   eng,
		contacts: contactSvc,
		logger:   logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOption configures optional behavior on the API server.
type ServerOption func(*Server)

// WithRateLimiter applies per-IP rate limiting to every route.
func WithRateLimiter(rl *RateLimitMiddleware) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

// Handler returns the routed HTTP handler with instrumentation and, when
// configured, rate limiting applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/quote", s.handleQuote)
	mux.HandleFunc("POST /v1/payments", s.handlePay)
	mux.HandleFunc("GET /v1/payments/{id}", s.handleGetPayment)
	mux.HandleFunc("POST /v1/payments/{id}/cancel", s.handleCancelPayment)
	mux.HandleFunc("GET /v1/payments/{id}/attempts", s.handleGetAttempts)
	mux.HandleFunc("GET /v1/balances", s.handleBalances)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("POST /v1/contacts", s.handleAddContact)
	mux.HandleFunc("GET /v1/contacts", s.handleListContacts)
	mux.HandleFunc("GET /v1/contacts/{alias}", s.handleGetContact)
	mux.HandleFunc("DELETE /v1/contacts/{alias}", s.handleDeleteContact)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	h = s.instrument(h)
	if s.limiter != nil {
		h = s.limiter.Wrap(h)
	}
	return h
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs each request and feeds the HTTP metric vectors. The route
// label is the matched pattern, not the raw path, to keep cardinality flat.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"code", rec.code,
			"duration", elapsed,
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSONBody reads and decodes a JSON request body into v. Unknown
// fields are rejected so typos surface as 400s instead of silent defaults.
// Returns false (and writes an error response) if decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("usd")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "usd query param required")
		return
	}
	usd, err := decimal.NewFromString(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "usd must be a decimal amount")
		return
	}

	quotes, err := s.engine.Quote(r.Context(), usd)
	if err != nil {
		s.writePaymentError(w, err)
		return
	}

	amounts := make(map[string]decimal.Decimal, len(quotes))
	rates := make(map[string]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		amounts[q.Symbol] = q.Amount
		rates[q.Symbol] = q.USDRate
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"usd":     usd,
		"amounts": amounts,
		"rates":   rates,
	})
}

type balanceResponse struct {
	Token    string           `json:"token"`
	Chain    string           `json:"chain"`
	Network  string           `json:"network"`
	Amount   decimal.Decimal  `json:"amount"`
	USDRate  *decimal.Decimal `json:"usd_rate,omitempty"`
	USDValue *decimal.Decimal `json:"usd_value,omitempty"`
	AsOf     time.Time        `json:"as_of"`
}

type chainFailureResponse struct {
	Chain   string `json:"chain"`
	Network string `json:"network"`
	Error   string `json:"error"`
}

func chainFailures(failures []balance.ChainFailure) []chainFailureResponse {
	out := make([]chainFailureResponse, len(failures))
	for i, f := range failures {
		out[i] = chainFailureResponse{
			Chain:   f.Chain.String(),
			Network: f.Network.String(),
			Error:   f.Err.Error(),
		}
	}
	return out
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	withUSD, _ := strconv.ParseBool(r.URL.Query().Get("usd"))

	if withUSD {
		portfolio, err := s.engine.BalancesUSD(r.Context())
		if err != nil {
			s.logger.Error("balance valuation failed", "error", err)
			writeError(w, http.StatusBadGateway, "balance valuation failed")
			return
		}
		balances := make([]balanceResponse, len(portfolio.Balances))
		for i, vb := range portfolio.Balances {
			balances[i] = balanceResponse{
				Token:    vb.Token,
				Chain:    vb.Chain.String(),
				Network:  vb.Network.String(),
				Amount:   vb.Amount,
				USDRate:  vb.USDRate,
				USDValue: vb.USDValue,
				AsOf:     vb.AsOf,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"balances":      balances,
			"total_usd":     portfolio.TotalUSD,
			"failed_chains": chainFailures(portfolio.Failures),
		})
		return
	}

	all, failures, err := s.engine.Balances(r.Context())
	if err != nil {
		s.logger.Error("balance query failed", "error", err)
		writeError(w, http.StatusBadGateway, "balance query failed")
		return
	}
	balances := make(map[string]balanceResponse, len(all))
	for sym, b := range all {
		balances[sym] = balanceResponse{
			Token:   b.Token,
			Chain:   b.Chain.String(),
			Network: b.Network.String(),
			Amount:  b.Amount,
			AsOf:    b.AsOf,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balances":      balances,
		"failed_chains": chainFailures(failures),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := ledger.HistoryQuery{
		Kind: model.PaymentKind(r.URL.Query().Get("kind")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		q.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		q.Offset = n
	}
	q, err := q.Normalize()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.engine.History(r.Context(), q)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	out := make([]ledgerEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = toLedgerEntryResponse(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"limit":   q.Limit,
		"offset":  q.Offset,
	})
}

type contactRequest struct {
	Alias   string `json:"alias"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Token   string `json:"token"`
}

type contactResponse struct {
	Alias   string    `json:"alias"`
	Name    string    `json:"name,omitempty"`
	Address string    `json:"address"`
	Token   string    `json:"token"`
	AddedAt time.Time `json:"added_at"`
}

func toContactResponse(c model.Contact) contactResponse {
	return contactResponse{
		Alias:   c.Alias,
		Name:    c.Name,
		Address: c.Address,
		Token:   c.Token,
		AddedAt: c.AddedAt,
	}
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Alias == "" || req.Address == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "alias, address, and token are required")
		return
	}

	err := s.contacts.Add(r.Context(), model.Contact{
		Alias:   req.Alias,
		Name:    req.Name,
		Address: req.Address,
		Token:   req.Token,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"alias": model.NormalizeAlias(req.Alias)})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	list, err := s.contacts.List(r.Context())
	if err != nil {
		s.logger.Error("list contacts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list contacts failed")
		return
	}
	out := make([]contactResponse, len(list))
	for i, c := range list {
		out[i] = toContactResponse(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	alias := r.PathValue("alias")
	c, found, err := s.contacts.Resolve(r.Context(), alias)
	if err != nil {
		s.logger.Error("resolve contact failed", "alias", alias, "error", err)
		writeError(w, http.StatusInternalServerError, "resolve contact failed")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown contact")
		return
	}
	writeJSON(w, http.StatusOK, toContactResponse(c))
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	alias := r.PathValue("alias")
	removed, err := s.contacts.Remove(r.Context(), alias)
	if err != nil {
		s.logger.Error("remove contact failed", "alias", alias, "error", err)
		writeError(w, http.StatusInternalServerError, "remove contact failed")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "unknown contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status(r.Context()))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		s.logger.Warn("failed to write health response", "error", err)
	}
}
