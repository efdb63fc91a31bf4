package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianbank/core/internal/auth"
	"github.com/meridianbank/core/internal/bankerr"
	"github.com/meridianbank/core/internal/interfaces"
	"github.com/meridianbank/core/internal/ledger"
)

const (
	defaultTrailPageSize = 20
	maxTrailPageSize     = 200
)

// Server exposes the ledger core over HTTP. Request shape is validated
// here; business rules are re-validated by the engine.
type Server struct {
	engine *ledger.Engine
	auth   *auth.Service
	trail  interfaces.TrailStore
	log    *zap.Logger
}

func New(engine *ledger.Engine, authService *auth.Service, trail interfaces.TrailStore, log *zap.Logger) *Server {
	return &Server{engine: engine, auth: authService, trail: trail, log: log}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

type transferRequest struct {
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note,omitempty"`
}

type statusRequest struct {
	Active *bool  `json:"active"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid request body", bankerr.ErrInvalidInput))
		return
	}
	token, err := s.auth.Register(r.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid request body", bankerr.ErrInvalidInput))
		return
	}
	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.engine.CreateAccount(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.engine.ListAccounts(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid request body", bankerr.ErrInvalidInput))
		return
	}
	account, err := s.engine.Deposit(r.Context(), actorFrom(r), chi.URLParam(r, "accountNumber"), req.Amount, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid request body", bankerr.ErrInvalidInput))
		return
	}
	account, err := s.engine.Withdraw(r.Context(), actorFrom(r), chi.URLParam(r, "accountNumber"), req.Amount, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid request body", bankerr.ErrInvalidInput))
		return
	}
	if req.FromAccount == "" || req.ToAccount == "" {
		s.writeError(w, r, fmt.Errorf("%w: from_account and to_account are required", bankerr.ErrInvalidInput))
		return
	}

	reference, err := s.engine.TransferIdempotent(r.Context(), actorFrom(r), r.Header.Get("Idempotency-Key"), ledger.TransferRequest{
		FromAccount: req.FromAccount,
		ToAccount:   req.ToAccount,
		Amount:      req.Amount,
		Note:        req.Note,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"reference": reference})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.ListTransactions(r.Context(), actorFrom(r), chi.URLParam(r, "accountNumber"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleUserTransactions(w http.ResponseWriter, r *http.Request) {
	query, err := parseHistoryQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.engine.ListUserTransactions(r.Context(), actorFrom(r), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleTransactionSummary(w http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	summary, err := s.engine.SummarizeTransactions(r.Context(), actorFrom(r),
		vals.Get("start_date"), vals.Get("end_date"), vals.Get("account_number"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func parseHistoryQuery(r *http.Request) (ledger.HistoryQuery, error) {
	vals := r.URL.Query()
	query := ledger.HistoryQuery{
		StartDate: vals.Get("start_date"),
		EndDate:   vals.Get("end_date"),
		Sort:      vals.Get("sort"),
	}
	var err error
	if query.MinAmount, err = optionalDecimal(vals.Get("min_amount"), "min_amount"); err != nil {
		return ledger.HistoryQuery{}, err
	}
	if query.MaxAmount, err = optionalDecimal(vals.Get("max_amount"), "max_amount"); err != nil {
		return ledger.HistoryQuery{}, err
	}
	if query.Page, err = optionalInt(vals.Get("page"), "page"); err != nil {
		return ledger.HistoryQuery{}, err
	}
	if query.Size, err = optionalInt(vals.Get("size"), "size"); err != nil {
		return ledger.HistoryQuery{}, err
	}
	return query, nil
}

func optionalDecimal(raw, name string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a decimal number", bankerr.ErrInvalidInput, name)
	}
	return &d, nil
}

func optionalInt(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", bankerr.ErrInvalidInput, name)
	}
	return &n, nil
}

func (s *Server) handleAccountStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		s.writeError(w, r, fmt.Errorf("%w: active is required", bankerr.ErrInvalidInput))
		return
	}
	account, err := s.engine.SetAccountStatus(r.Context(), actorFrom(r), chi.URLParam(r, "accountNumber"), *req.Active, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	entries, err := s.trail.ListAuditEntries(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleFraudTrail(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	events, err := s.trail.ListFraudEvents(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// pagination is the single place trail page sizes are defaulted and capped.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("size"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if limit <= 0 {
		limit = defaultTrailPageSize
	}
	if limit > maxTrailPageSize {
		limit = maxTrailPageSize
	}
	if page < 0 {
		page = 0
	}
	return limit, page * limit
}
