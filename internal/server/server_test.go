package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianbank/core/internal/audit"
	"github.com/meridianbank/core/internal/auth"
	"github.com/meridianbank/core/internal/fraud"
	"github.com/meridianbank/core/internal/ledger"
	"github.com/meridianbank/core/internal/models"
	"github.com/meridianbank/core/internal/server"
	"github.com/meridianbank/core/internal/storage/memory"
)

type testAPI struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	log := zap.NewNop()
	auditor := audit.NewRecorder(store, log)
	sentinel := fraud.NewSentinel(store, log)
	engine := ledger.NewEngine(store, auditor, sentinel, nil, nil, log)
	authService := auth.NewService(store, auditor, sentinel, "test-secret", time.Hour)

	srv := httptest.NewServer(server.New(engine, authService, store, log).Router())
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv}
}

func (a *testAPI) do(method, path, token string, body any, headers map[string]string) (*http.Response, map[string]any) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (a *testAPI) register(username, role string) string {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "hunter22",
		"role":     role,
	}, nil)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(a.t, token)
	return token
}

func (a *testAPI) openAccount(token string) string {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/api/accounts", token, nil, nil)
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	number, _ := body["account_number"].(string)
	require.NotEmpty(a.t, number)
	return number
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	resp, body := api.do(http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(http.MethodPost, "/api/accounts", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "BAD_CREDENTIALS", body["code"])

	resp, _ = api.do(http.MethodPost, "/api/accounts", "bogus-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDepositAndWithdrawFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("alice", "")
	account := api.openAccount(token)

	resp, body := api.do(http.MethodPost, "/api/accounts/"+account+"/deposit", token,
		map[string]any{"amount": "250.00"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "250", fmt.Sprint(body["balance"]))

	resp, body = api.do(http.MethodPost, "/api/accounts/"+account+"/withdraw", token,
		map[string]any{"amount": "300.00"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_FUNDS", body["code"])

	resp, _ = api.do(http.MethodPost, "/api/accounts/"+account+"/withdraw", token,
		map[string]any{"amount": "50.00"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDepositValidationStatus(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("alice", "")
	account := api.openAccount(token)

	resp, body := api.do(http.MethodPost, "/api/accounts/"+account+"/deposit", token,
		map[string]any{"amount": "-5.00"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

func TestTransferWithIdempotencyKey(t *testing.T) {
	api := newTestAPI(t)
	aliceToken := api.register("alice", "")
	bobToken := api.register("bob", "")
	from := api.openAccount(aliceToken)
	to := api.openAccount(bobToken)

	_, _ = api.do(http.MethodPost, "/api/accounts/"+from+"/deposit", aliceToken,
		map[string]any{"amount": "500.00"}, nil)

	transfer := map[string]any{"from_account": from, "to_account": to, "amount": "100.00"}
	headers := map[string]string{"Idempotency-Key": "order-77"}

	resp, body := api.do(http.MethodPost, "/api/transactions/transfer", aliceToken, transfer, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first, _ := body["reference"].(string)
	require.NotEmpty(t, first)

	resp, body = api.do(http.MethodPost, "/api/transactions/transfer", aliceToken, transfer, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first, body["reference"], "retried request must replay the original reference")

	// The retry moved no money.
	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/api/accounts", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	raw, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	var accounts []models.Account
	require.NoError(t, json.NewDecoder(raw.Body).Decode(&accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, "400", accounts[0].Balance.String())

	// Same key, different payload.
	transfer["amount"] = "200.00"
	resp, body = api.do(http.MethodPost, "/api/transactions/transfer", aliceToken, transfer, headers)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", body["code"])
}

func TestTransferValidationStatuses(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("alice", "")
	account := api.openAccount(token)

	resp, body := api.do(http.MethodPost, "/api/transactions/transfer", token,
		map[string]any{"from_account": account, "to_account": account, "amount": "10.00"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", body["code"])

	resp, body = api.do(http.MethodPost, "/api/transactions/transfer", token,
		map[string]any{"from_account": account, "to_account": "0000-0000-0000", "amount": "10.00"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestAdminRoutesGatedByRole(t *testing.T) {
	api := newTestAPI(t)
	userToken := api.register("alice", "")
	adminToken := api.register("root", models.RoleAdmin)
	auditorToken := api.register("watch", models.RoleAuditor)
	account := api.openAccount(userToken)

	resp, _ := api.do(http.MethodGet, "/api/admin/audit", userToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = api.do(http.MethodGet, "/api/admin/audit", auditorToken, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	active := false
	resp, _ = api.do(http.MethodPatch, "/api/admin/accounts/"+account+"/status", auditorToken,
		map[string]any{"active": &active, "reason": "review"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "auditors read trails but cannot freeze")

	resp, _ = api.do(http.MethodPatch, "/api/admin/accounts/"+account+"/status", adminToken,
		map[string]any{"active": &active, "reason": "review"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Frozen account rejects movement with INVALID_STATE.
	resp, body := api.do(http.MethodPost, "/api/accounts/"+account+"/deposit", userToken,
		map[string]any{"amount": "10.00"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", body["code"])
}

func (a *testAPI) getJSON(path, token string, out any) *http.Response {
	a.t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.srv.URL+path, nil)
	require.NoError(a.t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestUserTransactionHistory(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("alice", "")
	account := api.openAccount(token)

	for _, amount := range []string{"50.00", "150.00", "250.00"} {
		resp, _ := api.do(http.MethodPost, "/api/accounts/"+account+"/deposit", token,
			map[string]any{"amount": amount}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var records []models.TransactionRecord
	resp := api.getJSON("/api/transactions?min_amount=100&sort=amount,desc", token, &records)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, records, 2)
	assert.True(t, records[0].Amount.GreaterThan(records[1].Amount))

	records = nil
	resp = api.getJSON("/api/transactions?size=2&page=1&sort=amount", token, &records)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, records, 1)

	resp = api.getJSON("/api/transactions?sort=note", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.getJSON("/api/transactions?min_amount=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.getJSON("/api/transactions?start_date=03/04/2025", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransactionSummaryEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("alice", "")
	otherToken := api.register("bob", "")
	accountA := api.openAccount(token)
	accountB := api.openAccount(token)

	resp, _ := api.do(http.MethodPost, "/api/accounts/"+accountA+"/deposit", token,
		map[string]any{"amount": "1000.00"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = api.do(http.MethodPost, "/api/accounts/"+accountA+"/withdraw", token,
		map[string]any{"amount": "200.00"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = api.do(http.MethodPost, "/api/transactions/transfer", token,
		map[string]any{"from_account": accountA, "to_account": accountB, "amount": "300.00"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary models.TransactionSummary
	resp = api.getJSON("/api/transactions/summary?account_number="+accountA, token, &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, accountA, summary.ScopeAccountNumber)
	assert.True(t, summary.TotalCredits.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, summary.TotalDebits.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, summary.NetCashflow.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, summary.LargestDebit.Equal(decimal.RequireFromString("300.00")))

	// another user's account is off limits as a scope
	resp = api.getJSON("/api/transactions/summary?account_number="+accountA, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTrailPaginationDefaults(t *testing.T) {
	api := newTestAPI(t)
	userToken := api.register("alice", "")
	adminToken := api.register("root", models.RoleAdmin)
	account := api.openAccount(userToken)

	for i := 0; i < 25; i++ {
		resp, _ := api.do(http.MethodPost, "/api/accounts/"+account+"/deposit", userToken,
			map[string]any{"amount": "1.00"}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var entries []models.AuditEntry
	resp := api.getJSON("/api/admin/audit", adminToken, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, entries, 20, "unspecified page size falls back to the default")

	entries = nil
	resp = api.getJSON("/api/admin/audit?size=1000", adminToken, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Greater(t, len(entries), 20, "an explicit size within the cap is honored")
}

func TestFraudTrailExposesLargeMovements(t *testing.T) {
	api := newTestAPI(t)
	userToken := api.register("alice", "")
	adminToken := api.register("root", models.RoleAdmin)
	account := api.openAccount(userToken)

	resp, _ := api.do(http.MethodPost, "/api/accounts/"+account+"/deposit", userToken,
		map[string]any{"amount": "15000.00"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/api/admin/fraud", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	raw, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusOK, raw.StatusCode)

	var events []models.FraudEvent
	require.NoError(t, json.NewDecoder(raw.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, models.FraudLargeDeposit, events[0].EventType)
	assert.Equal(t, account, events[0].AccountNumber)
}
