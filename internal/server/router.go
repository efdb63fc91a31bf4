package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/meridianbank/core/internal/models"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/accounts", s.handleCreateAccount)
			r.Get("/accounts", s.handleListAccounts)
			r.Post("/accounts/{accountNumber}/deposit", s.handleDeposit)
			r.Post("/accounts/{accountNumber}/withdraw", s.handleWithdraw)
			r.Get("/accounts/{accountNumber}/transactions", s.handleListTransactions)
			r.Get("/transactions", s.handleUserTransactions)
			r.Get("/transactions/summary", s.handleTransactionSummary)
			r.Post("/transactions/transfer", s.handleTransfer)

			r.Group(func(r chi.Router) {
				r.Use(s.requireRole(models.RoleAdmin))
				r.Patch("/admin/accounts/{accountNumber}/status", s.handleAccountStatus)
			})
			r.Group(func(r chi.Router) {
				r.Use(s.requireRole(models.RoleAdmin, models.RoleAuditor))
				r.Get("/admin/audit", s.handleAuditTrail)
				r.Get("/admin/fraud", s.handleFraudTrail)
			})
		})
	})

	return r
}
