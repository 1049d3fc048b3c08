// Package http exposes the ledger over a JSON API plus a live event stream.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tally/internal/middleware/trace"
	"tally/internal/services"
	"tally/internal/storage"
)

type Server struct {
	http.Server

	ledger    *services.LedgerService
	processor *services.RecurringProcessor
	backup    *services.BackupService
	repo      *storage.SQLiteRepository

	rateLimiter *rateLimiter
	metrics     *securityMetrics
	recentLimit int

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger *services.LedgerService, processor *services.RecurringProcessor, backup *services.BackupService, repo *storage.SQLiteRepository, recentLimit int) *Server {
	mux := http.NewServeMux()

	s := &Server{
		ledger:      ledger,
		processor:   processor,
		backup:      backup,
		repo:        repo,
		rateLimiter: newRateLimiter(),
		metrics:     &securityMetrics{},
		recentLimit: recentLimit,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/persons", s.handleListPersons)
	mux.HandleFunc("POST /api/persons", s.handleCreatePerson)
	mux.HandleFunc("GET /api/persons/{id}", s.handleGetPerson)
	mux.HandleFunc("PATCH /api/persons/{id}", s.handleRenamePerson)
	mux.HandleFunc("DELETE /api/persons/{id}", s.handleDeletePerson)

	mux.HandleFunc("GET /api/persons/{id}/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/persons/{id}/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}", s.handleEditTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/persons/{id}/recurring-charges", s.handleListRecurringCharges)
	mux.HandleFunc("POST /api/persons/{id}/recurring-charges", s.handleCreateRecurringCharge)
	mux.HandleFunc("DELETE /api/recurring-charges/{id}", s.handleDeleteRecurringCharge)
	mux.HandleFunc("POST /api/recurring-charges/run", s.handleRunRecurringCharges)

	mux.HandleFunc("GET /api/backup", s.handleExportBackup)
	mux.HandleFunc("POST /api/restore", s.handleRestoreBackup)
	mux.HandleFunc("POST /api/purge", s.handlePurge)

	mux.HandleFunc("GET /api/events", s.handleEvents)

	tracer := trace.NewMiddleware(extractClientIP)
	s.Server = http.Server{
		Addr:              addr,
		Handler:           tracer.Middleware(s.withSecurity(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// withSecurity adds security headers and applies per-IP rate limiting to
// mutating requests. Reads and the event stream are not throttled.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			clientIP := extractClientIP(r)
			if !s.rateLimiter.allow(clientIP, s.metrics) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// Shutdown stops background routines and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ledger.ListPersons(r.Context()); err != nil {
		http.Error(w, "storage not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
