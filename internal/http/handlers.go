package http

import (
	"net/http"
	"strconv"
	"time"

	"tally/internal/core"
)

type personResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	BalanceCents int64  `json:"balanceCents"`
	Balance      string `json:"balance"`
	CreatedAt    string `json:"createdAt"`
}

type transactionResponse struct {
	ID          int64  `json:"id"`
	PersonID    int64  `json:"personId"`
	AmountCents int64  `json:"amountCents"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Type        string `json:"type"`
	IsRecurring bool   `json:"isRecurring"`
	Date        string `json:"date"`
}

type chargeResponse struct {
	ID            int64  `json:"id"`
	PersonID      int64  `json:"personId"`
	AmountCents   int64  `json:"amountCents"`
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	Type          string `json:"type"`
	FrequencyDays int    `json:"frequencyDays"`
	NextDue       string `json:"nextDue"`
	CreatedAt     string `json:"createdAt"`
}

func toPersonResponse(p core.Person) personResponse {
	return personResponse{
		ID:           p.ID,
		Name:         p.Name,
		BalanceCents: p.Balance.Cents,
		Balance:      p.Balance.String(),
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		PersonID:    t.PersonID,
		AmountCents: t.Amount.Cents,
		Amount:      t.Amount.String(),
		Description: t.Description,
		Type:        string(t.Type),
		IsRecurring: t.AutoGenerated,
		Date:        t.Date.Format(time.RFC3339),
	}
}

func toChargeResponse(rc core.RecurringCharge) chargeResponse {
	return chargeResponse{
		ID:            rc.ID,
		PersonID:      rc.PersonID,
		AmountCents:   rc.Amount.Cents,
		Amount:        rc.Amount.String(),
		Description:   rc.Description,
		Type:          string(rc.Type),
		FrequencyDays: rc.FrequencyDays,
		NextDue:       rc.NextDue.Format(time.RFC3339),
		CreatedAt:     rc.CreatedAt.Format(time.RFC3339),
	}
}

// Persons

func (s *Server) handleListPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := s.ledger.ListPersons(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]personResponse, 0, len(persons))
	for _, p := range persons {
		out = append(out, toPersonResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := s.ledger.AddPerson(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonResponse(p))
}

func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	p, err := s.ledger.GetPerson(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonResponse(p))
}

func (s *Server) handleRenamePerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.ledger.RenamePerson(r.Context(), id, req.Name); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.ledger.GetPerson(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonResponse(p))
}

func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.ledger.DeletePerson(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transactions

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if _, err := s.ledger.GetPerson(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	var txs []core.Transaction
	if r.URL.Query().Get("recent") != "" {
		limit := s.recentLimit
		if v, convErr := strconv.Atoi(r.URL.Query().Get("recent")); convErr == nil && v > 0 {
			limit = v
		}
		txs, err = s.ledger.ListRecentTransactions(r.Context(), id, limit)
	} else {
		txs, err = s.ledger.ListTransactions(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var req struct {
		Amount      string `json:"amount"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.ledger.RecordTransaction(r.Context(), id, core.Money{Cents: cents}, req.Description, core.TransactionType(req.Type), false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var req struct {
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.ledger.EditTransaction(r.Context(), id, core.Money{Cents: cents}, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recurring charges

func (s *Server) handleListRecurringCharges(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if _, err := s.ledger.GetPerson(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	charges, err := s.ledger.ListRecurringCharges(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]chargeResponse, 0, len(charges))
	for _, rc := range charges {
		out = append(out, toChargeResponse(rc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRecurringCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var req struct {
		Amount        string `json:"amount"`
		Description   string `json:"description"`
		Type          string `json:"type"`
		FrequencyDays int    `json:"frequencyDays"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rc, err := s.ledger.AddRecurringCharge(r.Context(), id, core.Money{Cents: cents}, req.Description, core.TransactionType(req.Type), req.FrequencyDays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChargeResponse(rc))
}

func (s *Server) handleDeleteRecurringCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.ledger.DeleteRecurringCharge(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunRecurringCharges(w http.ResponseWriter, r *http.Request) {
	applied, skipped, err := s.processor.ProcessDueCharges(r.Context(), time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Applied int `json:"applied"`
		Skipped int `json:"skipped"`
	}{Applied: applied, Skipped: skipped})
}
