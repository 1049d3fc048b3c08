// Package services provides business logic and orchestration on top of the
// storage layer: the ledger engine, the recurring charge processor and the
// backup serializer.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tally/internal/core"
	"tally/internal/notify"
	"tally/internal/storage"
)

// LedgerService owns the balance-mutation rules. Every transaction write is
// paired with a signed balance delta against the owning person; the pairing
// is atomic because it happens inside a single storage transaction.
type LedgerService struct {
	storage  *storage.SQLiteRepository
	notifier notify.Notifier
}

func NewLedgerService(storage *storage.SQLiteRepository, notifier notify.Notifier) *LedgerService {
	return &LedgerService{
		storage:  storage,
		notifier: notifier,
	}
}

// Persons

// AddPerson creates a counterparty with a zero balance. Names are unique
// under case-insensitive comparison.
func (s *LedgerService) AddPerson(ctx context.Context, name string) (core.Person, error) {
	name = strings.TrimSpace(name)
	if err := core.ValidatePersonName(name); err != nil {
		return core.Person{}, err
	}

	if _, err := s.storage.GetPersonByName(ctx, name); err == nil {
		s.notify(ctx, "ERROR: Entry already exists")
		return core.Person{}, fmt.Errorf("add person %q: %w", name, core.ErrDuplicateName)
	}

	p, err := s.storage.CreatePerson(ctx, name, time.Now())
	if err != nil {
		return core.Person{}, fmt.Errorf("add person: %w", err)
	}

	s.notify(ctx, "> Entry created")
	return p, nil
}

// RenamePerson applies the same uniqueness check as AddPerson, excluding the
// person's own row from the collision check.
func (s *LedgerService) RenamePerson(ctx context.Context, personID int64, newName string) error {
	newName = strings.TrimSpace(newName)
	if err := core.ValidatePersonName(newName); err != nil {
		return err
	}

	if existing, err := s.storage.GetPersonByName(ctx, newName); err == nil && existing.ID != personID {
		s.notify(ctx, "ERROR: Entry already exists")
		return fmt.Errorf("rename person %d to %q: %w", personID, newName, core.ErrDuplicateName)
	}

	if err := s.storage.UpdatePersonName(ctx, personID, newName); err != nil {
		return fmt.Errorf("rename person: %w", err)
	}

	s.notify(ctx, "> Name updated")
	return nil
}

// DeletePerson hard-deletes the person and all owned transactions and
// recurring charges. Ledger history is not preserved.
func (s *LedgerService) DeletePerson(ctx context.Context, personID int64) error {
	if err := s.storage.DeletePerson(ctx, personID); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	s.notify(ctx, "> Entry terminated")
	return nil
}

func (s *LedgerService) GetPerson(ctx context.Context, personID int64) (core.Person, error) {
	return s.storage.GetPersonByID(ctx, personID)
}

func (s *LedgerService) ListPersons(ctx context.Context) ([]core.Person, error) {
	return s.storage.ListPersons(ctx)
}

// Transactions

// RecordTransaction posts a ledger entry for a positive magnitude. The
// stored amount is signed by the transaction type: +magnitude for a debt,
// -magnitude for a payment. auto marks scheduler-originated postings.
func (s *LedgerService) RecordTransaction(ctx context.Context, personID int64, magnitude core.Money, description string, typ core.TransactionType, auto bool) (core.Transaction, error) {
	if err := typ.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := magnitude.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := core.ValidateDescription(description); err != nil {
		return core.Transaction{}, err
	}

	tx, err := s.storage.AppendTransaction(ctx, core.Transaction{
		PersonID:      personID,
		Amount:        core.Money{Cents: typ.SignedCents(magnitude.Cents)},
		Description:   description,
		Type:          typ,
		AutoGenerated: auto,
		Date:          time.Now(),
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("record transaction: %w", err)
	}

	if !auto {
		s.notify(ctx, "> Transaction recorded")
	}
	return tx, nil
}

// EditTransaction changes a transaction's magnitude and description. The new
// signed amount is derived from the transaction's original stored type; the
// type itself is immutable after creation. A missing id reports
// core.ErrNotFound rather than silently doing nothing.
func (s *LedgerService) EditTransaction(ctx context.Context, transactionID int64, newMagnitude core.Money, newDescription string) (core.Transaction, error) {
	if err := newMagnitude.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := core.ValidateDescription(newDescription); err != nil {
		return core.Transaction{}, err
	}

	old, err := s.storage.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("edit transaction %d: %w", transactionID, err)
	}

	revised, err := s.storage.ReviseTransaction(ctx, transactionID, old.Type.SignedCents(newMagnitude.Cents), newDescription)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("edit transaction: %w", err)
	}

	s.notify(ctx, "> Transaction updated")
	return revised, nil
}

// DeleteTransaction removes an entry and reverses its balance contribution.
func (s *LedgerService) DeleteTransaction(ctx context.Context, transactionID int64) error {
	if err := s.storage.RemoveTransaction(ctx, transactionID); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.notify(ctx, "> Transaction deleted")
	return nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, personID int64) ([]core.Transaction, error) {
	return s.storage.ListTransactionsForPerson(ctx, personID)
}

func (s *LedgerService) ListRecentTransactions(ctx context.Context, personID int64, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = 2
	}
	return s.storage.ListRecentTransactions(ctx, personID, limit)
}

// Recurring charges

// AddRecurringCharge configures a template whose first occurrence falls one
// full period after setup.
func (s *LedgerService) AddRecurringCharge(ctx context.Context, personID int64, magnitude core.Money, description string, typ core.TransactionType, frequencyDays int) (core.RecurringCharge, error) {
	now := time.Now()
	charge := core.RecurringCharge{
		PersonID:      personID,
		Amount:        magnitude,
		Description:   description,
		Type:          typ,
		FrequencyDays: frequencyDays,
		CreatedAt:     now,
	}
	if err := charge.Validate(); err != nil {
		return core.RecurringCharge{}, err
	}
	charge.NextDue = now.Add(charge.Frequency())

	if _, err := s.storage.GetPersonByID(ctx, personID); err != nil {
		return core.RecurringCharge{}, fmt.Errorf("add recurring charge: %w", err)
	}

	created, err := s.storage.CreateRecurringCharge(ctx, charge)
	if err != nil {
		return core.RecurringCharge{}, fmt.Errorf("add recurring charge: %w", err)
	}

	s.notify(ctx, "> Recurring charge configured")
	return created, nil
}

// DeleteRecurringCharge removes the template. Transactions it already posted
// are untouched.
func (s *LedgerService) DeleteRecurringCharge(ctx context.Context, chargeID int64) error {
	if err := s.storage.DeleteRecurringCharge(ctx, chargeID); err != nil {
		return fmt.Errorf("delete recurring charge: %w", err)
	}
	s.notify(ctx, "> Recurring charge deleted")
	return nil
}

func (s *LedgerService) ListRecurringCharges(ctx context.Context, personID int64) ([]core.RecurringCharge, error) {
	return s.storage.ListChargesForPerson(ctx, personID)
}

func (s *LedgerService) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, text)
}

// Close releases the underlying storage.
func (s *LedgerService) Close() error {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close ledger service: %w", err)
		}
	}
	slog.Debug("Ledger service closed")
	return nil
}
