package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/core"
	"tally/internal/notify"
	"tally/internal/storage"
)

// BackupService produces and consumes full-ledger snapshots. Transporting
// the serialized bytes (file, clipboard, share target) is the caller's
// concern; this service only deals with the in-memory payload.
type BackupService struct {
	storage  *storage.SQLiteRepository
	notifier notify.Notifier
}

func NewBackupService(storage *storage.SQLiteRepository, notifier notify.Notifier) *BackupService {
	return &BackupService{
		storage:  storage,
		notifier: notifier,
	}
}

// ExportSnapshot materializes the current full collections. Balances are
// exported as stored; they are consistent with the transaction history by
// the ledger invariant.
func (s *BackupService) ExportSnapshot(ctx context.Context) (core.BackupSnapshot, error) {
	persons, err := s.storage.ListPersons(ctx)
	if err != nil {
		return core.BackupSnapshot{}, fmt.Errorf("export persons: %w", err)
	}
	transactions, err := s.storage.ListAllTransactions(ctx)
	if err != nil {
		return core.BackupSnapshot{}, fmt.Errorf("export transactions: %w", err)
	}
	charges, err := s.storage.ListAllCharges(ctx)
	if err != nil {
		return core.BackupSnapshot{}, fmt.Errorf("export recurring charges: %w", err)
	}

	snapshot := core.BackupSnapshot{
		Version:          core.BackupVersion,
		ExportDate:       time.Now().UnixMilli(),
		Persons:          make([]core.PersonRecord, 0, len(persons)),
		Transactions:     make([]core.TransactionRecord, 0, len(transactions)),
		RecurringCharges: make([]core.RecurringChargeRecord, 0, len(charges)),
	}
	for _, p := range persons {
		snapshot.Persons = append(snapshot.Persons, p.Record())
	}
	for _, t := range transactions {
		snapshot.Transactions = append(snapshot.Transactions, t.Record())
	}
	for _, rc := range charges {
		snapshot.RecurringCharges = append(snapshot.RecurringCharges, rc.Record())
	}

	slog.InfoContext(ctx, "Snapshot exported",
		"persons", len(snapshot.Persons),
		"transactions", len(snapshot.Transactions),
		"recurring_charges", len(snapshot.RecurringCharges))

	return snapshot, nil
}

// ExportJSON serializes the snapshot for transport.
func (s *BackupService) ExportJSON(ctx context.Context) ([]byte, error) {
	snapshot, err := s.ExportSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// ImportJSON performs a destructive restore from serialized snapshot bytes.
// The payload is parsed and validated before anything is cleared, and the
// clear+insert runs as one storage transaction, so a bad payload can never
// leave the store partially restored or empty.
func (s *BackupService) ImportJSON(ctx context.Context, data []byte) error {
	var snapshot core.BackupSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.notify(ctx, "ERROR: Invalid backup file")
		return fmt.Errorf("parse snapshot: %w", core.ErrInvalidBackup)
	}
	if err := validateSnapshot(snapshot); err != nil {
		s.notify(ctx, "ERROR: Invalid backup file")
		return err
	}

	if err := s.storage.ReplaceAll(ctx, snapshot); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	s.notify(ctx, "> Import successful")
	return nil
}

// ClearAll wipes the entire ledger.
func (s *BackupService) ClearAll(ctx context.Context) error {
	if err := s.storage.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear all data: %w", err)
	}
	s.notify(ctx, "> System purged")
	return nil
}

// validateSnapshot rejects payloads that parsed as JSON but do not have the
// expected shape: unknown version, dangling person references, or types
// outside the DEBT/PAYMENT enum.
func validateSnapshot(snapshot core.BackupSnapshot) error {
	if snapshot.Version == "" {
		return fmt.Errorf("missing version: %w", core.ErrInvalidBackup)
	}

	personIDs := make(map[int64]struct{}, len(snapshot.Persons))
	for _, p := range snapshot.Persons {
		if p.ID == 0 || p.Name == "" {
			return fmt.Errorf("malformed person record: %w", core.ErrInvalidBackup)
		}
		personIDs[p.ID] = struct{}{}
	}
	for _, t := range snapshot.Transactions {
		if _, ok := personIDs[t.PersonID]; !ok {
			return fmt.Errorf("transaction %d references unknown person %d: %w", t.ID, t.PersonID, core.ErrInvalidBackup)
		}
		if err := t.Type.Validate(); err != nil {
			return fmt.Errorf("transaction %d: %w", t.ID, core.ErrInvalidBackup)
		}
	}
	for _, rc := range snapshot.RecurringCharges {
		if _, ok := personIDs[rc.PersonID]; !ok {
			return fmt.Errorf("recurring charge %d references unknown person %d: %w", rc.ID, rc.PersonID, core.ErrInvalidBackup)
		}
		if err := rc.Type.Validate(); err != nil {
			return fmt.Errorf("recurring charge %d: %w", rc.ID, core.ErrInvalidBackup)
		}
	}
	return nil
}

func (s *BackupService) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, text)
}
