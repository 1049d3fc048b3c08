package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/core"
	"tally/internal/storage"
)

// MaxRecurringBackfill caps how many missed occurrences of a single charge
// are replayed in one pass. A charge neglected for years must not flood the
// ledger with back-dated postings; the remainder is fast-forwarded instead.
const MaxRecurringBackfill = 12

// AutoDescriptionSuffix marks transactions posted by the processor.
const AutoDescriptionSuffix = " [AUTO]"

// RecurringProcessor converts elapsed recurring obligations into concrete
// transactions through the same ledger path as manual entries.
type RecurringProcessor struct {
	storage *storage.SQLiteRepository
	ledger  *LedgerService
}

func NewRecurringProcessor(storage *storage.SQLiteRepository, ledger *LedgerService) *RecurringProcessor {
	return &RecurringProcessor{
		storage: storage,
		ledger:  ledger,
	}
}

// ProcessDueCharges posts every occurrence owed at the given instant and
// advances each charge's next_due strictly past now. It returns the total
// transactions posted and the number of charges whose backlog was truncated
// at MaxRecurringBackfill. Running it twice with the same clock posts
// nothing the second time.
func (p *RecurringProcessor) ProcessDueCharges(ctx context.Context, now time.Time) (applied, skipped int, err error) {
	if p.storage == nil || p.ledger == nil {
		return 0, 0, fmt.Errorf("processor not properly initialized")
	}

	dueCharges, err := p.storage.ListDueCharges(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("list due charges: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring charges",
		"due", len(dueCharges),
		"as_of", now.Format(time.RFC3339))

	for _, charge := range dueCharges {
		posted, truncated, perr := p.processCharge(ctx, charge, now)
		if perr != nil {
			slog.ErrorContext(ctx, "Failed to process recurring charge",
				"charge_id", charge.ID,
				"person_id", charge.PersonID,
				"error", perr)
			continue
		}
		applied += posted
		if truncated {
			skipped++
		}
	}

	slog.InfoContext(ctx, "Recurring charge processing complete",
		"applied", applied,
		"skipped_charges", skipped)

	return applied, skipped, nil
}

// processCharge replays one charge's missed occurrences up to the backfill
// bound and persists the advanced cursor.
func (p *RecurringProcessor) processCharge(ctx context.Context, charge core.RecurringCharge, now time.Time) (posted int, truncated bool, err error) {
	cursor := charge.NextDue
	frequency := charge.Frequency()

	for !cursor.After(now) && posted < MaxRecurringBackfill {
		_, err := p.ledger.RecordTransaction(ctx,
			charge.PersonID,
			charge.Amount,
			charge.Description+AutoDescriptionSuffix,
			charge.Type,
			true,
		)
		if err != nil {
			return posted, false, fmt.Errorf("post occurrence: %w", err)
		}
		cursor = cursor.Add(frequency)
		posted++
	}

	// Backlog remains after hitting the bound: skip it and resume one
	// period from now instead of replaying history.
	if posted >= MaxRecurringBackfill && !cursor.After(now) {
		truncated = true
		cursor = now.Add(frequency)
		slog.WarnContext(ctx, "Recurring charge backlog truncated",
			"charge_id", charge.ID,
			"person_id", charge.PersonID,
			"posted", posted,
			"next_due", cursor)
	}

	if err := p.storage.UpdateChargeNextDue(ctx, charge.ID, cursor); err != nil {
		return posted, truncated, fmt.Errorf("advance next due: %w", err)
	}

	return posted, truncated, nil
}
