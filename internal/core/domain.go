package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// Debt increases what the counterparty owes; stored with a positive amount.
	Debt TransactionType = "DEBT"
	// Payment decreases what the counterparty owes; stored with a negative amount.
	Payment TransactionType = "PAYMENT"
)

type (
	TransactionType string

	Money struct {
		Cents int64
	}

	// Person is a counterparty whose running balance is tracked.
	// Balance is a materialized aggregate: it always equals the sum of the
	// signed amounts of the person's transactions.
	Person struct {
		ID        int64
		Name      string
		Balance   Money
		CreatedAt time.Time
	}

	// Transaction is a single signed ledger entry against one person.
	// Amount carries the sign derived from Type; AutoGenerated marks entries
	// posted by the recurring charge processor.
	Transaction struct {
		ID            int64
		PersonID      int64
		Amount        Money
		Description   string
		Type          TransactionType
		AutoGenerated bool
		Date          time.Time
	}

	// RecurringCharge is a template that periodically generates transactions.
	// Amount is an unsigned magnitude; the sign is applied at posting time
	// from Type. NextDue is a lower bound on the next occurrence still owed.
	RecurringCharge struct {
		ID            int64
		PersonID      int64
		Amount        Money
		Description   string
		Type          TransactionType
		FrequencyDays int
		NextDue       time.Time
		CreatedAt     time.Time
	}
)

var (
	ErrNotFound         = errors.New("entry not found")
	ErrDuplicateName    = errors.New("entry already exists")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
	ErrNameLong         = errors.New("name too long (max 100 characters)")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidBackup    = errors.New("invalid backup payload")
)

// Validate reports whether t names a known transaction type.
func (t TransactionType) Validate() error {
	switch t {
	case Debt, Payment:
		return nil
	default:
		return ErrInvalidType
	}
}

// SignedCents returns the signed ledger amount for a magnitude of the given
// type: positive for Debt, negative for Payment.
func (t TransactionType) SignedCents(magnitude int64) int64 {
	if t == Payment {
		return -magnitude
	}
	return magnitude
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateDescription enforces the shared description rules for transactions
// and recurring charges.
func ValidateDescription(s string) error {
	if len(strings.TrimSpace(s)) == 0 {
		return ErrEmptyDescription
	}
	if len(s) > 200 {
		return ErrDescriptionLong
	}
	return nil
}

// ValidatePersonName enforces the person display-name rules. Uniqueness is
// checked case-insensitively at the service layer, not here.
func ValidatePersonName(s string) error {
	if len(strings.TrimSpace(s)) == 0 {
		return ErrEmptyName
	}
	if len(s) > 100 {
		return ErrNameLong
	}
	return nil
}

// Validate checks the sign/type invariant on a stored transaction.
func (t Transaction) Validate() error {
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if t.Type == Debt && t.Amount.Cents < 0 {
		return errors.New("debt amount must be positive")
	}
	if t.Type == Payment && t.Amount.Cents > 0 {
		return errors.New("payment amount must be negative")
	}
	return ValidateDescription(t.Description)
}

func (rc RecurringCharge) Validate() error {
	if err := rc.Type.Validate(); err != nil {
		return err
	}
	if err := rc.Amount.Validate(); err != nil {
		return err
	}
	if rc.FrequencyDays <= 0 {
		return ErrInvalidFrequency
	}
	return ValidateDescription(rc.Description)
}

// Frequency returns the charge's recurrence interval as a duration.
func (rc RecurringCharge) Frequency() time.Duration {
	return time.Duration(rc.FrequencyDays) * 24 * time.Hour
}
