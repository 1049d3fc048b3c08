package core

import "time"

// BackupVersion is the snapshot format version tag written on export and
// accepted on import.
const BackupVersion = "2.0"

// BackupSnapshot is the exportable/importable copy of the full ledger.
// Times travel as epoch milliseconds and amounts as integer cents so the
// payload survives transport through files and clipboards unchanged.
type BackupSnapshot struct {
	Version          string                  `json:"version"`
	ExportDate       int64                   `json:"exportDate"`
	Persons          []PersonRecord          `json:"persons"`
	Transactions     []TransactionRecord     `json:"transactions"`
	RecurringCharges []RecurringChargeRecord `json:"recurringCharges"`
}

type PersonRecord struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	BalanceCents int64  `json:"balance"`
	CreatedAt    int64  `json:"createdAt"`
}

type TransactionRecord struct {
	ID            int64           `json:"id"`
	PersonID      int64           `json:"personId"`
	AmountCents   int64           `json:"amount"`
	Description   string          `json:"description"`
	Type          TransactionType `json:"type"`
	AutoGenerated bool            `json:"isRecurring"`
	Date          int64           `json:"date"`
}

type RecurringChargeRecord struct {
	ID            int64           `json:"id"`
	PersonID      int64           `json:"personId"`
	AmountCents   int64           `json:"amount"`
	Description   string          `json:"description"`
	Type          TransactionType `json:"type"`
	FrequencyDays int             `json:"frequencyDays"`
	NextDue       int64           `json:"nextDue"`
	CreatedAt     int64           `json:"createdAt"`
}

// Record converts a person to its snapshot representation.
func (p Person) Record() PersonRecord {
	return PersonRecord{
		ID:           p.ID,
		Name:         p.Name,
		BalanceCents: p.Balance.Cents,
		CreatedAt:    p.CreatedAt.UnixMilli(),
	}
}

// Person converts a snapshot record back to the domain type.
func (r PersonRecord) Person() Person {
	return Person{
		ID:        r.ID,
		Name:      r.Name,
		Balance:   Money{Cents: r.BalanceCents},
		CreatedAt: time.UnixMilli(r.CreatedAt),
	}
}

func (t Transaction) Record() TransactionRecord {
	return TransactionRecord{
		ID:            t.ID,
		PersonID:      t.PersonID,
		AmountCents:   t.Amount.Cents,
		Description:   t.Description,
		Type:          t.Type,
		AutoGenerated: t.AutoGenerated,
		Date:          t.Date.UnixMilli(),
	}
}

func (r TransactionRecord) Transaction() Transaction {
	return Transaction{
		ID:            r.ID,
		PersonID:      r.PersonID,
		Amount:        Money{Cents: r.AmountCents},
		Description:   r.Description,
		Type:          r.Type,
		AutoGenerated: r.AutoGenerated,
		Date:          time.UnixMilli(r.Date),
	}
}

func (rc RecurringCharge) Record() RecurringChargeRecord {
	return RecurringChargeRecord{
		ID:            rc.ID,
		PersonID:      rc.PersonID,
		AmountCents:   rc.Amount.Cents,
		Description:   rc.Description,
		Type:          rc.Type,
		FrequencyDays: rc.FrequencyDays,
		NextDue:       rc.NextDue.UnixMilli(),
		CreatedAt:     rc.CreatedAt.UnixMilli(),
	}
}

func (r RecurringChargeRecord) RecurringCharge() RecurringCharge {
	return RecurringCharge{
		ID:            r.ID,
		PersonID:      r.PersonID,
		Amount:        Money{Cents: r.AmountCents},
		Description:   r.Description,
		Type:          r.Type,
		FrequencyDays: r.FrequencyDays,
		NextDue:       time.UnixMilli(r.NextDue),
		CreatedAt:     time.UnixMilli(r.CreatedAt),
	}
}
