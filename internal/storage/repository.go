// Package storage persists the ledger in SQLite. Every mutation that touches
// both a detail row and a person's cached balance runs inside a single
// database transaction so readers never observe one without the other.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db  *sql.DB
	hub *watchHub
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		hub: newWatchHub(),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	r.hub.closeAll()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Persons

func (r *SQLiteRepository) CreatePerson(ctx context.Context, name string, createdAt time.Time) (core.Person, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO persons (name, balance_cents, created_at) VALUES (?, 0, ?)",
		name, createdAt.UnixMilli(),
	)
	if err != nil {
		return core.Person{}, fmt.Errorf("insert person: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Person{}, fmt.Errorf("person insert id: %w", err)
	}

	slog.InfoContext(ctx, "Person created", "id", id, "name", name)
	r.hub.publish(Change{Entity: EntityPerson, Op: OpCreate, PersonID: id})

	return core.Person{ID: id, Name: name, CreatedAt: createdAt}, nil
}

func (r *SQLiteRepository) GetPersonByID(ctx context.Context, id int64) (core.Person, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, balance_cents, created_at FROM persons WHERE id = ?", id)
	return scanPerson(row)
}

// GetPersonByName resolves a person by display name, compared
// case-insensitively.
func (r *SQLiteRepository) GetPersonByName(ctx context.Context, name string) (core.Person, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, balance_cents, created_at FROM persons WHERE LOWER(name) = LOWER(?)", name)
	return scanPerson(row)
}

func (r *SQLiteRepository) ListPersons(ctx context.Context) ([]core.Person, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, balance_cents, created_at FROM persons ORDER BY name COLLATE NOCASE ASC")
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []core.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

func (r *SQLiteRepository) UpdatePersonName(ctx context.Context, id int64, name string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE persons SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("update person name: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	r.hub.publish(Change{Entity: EntityPerson, Op: OpUpdate, PersonID: id})
	return nil
}

// DeletePerson removes a person. The person's transactions and recurring
// charges go with it via ON DELETE CASCADE.
func (r *SQLiteRepository) DeletePerson(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM persons WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Person deleted", "id", id)
	r.hub.publish(Change{Entity: EntityPerson, Op: OpDelete, PersonID: id})
	return nil
}

// Transactions

// AppendTransaction inserts a signed ledger entry and applies its amount to
// the owner's cached balance as one atomic unit.
func (r *SQLiteRepository) AppendTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := applyBalanceDelta(ctx, tx, t.PersonID, t.Amount.Cents); err != nil {
		return core.Transaction{}, err
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO transactions (person_id, amount_cents, description, type, is_recurring, date) VALUES (?, ?, ?, ?, ?, ?)",
		t.PersonID, t.Amount.Cents, t.Description, string(t.Type), boolToInt(t.AutoGenerated), t.Date.UnixMilli(),
	)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit transaction: %w", err)
	}

	t.ID = id
	slog.InfoContext(ctx, "Transaction appended",
		"id", id,
		"person_id", t.PersonID,
		"amount_cents", t.Amount.Cents,
		"type", t.Type,
		"auto", t.AutoGenerated)
	r.hub.publish(Change{Entity: EntityTransaction, Op: OpCreate, PersonID: t.PersonID})
	return t, nil
}

// ReviseTransaction updates a transaction's signed amount and description and
// re-balances the owner by -old+new in the same database transaction.
func (r *SQLiteRepository) ReviseTransaction(ctx context.Context, id, newAmountCents int64, newDescription string) (core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := scanTransaction(tx.QueryRowContext(ctx,
		"SELECT id, person_id, amount_cents, description, type, is_recurring, date FROM transactions WHERE id = ?", id))
	if err != nil {
		return core.Transaction{}, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE transactions SET amount_cents = ?, description = ? WHERE id = ?",
		newAmountCents, newDescription, id,
	); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	if err := applyBalanceDelta(ctx, tx, old.PersonID, -old.Amount.Cents+newAmountCents); err != nil {
		return core.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit transaction: %w", err)
	}

	old.Amount = core.Money{Cents: newAmountCents}
	old.Description = newDescription
	slog.InfoContext(ctx, "Transaction revised", "id", id, "person_id", old.PersonID, "amount_cents", newAmountCents)
	r.hub.publish(Change{Entity: EntityTransaction, Op: OpUpdate, PersonID: old.PersonID})
	return old, nil
}

// RemoveTransaction deletes a transaction and reverses its contribution to
// the owner's balance atomically.
func (r *SQLiteRepository) RemoveTransaction(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := scanTransaction(tx.QueryRowContext(ctx,
		"SELECT id, person_id, amount_cents, description, type, is_recurring, date FROM transactions WHERE id = ?", id))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if err := applyBalanceDelta(ctx, tx, old.PersonID, -old.Amount.Cents); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction removed", "id", id, "person_id", old.PersonID)
	r.hub.publish(Change{Entity: EntityTransaction, Op: OpDelete, PersonID: old.PersonID})
	return nil
}

func (r *SQLiteRepository) GetTransactionByID(ctx context.Context, id int64) (core.Transaction, error) {
	return scanTransaction(r.db.QueryRowContext(ctx,
		"SELECT id, person_id, amount_cents, description, type, is_recurring, date FROM transactions WHERE id = ?", id))
}

func (r *SQLiteRepository) ListTransactionsForPerson(ctx context.Context, personID int64) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		"SELECT id, person_id, amount_cents, description, type, is_recurring, date FROM transactions WHERE person_id = ? ORDER BY date DESC, id DESC",
		personID)
}

// ListRecentTransactions returns the newest entries for a person, capped at
// limit.
func (r *SQLiteRepository) ListRecentTransactions(ctx context.Context, personID int64, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		"SELECT id, person_id, amount_cents, description, type, is_recurring, date FROM transactions WHERE person_id = ? ORDER BY date DESC, id DESC LIMIT ?",
		personID, limit)
}

func (r *SQLiteRepository) ListAllTransactions(ctx context.Context) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		"SELECT id, person_id, amount_cents, description, type, is_recurring, date FROM transactions ORDER BY id ASC")
}

// Recurring charges

func (r *SQLiteRepository) CreateRecurringCharge(ctx context.Context, rc core.RecurringCharge) (core.RecurringCharge, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO recurring_charges (person_id, amount_cents, description, type, frequency_days, next_due, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rc.PersonID, rc.Amount.Cents, rc.Description, string(rc.Type), rc.FrequencyDays, rc.NextDue.UnixMilli(), rc.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return core.RecurringCharge{}, fmt.Errorf("insert recurring charge: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.RecurringCharge{}, fmt.Errorf("recurring charge insert id: %w", err)
	}

	rc.ID = id
	slog.InfoContext(ctx, "Recurring charge created",
		"id", id,
		"person_id", rc.PersonID,
		"frequency_days", rc.FrequencyDays,
		"next_due", rc.NextDue)
	r.hub.publish(Change{Entity: EntityRecurringCharge, Op: OpCreate, PersonID: rc.PersonID})
	return rc, nil
}

func (r *SQLiteRepository) GetRecurringChargeByID(ctx context.Context, id int64) (core.RecurringCharge, error) {
	return scanCharge(r.db.QueryRowContext(ctx,
		"SELECT id, person_id, amount_cents, description, type, frequency_days, next_due, created_at FROM recurring_charges WHERE id = ?", id))
}

func (r *SQLiteRepository) ListChargesForPerson(ctx context.Context, personID int64) ([]core.RecurringCharge, error) {
	return r.queryCharges(ctx,
		"SELECT id, person_id, amount_cents, description, type, frequency_days, next_due, created_at FROM recurring_charges WHERE person_id = ? ORDER BY id ASC",
		personID)
}

func (r *SQLiteRepository) ListAllCharges(ctx context.Context) ([]core.RecurringCharge, error) {
	return r.queryCharges(ctx,
		"SELECT id, person_id, amount_cents, description, type, frequency_days, next_due, created_at FROM recurring_charges ORDER BY id ASC")
}

// ListDueCharges returns charges with next_due at or before asOf. The
// comparison is inclusive: a charge due exactly now is due.
func (r *SQLiteRepository) ListDueCharges(ctx context.Context, asOf time.Time) ([]core.RecurringCharge, error) {
	return r.queryCharges(ctx,
		"SELECT id, person_id, amount_cents, description, type, frequency_days, next_due, created_at FROM recurring_charges WHERE next_due <= ? ORDER BY id ASC",
		asOf.UnixMilli())
}

func (r *SQLiteRepository) UpdateChargeNextDue(ctx context.Context, id int64, nextDue time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE recurring_charges SET next_due = ? WHERE id = ?", nextDue.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update charge next due: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	r.hub.publish(Change{Entity: EntityRecurringCharge, Op: OpUpdate})
	return nil
}

func (r *SQLiteRepository) DeleteRecurringCharge(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM recurring_charges WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete recurring charge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	r.hub.publish(Change{Entity: EntityRecurringCharge, Op: OpDelete})
	return nil
}

// Snapshot operations

// ClearAll wipes every collection, children before parents.
func (r *SQLiteRepository) ClearAll(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearAllTables(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}

	slog.InfoContext(ctx, "All ledger data cleared")
	r.hub.publish(Change{Entity: EntityPerson, Op: OpDelete})
	return nil
}

// ReplaceAll restores a snapshot as one transaction: everything is cleared
// and re-inserted in foreign-key order, and any failure rolls back to the
// prior state.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, snapshot core.BackupSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearAllTables(ctx, tx); err != nil {
		return err
	}

	for _, p := range snapshot.Persons {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO persons (id, name, balance_cents, created_at) VALUES (?, ?, ?, ?)",
			p.ID, p.Name, p.BalanceCents, p.CreatedAt,
		); err != nil {
			return fmt.Errorf("restore person %d: %w", p.ID, err)
		}
	}
	for _, t := range snapshot.Transactions {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO transactions (id, person_id, amount_cents, description, type, is_recurring, date) VALUES (?, ?, ?, ?, ?, ?, ?)",
			t.ID, t.PersonID, t.AmountCents, t.Description, string(t.Type), boolToInt(t.AutoGenerated), t.Date,
		); err != nil {
			return fmt.Errorf("restore transaction %d: %w", t.ID, err)
		}
	}
	for _, rc := range snapshot.RecurringCharges {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO recurring_charges (id, person_id, amount_cents, description, type, frequency_days, next_due, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			rc.ID, rc.PersonID, rc.AmountCents, rc.Description, string(rc.Type), rc.FrequencyDays, rc.NextDue, rc.CreatedAt,
		); err != nil {
			return fmt.Errorf("restore recurring charge %d: %w", rc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot restored",
		"persons", len(snapshot.Persons),
		"transactions", len(snapshot.Transactions),
		"recurring_charges", len(snapshot.RecurringCharges))
	r.hub.publish(Change{Entity: EntityPerson, Op: OpUpdate})
	return nil
}

// helpers

func clearAllTables(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		"DELETE FROM transactions",
		"DELETE FROM recurring_charges",
		"DELETE FROM persons",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear tables: %w", err)
		}
	}
	return nil
}

// applyBalanceDelta adds delta to a person's cached balance inside tx and
// reports ErrNotFound when the person does not exist.
func applyBalanceDelta(ctx context.Context, tx *sql.Tx, personID, delta int64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE persons SET balance_cents = balance_cents + ? WHERE id = ?", delta, personID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (core.Person, error) {
	var (
		p         core.Person
		createdAt int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Balance.Cents, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Person{}, core.ErrNotFound
	}
	if err != nil {
		return core.Person{}, fmt.Errorf("scan person: %w", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	return p, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t         core.Transaction
		typ       string
		recurring int64
		date      int64
	)
	err := row.Scan(&t.ID, &t.PersonID, &t.Amount.Cents, &t.Description, &typ, &recurring, &date)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Type = core.TransactionType(typ)
	t.AutoGenerated = recurring != 0
	t.Date = time.UnixMilli(date)
	return t, nil
}

func scanCharge(row rowScanner) (core.RecurringCharge, error) {
	var (
		rc        core.RecurringCharge
		typ       string
		nextDue   int64
		createdAt int64
	)
	err := row.Scan(&rc.ID, &rc.PersonID, &rc.Amount.Cents, &rc.Description, &typ, &rc.FrequencyDays, &nextDue, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringCharge{}, core.ErrNotFound
	}
	if err != nil {
		return core.RecurringCharge{}, fmt.Errorf("scan recurring charge: %w", err)
	}
	rc.Type = core.TransactionType(typ)
	rc.NextDue = time.UnixMilli(nextDue)
	rc.CreatedAt = time.UnixMilli(createdAt)
	return rc, nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) queryCharges(ctx context.Context, query string, args ...any) ([]core.RecurringCharge, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring charges: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringCharge
	for rows.Next() {
		rc, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
