package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tally/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustCreatePerson(t *testing.T, repo *SQLiteRepository, name string) core.Person {
	t.Helper()
	p, err := repo.CreatePerson(context.Background(), name, time.Now())
	if err != nil {
		t.Fatalf("CreatePerson(%q) failed: %v", name, err)
	}
	return p
}

func balanceOf(t *testing.T, repo *SQLiteRepository, id int64) int64 {
	t.Helper()
	p, err := repo.GetPersonByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPersonByID(%d) failed: %v", id, err)
	}
	return p.Balance.Cents
}

func TestPersonLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("create and fetch", func(t *testing.T) {
		p := mustCreatePerson(t, repo, "Alex")
		if p.ID == 0 {
			t.Error("expected generated ID")
		}
		got, err := repo.GetPersonByID(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPersonByID failed: %v", err)
		}
		if got.Name != "Alex" || got.Balance.Cents != 0 {
			t.Errorf("got %+v, want name Alex with zero balance", got)
		}
	})

	t.Run("name lookup is case-insensitive", func(t *testing.T) {
		mustCreatePerson(t, repo, "Sam")
		got, err := repo.GetPersonByName(ctx, "sAM")
		if err != nil {
			t.Fatalf("GetPersonByName failed: %v", err)
		}
		if got.Name != "Sam" {
			t.Errorf("got %q, want Sam", got.Name)
		}
	})

	t.Run("missing person is ErrNotFound", func(t *testing.T) {
		if _, err := repo.GetPersonByID(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
		if _, err := repo.GetPersonByName(ctx, "nobody"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("rename", func(t *testing.T) {
		p := mustCreatePerson(t, repo, "Robin")
		if err := repo.UpdatePersonName(ctx, p.ID, "Robyn"); err != nil {
			t.Fatalf("UpdatePersonName failed: %v", err)
		}
		got, _ := repo.GetPersonByID(ctx, p.ID)
		if got.Name != "Robyn" {
			t.Errorf("got %q, want Robyn", got.Name)
		}
	})

	t.Run("list ordered by name", func(t *testing.T) {
		persons, err := repo.ListPersons(ctx)
		if err != nil {
			t.Fatalf("ListPersons failed: %v", err)
		}
		for i := 1; i < len(persons); i++ {
			if persons[i-1].Name > persons[i].Name {
				t.Errorf("persons not sorted: %q before %q", persons[i-1].Name, persons[i].Name)
			}
		}
	})
}

func TestDeletePersonCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := mustCreatePerson(t, repo, "Casey")
	tx, err := repo.AppendTransaction(ctx, core.Transaction{
		PersonID: p.ID, Amount: core.Money{Cents: 1000}, Description: "x", Type: core.Debt, Date: time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}
	rc, err := repo.CreateRecurringCharge(ctx, core.RecurringCharge{
		PersonID: p.ID, Amount: core.Money{Cents: 500}, Description: "sub", Type: core.Debt,
		FrequencyDays: 7, NextDue: time.Now(), CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateRecurringCharge failed: %v", err)
	}

	if err := repo.DeletePerson(ctx, p.ID); err != nil {
		t.Fatalf("DeletePerson failed: %v", err)
	}

	if _, err := repo.GetTransactionByID(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("transaction survived cascade: %v", err)
	}
	if _, err := repo.GetRecurringChargeByID(ctx, rc.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("recurring charge survived cascade: %v", err)
	}
}

func TestTransactionBalancePairing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := mustCreatePerson(t, repo, "Alex")

	debt, err := repo.AppendTransaction(ctx, core.Transaction{
		PersonID: p.ID, Amount: core.Money{Cents: 5000}, Description: "lunch", Type: core.Debt, Date: time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}
	if got := balanceOf(t, repo, p.ID); got != 5000 {
		t.Errorf("balance after debt = %d, want 5000", got)
	}

	payment, err := repo.AppendTransaction(ctx, core.Transaction{
		PersonID: p.ID, Amount: core.Money{Cents: -2000}, Description: "partial repay", Type: core.Payment, Date: time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}
	if got := balanceOf(t, repo, p.ID); got != 3000 {
		t.Errorf("balance after payment = %d, want 3000", got)
	}

	// Edit the debt down to 40.00: delta is -5000+4000.
	if _, err := repo.ReviseTransaction(ctx, debt.ID, 4000, "lunch"); err != nil {
		t.Fatalf("ReviseTransaction failed: %v", err)
	}
	if got := balanceOf(t, repo, p.ID); got != 2000 {
		t.Errorf("balance after revise = %d, want 2000", got)
	}

	if err := repo.RemoveTransaction(ctx, payment.ID); err != nil {
		t.Fatalf("RemoveTransaction failed: %v", err)
	}
	if got := balanceOf(t, repo, p.ID); got != 4000 {
		t.Errorf("balance after remove = %d, want 4000", got)
	}

	// Balance must equal the sum of remaining signed amounts.
	txs, err := repo.ListTransactionsForPerson(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListTransactionsForPerson failed: %v", err)
	}
	var sum int64
	for _, tx := range txs {
		sum += tx.Amount.Cents
	}
	if sum != balanceOf(t, repo, p.ID) {
		t.Errorf("balance %d diverged from transaction sum %d", balanceOf(t, repo, p.ID), sum)
	}
}

func TestAppendTransactionUnknownPerson(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.AppendTransaction(context.Background(), core.Transaction{
		PersonID: 424242, Amount: core.Money{Cents: 100}, Description: "x", Type: core.Debt, Date: time.Now(),
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestReviseAndRemoveMissingTransaction(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.ReviseTransaction(ctx, 777, 100, "x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("ReviseTransaction got %v, want ErrNotFound", err)
	}
	if err := repo.RemoveTransaction(ctx, 777); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RemoveTransaction got %v, want ErrNotFound", err)
	}
}

func TestListRecentTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := mustCreatePerson(t, repo, "Alex")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := repo.AppendTransaction(ctx, core.Transaction{
			PersonID: p.ID, Amount: core.Money{Cents: int64(100 * (i + 1))},
			Description: "entry", Type: core.Debt, Date: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendTransaction failed: %v", err)
		}
	}

	recent, err := repo.ListRecentTransactions(ctx, p.ID, 2)
	if err != nil {
		t.Fatalf("ListRecentTransactions failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d transactions, want 2", len(recent))
	}
	if recent[0].Amount.Cents != 500 || recent[1].Amount.Cents != 400 {
		t.Errorf("got amounts %d,%d, want newest first 500,400", recent[0].Amount.Cents, recent[1].Amount.Cents)
	}
}

func TestListDueChargesInclusive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	p := mustCreatePerson(t, repo, "Alex")
	now := time.UnixMilli(time.Now().UnixMilli())

	mk := func(due time.Time) core.RecurringCharge {
		rc, err := repo.CreateRecurringCharge(ctx, core.RecurringCharge{
			PersonID: p.ID, Amount: core.Money{Cents: 100}, Description: "sub", Type: core.Debt,
			FrequencyDays: 7, NextDue: due, CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("CreateRecurringCharge failed: %v", err)
		}
		return rc
	}

	past := mk(now.Add(-24 * time.Hour))
	exact := mk(now)
	future := mk(now.Add(24 * time.Hour))

	due, err := repo.ListDueCharges(ctx, now)
	if err != nil {
		t.Fatalf("ListDueCharges failed: %v", err)
	}
	ids := map[int64]bool{}
	for _, rc := range due {
		ids[rc.ID] = true
	}
	if !ids[past.ID] || !ids[exact.ID] {
		t.Errorf("past and exactly-due charges must be listed, got %v", ids)
	}
	if ids[future.ID] {
		t.Error("future charge must not be listed")
	}
}

func TestClearAllAndReplaceAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	p := mustCreatePerson(t, repo, "Alex")
	if _, err := repo.AppendTransaction(ctx, core.Transaction{
		PersonID: p.ID, Amount: core.Money{Cents: 100}, Description: "x", Type: core.Debt, Date: time.Now(),
	}); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}

	t.Run("clear wipes everything", func(t *testing.T) {
		if err := repo.ClearAll(ctx); err != nil {
			t.Fatalf("ClearAll failed: %v", err)
		}
		persons, _ := repo.ListPersons(ctx)
		txs, _ := repo.ListAllTransactions(ctx)
		if len(persons) != 0 || len(txs) != 0 {
			t.Errorf("store not empty after clear: %d persons, %d transactions", len(persons), len(txs))
		}
	})

	snapshot := core.BackupSnapshot{
		Version:    core.BackupVersion,
		ExportDate: now,
		Persons: []core.PersonRecord{
			{ID: 1, Name: "Alex", BalanceCents: 5000, CreatedAt: now},
			{ID: 2, Name: "Sam", BalanceCents: -1000, CreatedAt: now},
		},
		Transactions: []core.TransactionRecord{
			{ID: 1, PersonID: 1, AmountCents: 5000, Description: "lunch", Type: core.Debt, Date: now},
			{ID: 2, PersonID: 2, AmountCents: -1000, Description: "repay", Type: core.Payment, Date: now},
		},
		RecurringCharges: []core.RecurringChargeRecord{
			{ID: 1, PersonID: 1, AmountCents: 999, Description: "sub", Type: core.Debt, FrequencyDays: 30, NextDue: now, CreatedAt: now},
		},
	}

	t.Run("replace installs snapshot", func(t *testing.T) {
		if err := repo.ReplaceAll(ctx, snapshot); err != nil {
			t.Fatalf("ReplaceAll failed: %v", err)
		}
		persons, _ := repo.ListPersons(ctx)
		txs, _ := repo.ListAllTransactions(ctx)
		charges, _ := repo.ListAllCharges(ctx)
		if len(persons) != 2 || len(txs) != 2 || len(charges) != 1 {
			t.Errorf("got %d/%d/%d records, want 2/2/1", len(persons), len(txs), len(charges))
		}
		if got := balanceOf(t, repo, 1); got != 5000 {
			t.Errorf("restored balance = %d, want 5000", got)
		}
	})

	t.Run("failed replace leaves prior state", func(t *testing.T) {
		bad := snapshot
		// Transaction referencing a person that is not in the snapshot
		// violates the foreign key and must roll the whole restore back.
		bad.Transactions = append(bad.Transactions, core.TransactionRecord{
			ID: 99, PersonID: 555, AmountCents: 100, Description: "orphan", Type: core.Debt, Date: now,
		})
		if err := repo.ReplaceAll(ctx, bad); err == nil {
			t.Fatal("ReplaceAll with orphan transaction should fail")
		}
		persons, _ := repo.ListPersons(ctx)
		txs, _ := repo.ListAllTransactions(ctx)
		if len(persons) != 2 || len(txs) != 2 {
			t.Errorf("store changed after failed restore: %d persons, %d transactions", len(persons), len(txs))
		}
	})
}

func TestWatchDeliversChanges(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ch := repo.Watch(16)
	defer repo.Unwatch(ch)

	p := mustCreatePerson(t, repo, "Alex")
	if _, err := repo.AppendTransaction(ctx, core.Transaction{
		PersonID: p.ID, Amount: core.Money{Cents: 100}, Description: "x", Type: core.Debt, Date: time.Now(),
	}); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}

	want := []Change{
		{Entity: EntityPerson, Op: OpCreate, PersonID: p.ID},
		{Entity: EntityTransaction, Op: OpCreate, PersonID: p.ID},
	}
	for i, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Errorf("change[%d] = %+v, want %+v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for change %d", i)
		}
	}
}
