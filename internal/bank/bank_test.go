// internal/bank/bank_test.go
//
// 本檔為帳本模組的單元與並行測試。
// 覆蓋：帳戶建立冪等、入帳 / 扣款 / 轉帳 / 錢包移轉、不變量、冷卻閘門競爭、
// 儲存失敗回滾、重新載入與排行榜。

package bank

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"economy/internal/storage"
)

// memStore 為測試用的記憶體儲存，可指定下一次提交失敗。
type memStore struct {
	mu      sync.Mutex
	state   storage.State
	commits int
	fail    atomic.Bool
}

func newMemStore() *memStore {
	return &memStore{state: storage.State{
		Accounts: map[string]storage.AccountRecord{},
		Bank:     storage.BankRecord{Transactions: []storage.TransactionRecord{}},
	}}
}

func (m *memStore) Load(context.Context) (storage.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memStore) Commit(_ context.Context, cs storage.Changeset) error {
	if m.fail.Load() {
		return errors.New("disk full")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range cs.Accounts {
		m.state.Accounts[id] = r
	}
	m.state.Bank.Transactions = append(m.state.Bank.Transactions, cs.Appended...)
	m.state.Bank.TotalWealth = cs.TotalWealth
	m.commits++
	return nil
}

func (m *memStore) Close() error { return nil }

func openLedger(t *testing.T, opts ...Option) (*Ledger, *memStore) {
	t.Helper()
	st := newMemStore()
	l, err := Open(context.Background(), st, opts...)
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	return l, st
}

// TestGetOrCreateIdempotent 同一新帳戶並行建立，只發放一次初始餘額、只寫入一次。
func TestGetOrCreateIdempotent(t *testing.T) {
	l, st := openLedger(t)
	ctx := context.Background()

	if a := l.Account("new"); a.Cash != DefaultStartingBalance || l.reg.Len() != 0 {
		t.Fatalf("Account must not materialize: %+v len=%d", a, l.reg.Len())
	}

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			return l.Update(ctx, []string{"new"}, func(*Tx) error { return nil })
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	a, ok := l.Lookup("new")
	if !ok || a.Cash != DefaultStartingBalance || a.Bank != 0 {
		t.Fatalf("account=%+v ok=%v want cash=%d bank=0", a, ok, DefaultStartingBalance)
	}
	if n := l.reg.Len(); n != 1 {
		t.Fatalf("registry len=%d want 1", n)
	}
	if st.commits != 1 {
		t.Fatalf("commits=%d want 1", st.commits)
	}
}

// TestCreditDebit 驗證入帳與扣款，以及透支拒絕。
func TestCreditDebit(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	a, err := l.Credit(ctx, "a", 250, "bonus a")
	if err != nil {
		t.Fatal(err)
	}
	if a.Cash != 1250 {
		t.Fatalf("cash=%d want 1250", a.Cash)
	}

	a, err = l.Debit(ctx, "a", 50, "fee a")
	if err != nil {
		t.Fatal(err)
	}
	if a.Cash != 1200 {
		t.Fatalf("cash=%d want 1200", a.Cash)
	}

	// ❌ 透支：餘額不變
	_, err = l.Debit(ctx, "a", 5000, "overdraft a")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	f, ok := AsFailure(err)
	if !ok || f.Required != 5000 || f.Available != 1200 {
		t.Fatalf("failure=%+v", f)
	}
	if got := l.Account("a").Cash; got != 1200 {
		t.Fatalf("cash after rejected debit=%d want 1200", got)
	}

	// ❌ 非正數金額
	for _, amt := range []int64{0, -5} {
		if _, err := l.Credit(ctx, "a", amt, "x"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("credit amt=%d want ErrInvalidAmount, got %v", amt, err)
		}
		if _, err := l.Debit(ctx, "a", amt, "x"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("debit amt=%d want ErrInvalidAmount, got %v", amt, err)
		}
	}

	if got := l.TotalWealth(); got != 200 {
		t.Fatalf("total_wealth=%d want 200", got)
	}
	if n := len(l.Transactions()); n != 2 {
		t.Fatalf("transactions=%d want 2", n)
	}
}

// TestTransfer 驗證轉帳：正常、同帳戶、餘額不足。
func TestTransfer(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	from, to, err := l.Transfer(ctx, "a", "b", 200, "pay a->b")
	if err != nil {
		t.Fatal(err)
	}
	if from.Cash != 800 || to.Cash != 1200 {
		t.Fatalf("from=%d to=%d", from.Cash, to.Cash)
	}
	if l.TotalWealth() != 0 {
		t.Fatalf("transfer must be wealth-neutral, total=%d", l.TotalWealth())
	}
	txs := l.Transactions()
	if len(txs) != 1 || txs[0].Amount != 0 || txs[0].ID == "" || txs[0].Time.IsZero() {
		t.Fatalf("transactions=%+v", txs)
	}

	if _, _, err := l.Transfer(ctx, "a", "a", 1, "self"); !errors.Is(err, ErrSelfTarget) {
		t.Fatalf("want ErrSelfTarget, got %v", err)
	}
	if _, _, err := l.Transfer(ctx, "a", "b", 99999, "too much"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if a, b := l.Account("a").Cash, l.Account("b").Cash; a != 800 || b != 1200 {
		t.Fatalf("balances changed by failed transfer: a=%d b=%d", a, b)
	}
}

// TestMoveBetweenPurses 存款 500 後全部提領。
func TestMoveBetweenPurses(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	a, err := l.Move(ctx, "a", 500, PurseCash, PurseBank, "deposit a")
	if err != nil {
		t.Fatal(err)
	}
	if a.Cash != 500 || a.Bank != 500 {
		t.Fatalf("after deposit: %+v", a)
	}
	a, err = l.Move(ctx, "a", a.Bank, PurseBank, PurseCash, "withdraw a")
	if err != nil {
		t.Fatal(err)
	}
	if a.Cash != 1000 || a.Bank != 0 {
		t.Fatalf("after withdraw: %+v", a)
	}
	if _, err := l.Move(ctx, "a", 1, PurseBank, PurseCash, "withdraw a"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if _, err := l.Move(ctx, "a", 1, PurseCash, PurseCash, "noop"); !errors.Is(err, ErrInvalidPurse) {
		t.Fatalf("want ErrInvalidPurse, got %v", err)
	}
}

// TestConcurrentOppositeTransfers 雙向並行轉帳不可死結，總額不變且無負餘額。
func TestConcurrentOppositeTransfers(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	const n = 200
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, _, err := l.Transfer(ctx, "a", "b", 1, "a->b")
			return err
		})
		g.Go(func() error {
			_, _, err := l.Transfer(ctx, "b", "a", 1, "b->a")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	a, b := l.Account("a"), l.Account("b")
	if a.Cash < 0 || b.Cash < 0 {
		t.Fatalf("negative balance: a=%d b=%d", a.Cash, b.Cash)
	}
	if a.Cash+b.Cash != 2000 {
		t.Fatalf("total=%d want 2000", a.Cash+b.Cash)
	}
	if err := l.Verify(); err != nil {
		t.Fatal(err)
	}
}

// TestConcurrentDebitsNeverOverdraw 並行扣款不可讓現金變為負數。
func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()

	var ok atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, "a", 100, "spend"); err == nil {
				ok.Add(1)
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 10 {
		t.Fatalf("successful debits=%d want 10", ok.Load())
	}
	if c := l.Account("a").Cash; c != 0 {
		t.Fatalf("cash=%d want 0", c)
	}
}

// TestSnapshotNeverSeesHalfTransfer 快照期間看不到轉帳做到一半的狀態。
func TestSnapshotNeverSeesHalfTransfer(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()
	if err := l.Update(ctx, []string{"a", "b"}, func(*Tx) error { return nil }); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(done)
		for i := 0; i < 300; i++ {
			if _, _, err := l.Transfer(ctx, "a", "b", 1, "a->b"); err != nil {
				return err
			}
			if _, _, err := l.Transfer(ctx, "b", "a", 1, "b->a"); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-done:
				return nil
			default:
			}
			var sum int64
			for _, a := range l.Accounts() {
				sum += a.Total()
			}
			if sum != 2000 {
				return fmt.Errorf("snapshot total=%d want 2000", sum)
			}
		}
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

// TestCooldownDoubleClaimRace 兩個並行請求只能有一個通過閘門。
func TestCooldownDoubleClaimRace(t *testing.T) {
	l, _ := openLedger(t)
	ctx := context.Background()
	gate := Gate{Name: GateDaily, Interval: 24 * time.Hour}

	var granted atomic.Int64
	var blocked atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Update(ctx, []string{"a"}, func(tx *Tx) error {
				if err := gate.TryConsume(tx, "a"); err != nil {
					return err
				}
				return tx.Credit("a", 100, "daily a")
			})
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, ErrCooldownActive):
				blocked.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 1 || blocked.Load() != 19 {
		t.Fatalf("granted=%d blocked=%d", granted.Load(), blocked.Load())
	}
	if c := l.Account("a").Cash; c != 1100 {
		t.Fatalf("cash=%d want 1100", c)
	}
}

// TestGateRemainingAndReopen 驗證剩餘時間與到期後重新開啟。
func TestGateRemainingAndReopen(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	l, _ := openLedger(t, WithClock(clock))
	ctx := context.Background()
	gate := Gate{Name: GateWork, Interval: 2 * time.Hour}
	consume := func() error {
		return l.Update(ctx, []string{"a"}, func(tx *Tx) error { return gate.TryConsume(tx, "a") })
	}

	if err := consume(); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Minute)
	err := consume()
	f, ok := AsFailure(err)
	if !ok || f.Kind != KindCooldownActive || f.Remaining != 90*time.Minute {
		t.Fatalf("want cooldown 90m, got %v", err)
	}
	now = now.Add(90 * time.Minute)
	if err := consume(); err != nil {
		t.Fatalf("gate should reopen: %v", err)
	}
}

// TestStorageFailureRollsBack 儲存失敗時，記憶體狀態、日誌與閘門都必須回滾。
func TestStorageFailureRollsBack(t *testing.T) {
	l, st := openLedger(t)
	ctx := context.Background()
	gate := Gate{Name: GateDaily, Interval: 24 * time.Hour}
	_, _ = l.Credit(ctx, "a", 1, "seed")

	st.fail.Store(true)
	err := l.Update(ctx, []string{"a", "b"}, func(tx *Tx) error {
		if err := gate.TryConsume(tx, "a"); err != nil {
			return err
		}
		if err := tx.Credit("a", 500, "daily a"); err != nil {
			return err
		}
		return tx.Transfer("a", "b", 300, "pay a->b")
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("want ErrStorage, got %v", err)
	}

	if a := l.Account("a"); a.Cash != 1001 || len(a.Cooldowns) != 0 {
		t.Fatalf("a not rolled back: %+v", a)
	}
	if b := l.Account("b"); b.Cash != DefaultStartingBalance {
		t.Fatalf("b not rolled back: %+v", b)
	}
	if _, ok := l.Lookup("b"); ok {
		t.Fatal("b was never stored and must not stay in memory")
	}
	if l.TotalWealth() != 1 || len(l.Transactions()) != 1 {
		t.Fatalf("log not rolled back: total=%d n=%d", l.TotalWealth(), len(l.Transactions()))
	}

	// 儲存恢復後可以正常領取
	st.fail.Store(false)
	if err := l.Update(ctx, []string{"a"}, func(tx *Tx) error { return gate.TryConsume(tx, "a") }); err != nil {
		t.Fatalf("gate should still be open after rollback: %v", err)
	}
}

// TestCreatedAccountPersistedOnce 失敗工作階段不留下帳戶；下一次成功的工作階段才建立並寫入。
func TestCreatedAccountPersistedOnce(t *testing.T) {
	l, st := openLedger(t)
	ctx := context.Background()

	err := l.Update(ctx, []string{"c"}, func(tx *Tx) error { return tx.Debit("c", 5000, "too much") })
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if _, ok := st.state.Accounts["c"]; ok {
		t.Fatal("rejected session must not persist")
	}
	if _, ok := l.Lookup("c"); ok || l.reg.Len() != 0 || len(l.Accounts()) != 0 || len(l.Leaderboard(10)) != 0 {
		t.Fatalf("rejected session left an account in memory: len=%d", l.reg.Len())
	}

	if err := l.Update(ctx, []string{"c"}, func(*Tx) error { return nil }); err != nil {
		t.Fatalf("Update err=%v", err)
	}
	if r, ok := st.state.Accounts["c"]; !ok || r.Cash != DefaultStartingBalance {
		t.Fatalf("created account not persisted: %+v", st.state.Accounts)
	}

	commits := st.commits
	if err := l.Update(ctx, []string{"c"}, func(*Tx) error { return nil }); err != nil {
		t.Fatalf("Update err=%v", err)
	}
	if st.commits != commits {
		t.Fatal("no-op session on a stored account should not commit")
	}
}

// TestFailedSessionsRaceWithCreation 失敗與成功的工作階段競爭同一新帳戶時，
// 記憶體與儲存層最後仍一致，初始餘額只發放一次。
func TestFailedSessionsRaceWithCreation(t *testing.T) {
	l, st := openLedger(t)
	ctx := context.Background()
	errReject := errors.New("rejected")

	var g errgroup.Group
	for i := 0; i < 100; i++ {
		g.Go(func() error {
			err := l.Update(ctx, []string{"a", "x"}, func(tx *Tx) error {
				if i%2 == 0 {
					return errReject
				}
				return tx.Transfer("a", "x", 1, "a->x")
			})
			if err != nil && !errors.Is(err, errReject) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	x, ok := l.Lookup("x")
	if !ok || x.Cash != DefaultStartingBalance+50 {
		t.Fatalf("x=%+v ok=%v", x, ok)
	}
	if r := st.state.Accounts["x"]; r.Cash != x.Cash {
		t.Fatalf("stored x cash=%d memory=%d", r.Cash, x.Cash)
	}
	if n := l.reg.Len(); n != 2 {
		t.Fatalf("registry len=%d want 2", n)
	}
}

// TestUpdateRejectsInvalidIDs 空白 id 與保留鍵不能成為帳戶。
func TestUpdateRejectsInvalidIDs(t *testing.T) {
	l, st := openLedger(t)
	for _, id := range []string{"", "  ", storage.MetaKey} {
		err := l.Update(context.Background(), []string{"a", id}, func(tx *Tx) error {
			return tx.Credit(id, 1, "bad")
		})
		if !errors.Is(err, ErrInvalidTarget) {
			t.Fatalf("id %q: want ErrInvalidTarget, got %v", id, err)
		}
	}
	if l.reg.Len() != 0 || st.commits != 0 {
		t.Fatalf("len=%d commits=%d", l.reg.Len(), st.commits)
	}
}

// TestUpdateRejectsUnlockedAccount 工作階段不可觸及未宣告的帳戶。
func TestUpdateRejectsUnlockedAccount(t *testing.T) {
	l, _ := openLedger(t)
	err := l.Update(context.Background(), []string{"a"}, func(tx *Tx) error {
		return tx.Credit("b", 1, "sneaky")
	})
	if !errors.Is(err, ErrNotLocked) {
		t.Fatalf("want ErrNotLocked, got %v", err)
	}
}

// TestReopenRestoresState 經 JSON 儲存重新載入後，餘額、閘門與日誌一致。
func TestReopenRestoresState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	open := func() *Ledger {
		st, err := storage.NewJSONStore(filepath.Join(dir, "accounts.json"), filepath.Join(dir, "bank.json"))
		if err != nil {
			t.Fatal(err)
		}
		l, err := Open(ctx, st)
		if err != nil {
			t.Fatal(err)
		}
		return l
	}

	l := open()
	gate := Gate{Name: GateDaily, Interval: 24 * time.Hour}
	if err := l.Update(ctx, []string{"a"}, func(tx *Tx) error {
		if err := gate.TryConsume(tx, "a"); err != nil {
			return err
		}
		return tx.Credit("a", 700, "daily a")
	}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Transfer(ctx, "a", "b", 200, "pay a->b"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Move(ctx, "b", 1200, PurseCash, PurseBank, "deposit b"); err != nil {
		t.Fatal(err)
	}
	_ = l.Close()

	l2 := open()
	defer l2.Close()
	a, _ := l2.Lookup("a")
	b, _ := l2.Lookup("b")
	if a.Cash != 1500 || b.Cash != 0 || b.Bank != 1200 {
		t.Fatalf("restored a=%+v b=%+v", a, b)
	}
	if _, ok := a.LastClaim(GateDaily); !ok {
		t.Fatal("daily gate lost across restart")
	}
	if l2.TotalWealth() != 700 || len(l2.Transactions()) != 3 {
		t.Fatalf("total=%d n=%d", l2.TotalWealth(), len(l2.Transactions()))
	}
	if err := l2.Verify(); err != nil {
		t.Fatal(err)
	}
}

// TestReopenDetectsStaleBankFile 帳戶檔含有銀行檔沒有的提交時拒絕啟動。
func TestReopenDetectsStaleBankFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ap, bp := filepath.Join(dir, "accounts.json"), filepath.Join(dir, "bank.json")
	open := func() (*Ledger, error) {
		st, err := storage.NewJSONStore(ap, bp)
		if err != nil {
			t.Fatal(err)
		}
		return Open(ctx, st)
	}

	l, err := open()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Credit(ctx, "alice", 1, "one"); err != nil {
		t.Fatal(err)
	}
	oldBank, err := os.ReadFile(bp)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Credit(ctx, "alice", 500, "two"); err != nil {
		t.Fatal(err)
	}
	_ = l.Close()

	if err := os.WriteFile(bp, oldBank, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := open(); !errors.Is(err, storage.ErrCorrupt) {
		t.Fatalf("want storage.ErrCorrupt, got %v", err)
	}
}

// TestOpenRejectsInconsistentTotal total_wealth 與日誌不一致視為損毀。
func TestOpenRejectsInconsistentTotal(t *testing.T) {
	st := newMemStore()
	st.state.Bank = storage.BankRecord{
		TotalWealth:  10,
		Transactions: []storage.TransactionRecord{{Description: "x", Amount: 3}},
	}
	if _, err := Open(context.Background(), st); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("want ErrCorrupt, got %v", err)
	}
}

// TestRank 驗證排行榜過濾、排序與穩定的同分順序。
func TestRank(t *testing.T) {
	accounts := []Account{
		{ID: "zero", Cash: 0, Bank: 0},
		{ID: "first-300", Cash: 100, Bank: 200},
		{ID: "rich", Cash: 5000},
		{ID: "second-300", Cash: 300},
		{ID: "poor", Cash: 1},
	}
	got := Rank(accounts, 3)
	want := []string{"rich", "first-300", "second-300"}
	if len(got) != len(want) {
		t.Fatalf("len=%d want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id || got[i].Rank != i+1 {
			t.Fatalf("row %d = %+v want %s", i, got[i], id)
		}
	}

	if all := Rank(accounts, 0); len(all) != 4 {
		t.Fatalf("default size should keep 4 non-zero accounts, got %d", len(all))
	}
}
