// internal/bank/ledger.go

// Package bank 定義核心帳本邏輯：原子的入帳、扣款、轉帳、錢包間移轉與交易日誌。
//
// 並行模型：
//   - 每次異動為一個工作階段 (Update)：鎖住涉及的帳戶 → 執行規則 → 提交。
//   - 提交時在全域日誌鎖下追加交易紀錄、更新 total_wealth 並寫入儲存層；
//     寫入失敗則回滾所有被觸及的帳戶與日誌，回傳 ErrStorage。
//   - 不相關帳戶的驗證與計算可並行；只有日誌追加與落盤是序列化的單一序列。
//
// 金額以 int64 儲存，避免浮點誤差。
package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"economy/internal/storage"
)

// DefaultStartingBalance is the cash a newly materialized account receives.
const DefaultStartingBalance int64 = 1000

// ErrNotLocked 代表工作階段存取了未在 Update 宣告的帳戶（程式錯誤）。
var ErrNotLocked = errors.New("bank: account not locked by this transaction")

// Ledger 為聚合根 (Aggregate Root)：持有帳戶表、交易日誌與累計財富。
type Ledger struct {
	reg      *Registry
	store    storage.Store
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	starting int64

	mu          sync.Mutex
	totalWealth int64
	log         []Transaction
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides transaction id generation.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.newID = fn
		}
	}
}

// WithStartingBalance sets the initial cash of new accounts.
func WithStartingBalance(n int64) Option {
	return func(l *Ledger) {
		if n >= 0 {
			l.starting = n
		}
	}
}

// Open 由儲存層載入狀態並建立 Ledger。
// 載入失敗或 total_wealth 與日誌總和不一致皆為致命錯誤。
func Open(ctx context.Context, store storage.Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
		starting: DefaultStartingBalance,
	}
	for _, opt := range opts {
		opt(l)
	}

	st, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}

	l.reg = NewRegistry(l.starting)
	ids := make([]string, 0, len(st.Accounts))
	for id := range st.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec := st.Accounts[id]
		if rec.Cash < 0 || rec.Bank < 0 {
			return nil, fmt.Errorf("%w: account %s has a negative purse", ErrCorrupt, id)
		}
		l.reg.restore(accountFromRecord(id, rec))
	}

	var sum int64
	l.log = make([]Transaction, 0, len(st.Bank.Transactions))
	for _, r := range st.Bank.Transactions {
		l.log = append(l.log, transactionFromRecord(r))
		sum += r.Amount
	}
	if sum != st.Bank.TotalWealth {
		return nil, fmt.Errorf("%w: total_wealth=%d but transactions sum to %d", ErrCorrupt, st.Bank.TotalWealth, sum)
	}
	l.totalWealth = st.Bank.TotalWealth

	l.logger.Info("ledger loaded", "accounts", len(ids), "transactions", len(l.log), "total_wealth", l.totalWealth)
	return l, nil
}

// Close 關閉儲存層。每次異動都已落盤，此處不需額外 flush。
func (l *Ledger) Close() error {
	return l.store.Close()
}

// Update 在涉及帳戶的獨占鎖下執行 fn，成功後提交。
//
// fn 回傳錯誤時所有帳戶回到進入前的狀態，本次才建立的帳戶自帳戶表移除；
// 提交失敗時亦同，並回傳包裝 ErrStorage 的錯誤。
// fn 內不得呼叫 Accounts / Leaderboard（會等待本工作階段結束）。
func (l *Ledger) Update(ctx context.Context, ids []string, fn func(tx *Tx) error) error {
	if len(ids) == 0 {
		return fmt.Errorf("bank: update requires at least one account")
	}
	for _, id := range ids {
		if !ValidID(id) {
			return Fail(KindInvalidTarget)
		}
	}
	lk := l.reg.lock(ids...)
	defer l.reg.unlock(lk)

	tx := &Tx{
		l:     l,
		lk:    lk,
		now:   l.now().UTC(),
		orig:  make(map[string]Account, len(lk.entries)),
		dirty: make(map[string]bool),
	}
	for id, e := range lk.entries {
		tx.orig[id] = e.acct.clone()
	}

	if err := fn(tx); err != nil {
		tx.rollback()
		l.reg.discard(lk)
		return err
	}
	if err := l.commit(ctx, tx); err != nil {
		tx.rollback()
		l.reg.discard(lk)
		return err
	}
	return nil
}

func (l *Ledger) commit(ctx context.Context, tx *Tx) error {
	cs := storage.Changeset{Accounts: make(map[string]storage.AccountRecord)}
	for id, e := range tx.lk.entries {
		if tx.dirty[id] || tx.lk.created[id] {
			cs.Accounts[id] = accountToRecord(e.acct)
		}
	}
	if len(tx.records) > 0 {
		cs.Appended = make([]storage.TransactionRecord, len(tx.records))
		for i, r := range tx.records {
			cs.Appended[i] = transactionToRecord(r)
		}
	}
	if cs.Empty() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	cs.TotalWealth = l.totalWealth + tx.delta
	if err := l.store.Commit(ctx, cs); err != nil {
		l.logger.Error("ledger commit failed, rolling back", "error", err, "records", len(tx.records))
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	for id := range cs.Accounts {
		tx.lk.entries[id].persisted = true
	}
	l.log = append(l.log, tx.records...)
	l.totalWealth = cs.TotalWealth
	for _, r := range tx.records {
		l.logger.Debug("ledger commit", "id", r.ID, "amount", r.Amount, "description", r.Description)
	}
	return nil
}

// Credit 入帳至現金。
func (l *Ledger) Credit(ctx context.Context, id string, amt int64, desc string) (Account, error) {
	var out Account
	err := l.Update(ctx, []string{id}, func(tx *Tx) error {
		if err := tx.Credit(id, amt, desc); err != nil {
			return err
		}
		out, _ = tx.Account(id)
		return nil
	})
	return out, err
}

// Debit 自現金扣款；金額超過現金時回傳 InsufficientFunds 且餘額不變。
func (l *Ledger) Debit(ctx context.Context, id string, amt int64, desc string) (Account, error) {
	var out Account
	err := l.Update(ctx, []string{id}, func(tx *Tx) error {
		if err := tx.Debit(id, amt, desc); err != nil {
			return err
		}
		out, _ = tx.Account(id)
		return nil
	})
	return out, err
}

// Transfer 為原子轉帳：兩端帳戶在同一工作階段內同時變動。
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amt int64, desc string) (from, to Account, err error) {
	if fromID == toID {
		return Account{}, Account{}, Fail(KindSelfTarget)
	}
	err = l.Update(ctx, []string{fromID, toID}, func(tx *Tx) error {
		if err := tx.Transfer(fromID, toID, amt, desc); err != nil {
			return err
		}
		from, _ = tx.Account(fromID)
		to, _ = tx.Account(toID)
		return nil
	})
	return from, to, err
}

// Move 在同一帳戶的兩個錢包之間移轉（存款 / 提款）。
func (l *Ledger) Move(ctx context.Context, id string, amt int64, src, dst Purse, desc string) (Account, error) {
	var out Account
	err := l.Update(ctx, []string{id}, func(tx *Tx) error {
		if err := tx.Move(id, amt, src, dst, desc); err != nil {
			return err
		}
		out, _ = tx.Account(id)
		return nil
	})
	return out, err
}

// Account 回傳帳戶快照；尚未建立的帳戶以初始餘額呈現，但不會建立。
func (l *Ledger) Account(id string) Account {
	return l.reg.Peek(id)
}

// Lookup 回傳已存在的帳戶，不會建立新帳戶。
func (l *Ledger) Lookup(id string) (Account, bool) {
	return l.reg.Get(id)
}

// Accounts 回傳所有帳戶的一致快照。
func (l *Ledger) Accounts() []Account {
	return l.reg.Snapshot()
}

// Leaderboard 回傳前 n 名。
func (l *Ledger) Leaderboard(n int) []Ranked {
	return Rank(l.reg.Snapshot(), n)
}

// TotalWealth 回傳目前累計財富。
func (l *Ledger) TotalWealth() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalWealth
}

// Transactions 回傳交易日誌的拷貝。
func (l *Ledger) Transactions() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transaction, len(l.log))
	copy(out, l.log)
	return out
}

// Verify 檢查帳本不變量：total_wealth 等於日誌總和，且沒有負餘額。
func (l *Ledger) Verify() error {
	accounts := l.reg.Snapshot()
	for _, a := range accounts {
		if a.Cash < 0 || a.Bank < 0 {
			return fmt.Errorf("%w: account %s cash=%d bank=%d", ErrCorrupt, a.ID, a.Cash, a.Bank)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, r := range l.log {
		sum += r.Amount
	}
	if sum != l.totalWealth {
		return fmt.Errorf("%w: total_wealth=%d but transactions sum to %d", ErrCorrupt, l.totalWealth, sum)
	}
	return nil
}
