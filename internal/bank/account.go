// Package bank 定義核心領域模型與帳本規則。
// 本檔定義 Account 與交易紀錄結構，不含任何 HTTP 或儲存細節。

package bank

import (
	"strings"
	"time"

	"economy/internal/storage"
)

// Purse names one of the two balances of an account.
type Purse string

const (
	PurseCash Purse = "cash"
	PurseBank Purse = "bank"
)

// Valid reports whether p names a known purse.
func (p Purse) Valid() bool {
	return p == PurseCash || p == PurseBank
}

// ValidID reports whether id can name an account.
func ValidID(id string) bool {
	return strings.TrimSpace(id) != "" && id != storage.MetaKey
}

// Account represents a ledger account.
type Account struct {
	ID        string               `json:"id"`
	Cash      int64                `json:"cash"`
	Bank      int64                `json:"bank"`
	Cooldowns map[string]time.Time `json:"cooldowns,omitempty"`
}

// Total 回傳現金與存款之和。
func (a Account) Total() int64 { return a.Cash + a.Bank }

// Balance 回傳指定錢包的餘額。
func (a Account) Balance(p Purse) int64 {
	if p == PurseBank {
		return a.Bank
	}
	return a.Cash
}

// LastClaim 回傳指定閘門最後一次成功消耗的時間。
func (a Account) LastClaim(gate string) (time.Time, bool) {
	t, ok := a.Cooldowns[gate]
	return t, ok
}

func (a *Account) add(p Purse, amt int64) {
	if p == PurseBank {
		a.Bank += amt
		return
	}
	a.Cash += amt
}

// clone 回傳深拷貝，避免外部透過 map 改寫內部狀態。
func (a Account) clone() Account {
	cp := a
	if a.Cooldowns != nil {
		cp.Cooldowns = make(map[string]time.Time, len(a.Cooldowns))
		for k, v := range a.Cooldowns {
			cp.Cooldowns[k] = v
		}
	}
	return cp
}

// Transaction represents one append-only audit record.
type Transaction struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
}

// Gate names persisted in dedicated account fields.
const (
	GateDaily = "daily"
	GateWork  = "work"
)

func accountToRecord(a Account) storage.AccountRecord {
	r := storage.AccountRecord{Cash: a.Cash, Bank: a.Bank}
	for name, t := range a.Cooldowns {
		t := t
		switch name {
		case GateDaily:
			r.LastDaily = &t
		case GateWork:
			r.LastWork = &t
		default:
			if r.Cooldowns == nil {
				r.Cooldowns = make(map[string]time.Time)
			}
			r.Cooldowns[name] = t
		}
	}
	return r
}

func accountFromRecord(id string, r storage.AccountRecord) Account {
	a := Account{ID: id, Cash: r.Cash, Bank: r.Bank}
	set := func(name string, t time.Time) {
		if a.Cooldowns == nil {
			a.Cooldowns = make(map[string]time.Time)
		}
		a.Cooldowns[name] = t
	}
	if r.LastDaily != nil {
		set(GateDaily, *r.LastDaily)
	}
	if r.LastWork != nil {
		set(GateWork, *r.LastWork)
	}
	for name, t := range r.Cooldowns {
		set(name, t)
	}
	return a
}

func transactionToRecord(t Transaction) storage.TransactionRecord {
	return storage.TransactionRecord{ID: t.ID, Timestamp: t.Time, Description: t.Description, Amount: t.Amount}
}

func transactionFromRecord(r storage.TransactionRecord) Transaction {
	return Transaction{ID: r.ID, Time: r.Timestamp, Description: r.Description, Amount: r.Amount}
}
