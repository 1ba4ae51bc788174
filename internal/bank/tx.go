// internal/bank/tx.go
//
// Tx 為單一工作階段內的帳本基本操作。每個操作：
//  1. 驗證金額與餘額（不變量：cash >= 0 且 bank >= 0）
//  2. 變動一或兩個帳戶
//  3. 追加恰好一筆交易紀錄並累計 total_wealth 差額
//
// 動作解析器只能透過這些操作改變餘額。

package bank

import (
	"fmt"
	"time"
)

// Tx is valid only inside the Ledger.Update callback that created it.
type Tx struct {
	l       *Ledger
	lk      *locked
	now     time.Time
	orig    map[string]Account
	dirty   map[string]bool
	records []Transaction
	delta   int64
}

// Now 回傳本工作階段的時間戳（UTC），同一工作階段內固定不變。
func (tx *Tx) Now() time.Time { return tx.now }

func (tx *Tx) entry(id string) (*entry, error) {
	e, ok := tx.lk.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotLocked, id)
	}
	return e, nil
}

// Account 回傳工作階段內帳戶的目前狀態。
func (tx *Tx) Account(id string) (Account, error) {
	e, err := tx.entry(id)
	if err != nil {
		return Account{}, err
	}
	return e.acct.clone(), nil
}

// Credit 入帳至現金。
func (tx *Tx) Credit(id string, amt int64, desc string) error {
	return tx.CreditPurse(id, PurseCash, amt, desc)
}

// CreditPurse 入帳至指定錢包；amount 必須 > 0。
func (tx *Tx) CreditPurse(id string, p Purse, amt int64, desc string) error {
	if amt <= 0 {
		return Fail(KindInvalidAmount)
	}
	if !p.Valid() {
		return Fail(KindInvalidPurse)
	}
	e, err := tx.entry(id)
	if err != nil {
		return err
	}
	e.acct.add(p, amt)
	tx.touch(id)
	tx.record(desc, amt)
	return nil
}

// Debit 自現金扣款。
func (tx *Tx) Debit(id string, amt int64, desc string) error {
	return tx.DebitPurse(id, PurseCash, amt, desc)
}

// DebitPurse 自指定錢包扣款；不足時回傳 InsufficientFunds 且不變動。
func (tx *Tx) DebitPurse(id string, p Purse, amt int64, desc string) error {
	if amt <= 0 {
		return Fail(KindInvalidAmount)
	}
	if !p.Valid() {
		return Fail(KindInvalidPurse)
	}
	e, err := tx.entry(id)
	if err != nil {
		return err
	}
	if bal := e.acct.Balance(p); amt > bal {
		return insufficient(amt, bal)
	}
	e.acct.add(p, -amt)
	tx.touch(id)
	tx.record(desc, -amt)
	return nil
}

// Transfer 將現金由 from 移到 to；對總財富的影響為 0。
func (tx *Tx) Transfer(fromID, toID string, amt int64, desc string) error {
	if fromID == toID {
		return Fail(KindSelfTarget)
	}
	if amt <= 0 {
		return Fail(KindInvalidAmount)
	}
	from, err := tx.entry(fromID)
	if err != nil {
		return err
	}
	to, err := tx.entry(toID)
	if err != nil {
		return err
	}
	if amt > from.acct.Cash {
		return insufficient(amt, from.acct.Cash)
	}
	from.acct.Cash -= amt
	to.acct.Cash += amt
	tx.touch(fromID)
	tx.touch(toID)
	tx.record(desc, 0)
	return nil
}

// Move 在同一帳戶的兩個錢包間移轉。
func (tx *Tx) Move(id string, amt int64, src, dst Purse, desc string) error {
	if !src.Valid() || !dst.Valid() || src == dst {
		return Fail(KindInvalidPurse)
	}
	if amt <= 0 {
		return Fail(KindInvalidAmount)
	}
	e, err := tx.entry(id)
	if err != nil {
		return err
	}
	if bal := e.acct.Balance(src); amt > bal {
		return insufficient(amt, bal)
	}
	e.acct.add(src, -amt)
	e.acct.add(dst, amt)
	tx.touch(id)
	tx.record(desc, 0)
	return nil
}

func (tx *Tx) setCooldown(id, gate string) error {
	e, err := tx.entry(id)
	if err != nil {
		return err
	}
	if e.acct.Cooldowns == nil {
		e.acct.Cooldowns = make(map[string]time.Time)
	}
	e.acct.Cooldowns[gate] = tx.now
	tx.touch(id)
	return nil
}

func (tx *Tx) touch(id string) { tx.dirty[id] = true }

func (tx *Tx) record(desc string, amt int64) {
	tx.records = append(tx.records, Transaction{
		ID:          tx.l.newID(),
		Time:        tx.now,
		Description: desc,
		Amount:      amt,
	})
	tx.delta += amt
}

// rollback 把所有帳戶還原為進入工作階段前的狀態。
func (tx *Tx) rollback() {
	for id, e := range tx.lk.entries {
		e.acct = tx.orig[id].clone()
	}
	tx.records = nil
	tx.delta = 0
}
