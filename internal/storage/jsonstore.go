// internal/storage/jsonstore.go
//
// 提供 JSON 快照的持久化實作：帳戶表與銀行狀態各自一個檔案。
// 每次提交皆以完整快照覆寫，採「原子寫入」策略：
// 先寫入 .tmp 檔並 fsync，再以 rename() 取代原檔，寫入中斷時原檔不會損壞。
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore keeps the last committed state in memory and rewrites both
// files on every commit.
//
// 兩個檔案無法一次 rename，因此以世代號 (generation) 串起一次提交：
//  1. 把目前已提交的帳戶表寫到 accounts.json.prev（舊世代）
//  2. 寫入 accounts.json（新世代）
//  3. 寫入 bank.json（新世代），提交點
//  4. 刪除 .prev
//
// 載入時若 accounts.json 比 bank.json 新一代，代表在 2 與 3 之間中斷，
// 以 .prev 還原帳戶表；其他世代不一致一律回報 ErrCorrupt。
type JSONStore struct {
	mu           sync.Mutex
	accountsPath string
	bankPath     string
	prevPath     string
	state        State
	generation   int64
	loaded       bool

	// rename 預設為 os.Rename；測試可替換以模擬中途當機。
	rename func(oldpath, newpath string) error
}

// NewJSONStore 建立 JSON 儲存；檔案不存在時於第一次提交才建立。
func NewJSONStore(accountsPath, bankPath string) (*JSONStore, error) {
	if accountsPath == "" || bankPath == "" {
		return nil, fmt.Errorf("storage: json paths are required")
	}
	for _, p := range []string{accountsPath, bankPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return &JSONStore{
		accountsPath: accountsPath,
		bankPath:     bankPath,
		prevPath:     accountsPath + ".prev",
		rename:       os.Rename,
	}, nil
}

// Load 讀取兩份快照；檔案不存在時回傳預設值，格式錯誤或世代無法對齊則回傳 ErrCorrupt。
func (s *JSONStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return State{}, err
	}
	return cloneState(s.state), nil
}

func (s *JSONStore) loadLocked() error {
	var (
		accounts accountsFile
		bank     bankFile
	)
	if _, err := readJSON(s.accountsPath, &accounts); err != nil {
		return err
	}
	if _, err := readJSON(s.bankPath, &bank); err != nil {
		return err
	}

	switch ag, bg := accounts.Meta.Generation, bank.Meta.Generation; {
	case ag == bg:
		// 提交完整；殘留的 .prev 來自已完成的提交。
		if err := removeIfExists(s.prevPath); err != nil {
			return err
		}
	case ag == bg+1:
		var prev accountsFile
		found, err := readJSON(s.prevPath, &prev)
		if err != nil {
			return err
		}
		if !found || prev.Meta.Generation != bg {
			return fmt.Errorf("%w: accounts generation %d ahead of bank generation %d without a rollback snapshot", ErrCorrupt, ag, bg)
		}
		// 上次提交在寫入 bank.json 前中斷：還原帳戶表。
		if err := s.writeJSONAtomic(s.accountsPath, prev); err != nil {
			return fmt.Errorf("restore accounts: %w", err)
		}
		if err := removeIfExists(s.prevPath); err != nil {
			return err
		}
		accounts = prev
	default:
		return fmt.Errorf("%w: accounts generation %d does not match bank generation %d", ErrCorrupt, ag, bg)
	}

	st := State{Accounts: accounts.Accounts, Bank: bank.BankRecord}
	if st.Accounts == nil {
		st.Accounts = make(map[string]AccountRecord)
	}
	if st.Bank.Transactions == nil {
		st.Bank.Transactions = []TransactionRecord{}
	}
	s.state = st
	s.generation = bank.Meta.Generation
	s.loaded = true
	return nil
}

// Commit 套用增量並覆寫兩份完整快照。
// 任一檔案寫入失敗時，記憶體中的已提交狀態保持不變。
func (s *JSONStore) Commit(ctx context.Context, cs Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		if err := s.loadLocked(); err != nil {
			return err
		}
	}

	accounts := make(map[string]AccountRecord, len(s.state.Accounts)+len(cs.Accounts))
	for id, r := range s.state.Accounts {
		accounts[id] = r
	}
	for id, r := range cs.Accounts {
		accounts[id] = cloneRecord(r)
	}
	bank := BankRecord{
		TotalWealth:  cs.TotalWealth,
		Transactions: append(s.state.Bank.Transactions[:len(s.state.Bank.Transactions):len(s.state.Bank.Transactions)], cs.Appended...),
	}

	prev := accountsFile{Meta: newMeta(s.generation), Accounts: s.state.Accounts}
	next := newMeta(s.generation + 1)

	if err := s.writeJSONAtomic(s.prevPath, prev); err != nil {
		return fmt.Errorf("write rollback snapshot: %w", err)
	}
	if err := s.writeJSONAtomic(s.accountsPath, accountsFile{Meta: next, Accounts: accounts}); err != nil {
		return fmt.Errorf("write accounts: %w", err)
	}
	if err := s.writeJSONAtomic(s.bankPath, bankFile{Meta: next, BankRecord: bank}); err != nil {
		// 銀行狀態寫入失敗：還原帳戶檔；還原也失敗時保留 .prev 給下次載入。
		if rerr := s.writeJSONAtomic(s.accountsPath, prev); rerr != nil {
			return fmt.Errorf("write bank: %w (restore accounts: %v)", err, rerr)
		}
		_ = removeIfExists(s.prevPath)
		return fmt.Errorf("write bank: %w", err)
	}
	// bank.json 已落盤即為提交點；.prev 刪除失敗時載入會忽略它。
	_ = removeIfExists(s.prevPath)

	s.state = State{Accounts: accounts, Bank: bank}
	s.generation = next.Generation
	return nil
}

// Close 無需釋放資源；保留以符合 Store 介面。
func (s *JSONStore) Close() error { return nil }

// readJSON 回傳檔案是否存在；不存在不是錯誤。
func readJSON(path string, out any) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(out); err != nil {
		return true, fmt.Errorf("%w: decode %s: %v", ErrCorrupt, path, err)
	}
	return true, nil
}

// writeJSONAtomic 寫入 path+".tmp" 後 fsync，再 rename 取代正式檔案。
func (s *JSONStore) writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	// 使用縮排格式輸出，方便人工檢視
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return s.rename(tmp, path)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func cloneState(st State) State {
	out := State{
		Accounts: make(map[string]AccountRecord, len(st.Accounts)),
		Bank: BankRecord{
			TotalWealth:  st.Bank.TotalWealth,
			Transactions: make([]TransactionRecord, len(st.Bank.Transactions)),
		},
	}
	for id, r := range st.Accounts {
		out.Accounts[id] = cloneRecord(r)
	}
	copy(out.Bank.Transactions, st.Bank.Transactions)
	return out
}
