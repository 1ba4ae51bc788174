// internal/storage/model.go
//
// 定義「資料持久化層 (storage layer)」的結構模型。
// 兩份獨立的持久化資料：
//   - 帳戶表：account id → AccountRecord
//   - 銀行狀態：total_wealth 與 append-only 交易紀錄
//
// 本層僅定義序列化格式，不涉入任何商業規則。
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCorrupt 代表持久化資料無法解析；啟動時遇到應視為致命錯誤，不可默默丟棄歷史。
	ErrCorrupt = errors.New("storage: corrupt data")

	// ErrUnknownBackend 代表設定了不支援的儲存後端。
	ErrUnknownBackend = errors.New("storage: unknown backend")
)

// MetaKey 為 JSON 快照中的中繼資料鍵，不能作為帳戶 id。
const MetaKey = "_meta"

// Meta 為 JSON 快照的中繼資料；Generation 每次提交加一，兩份檔案必須一致。
type Meta struct {
	Storage    string `json:"storage"`
	Generation int64  `json:"generation"`
}

func newMeta(gen int64) Meta {
	return Meta{Storage: "json_snapshot", Generation: gen}
}

// AccountRecord 為帳戶在儲存層的序列化格式。
// last_daily / last_work 為固定欄位；其他名稱的冷卻閘門存放於 cooldowns。
type AccountRecord struct {
	Cash      int64                `json:"cash"`
	Bank      int64                `json:"bank"`
	LastDaily *time.Time           `json:"last_daily"`
	LastWork  *time.Time           `json:"last_work"`
	Cooldowns map[string]time.Time `json:"cooldowns,omitempty"`
}

// TransactionRecord is one append-only audit entry.
type TransactionRecord struct {
	ID          string    `json:"id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
}

// BankRecord 為全域銀行狀態：累計財富與依插入順序排列的交易紀錄。
type BankRecord struct {
	TotalWealth  int64               `json:"total_wealth"`
	Transactions []TransactionRecord `json:"transactions"`
}

// bankFile 為 bank.json 的檔案格式。
type bankFile struct {
	Meta Meta `json:"_meta"`
	BankRecord
}

// accountsFile 為 accounts.json 的檔案格式：id → AccountRecord，另加 "_meta" 一個鍵。
type accountsFile struct {
	Meta     Meta
	Accounts map[string]AccountRecord
}

func (f accountsFile) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Accounts)+1)
	for id, r := range f.Accounts {
		out[id] = r
	}
	out[MetaKey] = f.Meta
	return json.Marshal(out)
}

func (f *accountsFile) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	f.Accounts = make(map[string]AccountRecord, len(raw))
	for id, v := range raw {
		if id == MetaKey {
			if err := json.Unmarshal(v, &f.Meta); err != nil {
				return fmt.Errorf("%s: %w", MetaKey, err)
			}
			continue
		}
		var r AccountRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("account %s: %w", id, err)
		}
		f.Accounts[id] = r
	}
	return nil
}

// State 為啟動時載入的完整狀態。
type State struct {
	Accounts map[string]AccountRecord
	Bank     BankRecord
}

// Changeset 描述一次提交 (commit) 的增量：
//   - Accounts：本次被修改或新建的帳戶完整快照
//   - Appended：本次新增的交易紀錄（依順序）
//   - TotalWealth：提交後的累計財富
type Changeset struct {
	Accounts    map[string]AccountRecord
	Appended    []TransactionRecord
	TotalWealth int64
}

// Empty 回傳 true 代表此次提交沒有任何需要寫入的內容。
func (c Changeset) Empty() bool {
	return len(c.Accounts) == 0 && len(c.Appended) == 0
}

func emptyState() State {
	return State{
		Accounts: make(map[string]AccountRecord),
		Bank:     BankRecord{Transactions: []TransactionRecord{}},
	}
}

func cloneRecord(r AccountRecord) AccountRecord {
	out := r
	if r.LastDaily != nil {
		t := *r.LastDaily
		out.LastDaily = &t
	}
	if r.LastWork != nil {
		t := *r.LastWork
		out.LastWork = &t
	}
	if r.Cooldowns != nil {
		out.Cooldowns = make(map[string]time.Time, len(r.Cooldowns))
		for k, v := range r.Cooldowns {
			out.Cooldowns[k] = v
		}
	}
	return out
}
