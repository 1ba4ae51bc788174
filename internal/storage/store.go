// internal/storage/store.go
//
// Store 為 PersistentStore 的抽象介面。Ledger 只依賴此介面，
// 可在 JSON 快照、bbolt、SQLite 之間替換而不影響商業邏輯。
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Store persists account records and the bank state.
//
// Load returns defaults when nothing has been stored yet and an error
// wrapping ErrCorrupt when stored data cannot be decoded. Commit must be
// all-or-nothing: after a failed Commit a subsequent Load observes the
// state as it was before the call.
type Store interface {
	Load(ctx context.Context) (State, error)
	Commit(ctx context.Context, cs Changeset) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Open 依後端名稱於 dir 下開啟對應的儲存實作。
func Open(backend, dir string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendJSON:
		return NewJSONStore(filepath.Join(dir, "accounts.json"), filepath.Join(dir, "bank.json"))
	case BackendBolt:
		return OpenBolt(filepath.Join(dir, "economy.db"))
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, "economy.sqlite"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
