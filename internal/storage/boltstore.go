// internal/storage/boltstore.go
//
// bbolt 後端：單一資料庫檔，每次提交為一個 bbolt Update 交易，
// 帳戶、交易紀錄與累計財富一起寫入，天然具備全有或全無的語意。
package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names.
const (
	bucketAccounts     = "accounts"
	bucketTransactions = "transactions"
	bucketMeta         = "meta"
)

var keyTotalWealth = []byte("total_wealth")

// BoltStore is a bbolt-backed Store.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at path and initializes buckets.
func OpenBolt(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketAccounts, bucketTransactions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads every account, every transaction in sequence order and the total.
func (s *BoltStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	st := emptyState()
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(bucketAccounts)).ForEach(func(k, v []byte) error {
			var r AccountRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("%w: account %s: %v", ErrCorrupt, k, err)
			}
			st.Accounts[string(k)] = r
			return nil
		}); err != nil {
			return err
		}
		// 鍵為大端序序號，ForEach 依鍵排序即為插入順序。
		if err := tx.Bucket([]byte(bucketTransactions)).ForEach(func(k, v []byte) error {
			var r TransactionRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("%w: transaction %d: %v", ErrCorrupt, btoi(k), err)
			}
			st.Bank.Transactions = append(st.Bank.Transactions, r)
			return nil
		}); err != nil {
			return err
		}
		if raw := tx.Bucket([]byte(bucketMeta)).Get(keyTotalWealth); raw != nil {
			if len(raw) != 8 {
				return fmt.Errorf("%w: total_wealth has %d bytes", ErrCorrupt, len(raw))
			}
			st.Bank.TotalWealth = int64(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	if err != nil {
		return State{}, err
	}
	return st, nil
}

// Commit writes the changeset in a single bbolt transaction.
func (s *BoltStore) Commit(ctx context.Context, cs Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket([]byte(bucketAccounts))
		for id, r := range cs.Accounts {
			payload, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal account: %w", err)
			}
			if err := accounts.Put([]byte(id), payload); err != nil {
				return err
			}
		}

		txns := tx.Bucket([]byte(bucketTransactions))
		for _, r := range cs.Appended {
			seq, err := txns.NextSequence()
			if err != nil {
				return err
			}
			payload, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal transaction: %w", err)
			}
			if err := txns.Put(itob(seq), payload); err != nil {
				return err
			}
		}

		var total [8]byte
		binary.BigEndian.PutUint64(total[:], uint64(cs.TotalWealth))
		return tx.Bucket([]byte(bucketMeta)).Put(keyTotalWealth, total[:])
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
