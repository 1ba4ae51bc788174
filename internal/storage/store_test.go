package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// 每個後端都跑同一組行為測試。
func backends(t *testing.T) map[string]func(dir string) (Store, error) {
	t.Helper()
	return map[string]func(dir string) (Store, error){
		BackendJSON:   func(dir string) (Store, error) { return Open(BackendJSON, dir) },
		BackendBolt:   func(dir string) (Store, error) { return Open(BackendBolt, dir) },
		BackendSQLite: func(dir string) (Store, error) { return Open(BackendSQLite, dir) },
	}
}

func TestStoreRoundTripAcrossReopen(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()
			daily := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			gate := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

			s, err := open(dir)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if _, err := s.Load(ctx); err != nil {
				t.Fatalf("initial load: %v", err)
			}
			commits := []Changeset{
				{
					Accounts: map[string]AccountRecord{
						"alice": {Cash: 1500, Bank: 0, LastDaily: &daily},
					},
					Appended:    []TransactionRecord{{ID: "t1", Timestamp: daily, Description: "daily alice", Amount: 500}},
					TotalWealth: 500,
				},
				{
					Accounts: map[string]AccountRecord{
						"alice": {Cash: 1300, Bank: 0, LastDaily: &daily},
						"bob":   {Cash: 1200, Bank: 0, Cooldowns: map[string]time.Time{"fish": gate}},
					},
					Appended:    []TransactionRecord{{ID: "t2", Timestamp: gate, Description: "pay alice->bob", Amount: 0}},
					TotalWealth: 500,
				},
			}
			for _, cs := range commits {
				if err := s.Commit(ctx, cs); err != nil {
					t.Fatalf("commit: %v", err)
				}
			}
			if err := s.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			s, err = open(dir)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer s.Close()
			st, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}

			if got := st.Accounts["alice"]; got.Cash != 1300 || got.LastDaily == nil || !got.LastDaily.Equal(daily) || got.LastWork != nil {
				t.Fatalf("alice=%+v", got)
			}
			if got := st.Accounts["bob"]; got.Cash != 1200 || !got.Cooldowns["fish"].Equal(gate) {
				t.Fatalf("bob=%+v", got)
			}
			if st.Bank.TotalWealth != 500 {
				t.Fatalf("total=%d want 500", st.Bank.TotalWealth)
			}
			if len(st.Bank.Transactions) != 2 || st.Bank.Transactions[0].ID != "t1" || st.Bank.Transactions[1].ID != "t2" {
				t.Fatalf("transactions out of order: %+v", st.Bank.Transactions)
			}
		})
	}
}

func TestStoreCanceledContext(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s, err := open(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if err := s.Commit(ctx, Changeset{TotalWealth: 1}); err == nil {
				t.Fatal("expected error on canceled context")
			}
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("postgres", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("want ErrUnknownBackend, got %v", err)
	}
}
