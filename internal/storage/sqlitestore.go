// internal/storage/sqlitestore.go
//
// SQLite 後端（modernc.org/sqlite，純 Go 驅動）。
// 開啟時啟用 WAL 並建立資料表；每次提交包在單一 SQL 交易內。
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
    id         TEXT PRIMARY KEY,
    cash       INTEGER NOT NULL,
    bank       INTEGER NOT NULL,
    last_daily TEXT,
    last_work  TEXT,
    cooldowns  TEXT
);

CREATE TABLE IF NOT EXISTS transactions (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT,
    timestamp   TEXT NOT NULL,
    description TEXT NOT NULL,
    amount      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bank_meta (
    key   TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);
`

// SQLiteStore is a database/sql backed Store.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens the database at path, creating parent directories and schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 單一寫入者；避免 SQLITE_BUSY。
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load reads all rows.
func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	st := emptyState()

	rows, err := s.db.QueryContext(ctx, `SELECT id, cash, bank, last_daily, last_work, cooldowns FROM accounts`)
	if err != nil {
		return State{}, fmt.Errorf("failed to query accounts: %w", err)
	}
	for rows.Next() {
		var (
			id                 string
			r                  AccountRecord
			daily, work, gates sql.NullString
		)
		if err := rows.Scan(&id, &r.Cash, &r.Bank, &daily, &work, &gates); err != nil {
			rows.Close()
			return State{}, fmt.Errorf("%w: scan account: %v", ErrCorrupt, err)
		}
		if r.LastDaily, err = parseNullTime(daily); err != nil {
			rows.Close()
			return State{}, err
		}
		if r.LastWork, err = parseNullTime(work); err != nil {
			rows.Close()
			return State{}, err
		}
		if gates.Valid && gates.String != "" {
			if err := json.Unmarshal([]byte(gates.String), &r.Cooldowns); err != nil {
				rows.Close()
				return State{}, fmt.Errorf("%w: cooldowns for %s: %v", ErrCorrupt, id, err)
			}
		}
		st.Accounts[id] = r
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return State{}, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT id, timestamp, description, amount FROM transactions ORDER BY seq`)
	if err != nil {
		return State{}, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id sql.NullString
			ts string
			r  TransactionRecord
		)
		if err := rows.Scan(&id, &ts, &r.Description, &r.Amount); err != nil {
			return State{}, fmt.Errorf("%w: scan transaction: %v", ErrCorrupt, err)
		}
		r.ID = id.String
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return State{}, fmt.Errorf("%w: transaction timestamp %q", ErrCorrupt, ts)
		}
		st.Bank.Transactions = append(st.Bank.Transactions, r)
	}
	if err := rows.Err(); err != nil {
		return State{}, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT value FROM bank_meta WHERE key = 'total_wealth'`).Scan(&st.Bank.TotalWealth)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return State{}, fmt.Errorf("failed to read total wealth: %w", err)
	}
	return st, nil
}

// Commit upserts touched accounts, inserts appended records and stores the
// total inside one transaction.
func (s *SQLiteStore) Commit(ctx context.Context, cs Changeset) error {
	return s.transaction(ctx, func(tx *sql.Tx) error {
		for id, r := range cs.Accounts {
			var gates any
			if len(r.Cooldowns) > 0 {
				raw, err := json.Marshal(r.Cooldowns)
				if err != nil {
					return fmt.Errorf("marshal cooldowns: %w", err)
				}
				gates = string(raw)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO accounts (id, cash, bank, last_daily, last_work, cooldowns)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					cash = excluded.cash,
					bank = excluded.bank,
					last_daily = excluded.last_daily,
					last_work = excluded.last_work,
					cooldowns = excluded.cooldowns
			`, id, r.Cash, r.Bank, formatNullTime(r.LastDaily), formatNullTime(r.LastWork), gates)
			if err != nil {
				return fmt.Errorf("failed to save account %s: %w", id, err)
			}
		}
		for _, r := range cs.Appended {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO transactions (id, timestamp, description, amount) VALUES (?, ?, ?, ?)`,
				r.ID, r.Timestamp.UTC().Format(time.RFC3339Nano), r.Description, r.Amount)
			if err != nil {
				return fmt.Errorf("failed to append transaction: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bank_meta (key, value) VALUES ('total_wealth', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, cs.TotalWealth)
		return err
	})
}

// transaction executes fn within a transaction, rolling back on error.
func (s *SQLiteStore) transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp %q", ErrCorrupt, v.String)
	}
	return &t, nil
}
