package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"economy/internal/bank"
	"economy/internal/config"
	"economy/internal/economy"
	"economy/internal/storage"
)

// app 組裝儲存層、帳本與動作解析器。
type app struct {
	cfg      *config.Config
	ledger   *bank.Ledger
	economy  *economy.Economy
	registry *prometheus.Registry
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	rules, err := economy.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := storage.Open(cfg.Store, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	slog.Debug("store opened", "backend", cfg.Store, "dir", cfg.DataDir)

	led, err := bank.Open(ctx, st,
		bank.WithLogger(slog.Default()),
		bank.WithStartingBalance(rules.StartingBalance),
	)
	if err != nil {
		return nil, errors.Join(err, st.Close())
	}

	reg := prometheus.NewRegistry()
	eco, err := economy.New(led, rules,
		economy.WithAuthorizer(economy.NewAdminSet(cfg.AdminIDs...)),
		economy.WithLogger(slog.Default()),
		economy.WithMetrics(economy.NewMetrics(reg, led)),
	)
	if err != nil {
		return nil, errors.Join(err, led.Close())
	}
	return &app{cfg: cfg, ledger: led, economy: eco, registry: reg}, nil
}

func (a *app) Close() error {
	return a.ledger.Close()
}

// withApp 載入設定、開啟 app，執行 fn 後關閉。
func (o *options) withApp(ctx context.Context, fn func(*app) error) (err error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()
	return fn(a)
}

// outcomeErr 把失敗的 Outcome 轉為命令錯誤。
func outcomeErr(out economy.Outcome, err error) error {
	if err != nil {
		return err
	}
	if !out.OK && out.Failure != nil {
		return fmt.Errorf("%s rejected: %w", out.Action, out.Failure)
	}
	return nil
}
