// Package cli provides the economy command line.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"economy/internal/config"
)

type options struct {
	envFile string
	debug   bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "economy",
		Short: "Virtual economy ledger",
		Long: `economy keeps player balances, cooldowns and the audit log of a
virtual currency, and resolves player actions against them.

Example:
  economy serve
  economy balance 1234
  economy give 42 1234 500 --purse bank
  economy audit`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env", "", "env file to load (default is .env when present)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(opts),
		newBalanceCommand(opts),
		newLeaderboardCommand(opts),
		newAuditCommand(opts),
		newGiveCommand(opts),
		newTakeCommand(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConfig 讀取設定；ECONOMY_DEBUG 與 --debug 任一開啟即輸出除錯日誌。
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	if cfg.Debug && !o.debug {
		o.debug = true
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	return cfg, nil
}
