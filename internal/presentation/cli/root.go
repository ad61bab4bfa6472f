// Package cli is the minishop-orders command line: the HTTP server and the
// operator commands for migrations, stock and the audit trail.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/config"
	"github.com/spf13/cobra"
)

const closeTimeout = 10 * time.Second

// rootOptions are the persistent flags. Each overrides its environment variable when set.
type rootOptions struct {
	storeDriver string
	storeDSN    string
	logLevel    string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "minishop-orders",
		Short: "Order lifecycle and payment verification engine",
		Long: `minishop-orders runs the order state machine behind an HTTP API.

Orders are placed, paid by manual proof review, shipped and delivered.
Configuration comes from the environment; the flags below override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.storeDriver, "store-driver", "", "store backend: memory, sqlite, mysql or postgres (STORE_DRIVER)")
	cmd.PersistentFlags().StringVar(&opts.storeDSN, "store-dsn", "", "store data source name (STORE_DSN)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (LOG_LEVEL)")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newStockCommand(opts),
		newAuditCommand(opts),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (o *rootOptions) config() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if o.storeDriver != "" {
		cfg.StoreDriver = o.storeDriver
	}
	if o.storeDSN != "" {
		cfg.StoreDSN = o.storeDSN
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// withApp builds the app for one command and always closes it.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}
