// Package cmd provides the ledgerctl commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ukydev/vehicle-ledger/internal/app"
	"github.com/ukydev/vehicle-ledger/internal/config"
	"github.com/ukydev/vehicle-ledger/internal/db"
	"github.com/ukydev/vehicle-ledger/internal/ledger"
)

// env is shared by every subcommand of one invocation.
type env struct {
	dbPath string
	debug  bool
	asJSON bool
	cfg    config.Config
	store  *db.Store
	ledger *ledger.Ledger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and back up a vehicle ledger",
		Long: `ledgerctl works directly on the ledger database configured for the
server (.env, ledger.yaml and environment variables).

Example:
  ledgerctl export --format xlsx
  ledgerctl import vehicle-ledger-2025-07-01.json
  ledgerctl reminders`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}

	root.PersistentFlags().StringVar(&e.dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	root.PersistentFlags().BoolVar(&e.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&e.asJSON, "json", false, "print JSON instead of text")

	root.AddCommand(
		newExportCmd(e),
		newImportCmd(e),
		newRemindersCmd(e),
		newEfficiencyCmd(e),
		newTotalsCmd(e),
	)
	return root
}

// Execute runs ledgerctl with os.Args.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func (e *env) open(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if e.dbPath != "" {
		cfg.DBDriver = config.DriverSQLite
		cfg.DBPath = e.dbPath
	}
	if e.debug {
		cfg.LogLevel = "debug"
	}
	cfg.ConfigureLogging()
	log.SetOutput(os.Stderr)

	if ctx == nil {
		ctx = context.Background()
	}
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.store = store
	e.ledger = app.NewLedger(store, cfg)
	return nil
}

func (e *env) close() {
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		log.WithError(err).Error("Failed to close store")
	}
	e.store = nil
}
