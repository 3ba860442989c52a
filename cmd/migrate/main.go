package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"social-orchestrator/internal/infra/config"
	"social-orchestrator/internal/infra/db"
)

var dsn string

func main() {
	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Миграции схемы оркестратора",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "DSN Postgres (по умолчанию PG_DSN)")

	rootCmd.AddCommand(
		migrateCmd(db.MigrateUp, "Применить все миграции"),
		migrateCmd(db.MigrateDown, "Откатить последнюю миграцию"),
		migrateCmd(db.MigrateStatus, "Показать статус миграций"),
		migrateCmd(db.MigrateReset, "Откатить все миграции"),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func migrateCmd(command db.MigrateCommand, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(command),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := dsn
			if target == "" {
				target = config.Load().PGDSN
			}
			if target == "" {
				return fmt.Errorf("задайте --dsn или PG_DSN")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return db.Migrate(ctx, target, command)
		},
	}
}
