package main

import (
	"github.com/spf13/cobra"

	"github.com/ovaphlow/dinear/service-api/internal/migrations"
	"github.com/ovaphlow/dinear/service-api/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		sugar := logger.Sugar()
		db, err := database.Connect(cfg.Database())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(cmd.Context(), db.DB, migrations.FS); err != nil {
			return err
		}
		sugar.Info("migrations applied")
		return nil
	},
}
