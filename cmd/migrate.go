package cmd

import (
	"github.com/spf13/cobra"

	"bizledger-backend/config"
	"bizledger-backend/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := bootstrap()
		db, err := database.Connect(cfg, log)
		if err != nil {
			config.LogError(log, "cmd", "migrate", "connect database", cfg.DBDriver, err)
			return err
		}
		if err := database.Migrate(db); err != nil {
			config.LogError(log, "cmd", "migrate", "apply migrations", nil, err)
			return err
		}
		log.Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
