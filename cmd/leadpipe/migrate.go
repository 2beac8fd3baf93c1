package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xavierca1/lead-pipeline/internal/infra/database"
)

func migrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the pipeline tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(cmd, v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.NewDBConnection(cfg.DBDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.EnsureSchema(cmd.Context(), db); err != nil {
				return err
			}
			logger.Info("schema up to date")
			return nil
		},
	}
}
