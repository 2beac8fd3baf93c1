package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/entity"
)

func replayCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <event-id>",
		Short: "Run one stored event through the pipeline in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(cmd, v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.process.Execute(cmd.Context(), entity.AudienceEventReceived{EventID: args[0]})
			if err != nil {
				logger.Error("replay failed", zap.String("event_id", args[0]), zap.Error(err))
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return nil
		},
	}
}
