package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run scheduled maintenance jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			application, cleanup, err := buildApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()
			defer application.Stop(cmd.Context())
			for _, name := range application.Jobs.Jobs() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			application, cleanup, err := buildApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()
			defer application.Stop(cmd.Context())
			if err := application.Jobs.RunNow(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("job %s: %w", args[0], err)
			}
			log.WithField("job", args[0]).Info("Job finished")
			return nil
		},
	})
	return cmd
}
