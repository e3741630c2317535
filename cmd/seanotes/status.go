package main

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seanotes/seanotes/internal/app/services/status"
	"github.com/seanotes/seanotes/internal/cli"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the configured integrations and print a report",
		RunE:  runStatus,
	}
	cmd.Flags().Bool("json", false, "print the raw report as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// keep startup chatter out of the report
	if !log.IsLevelEnabled(logrus.DebugLevel) {
		log.SetLevel(logrus.WarnLevel)
	}

	application, cleanup, err := buildApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()
	defer application.Stop(cmd.Context())

	out := cli.NewPrinter(cmd.OutOrStdout())
	spinner := out.Spinner("Checking services...")
	spinner.Start()
	report := application.Status.Report(cmd.Context(), true)
	spinner.Stop()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out.Writer())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}
	if report.Status != status.StatusOK {
		return errors.New("required services have issues")
	}
	return nil
}

func printReport(out *cli.Printer, report status.Report) {
	for _, s := range report.Services {
		label := s.Name
		if s.Required {
			label += " (required)"
		}
		switch {
		case s.Healthy():
			out.Success("%s", label)
		case !s.Configured && !s.Required:
			out.Warning("%s: %s", label, describe(s))
		default:
			out.Error("%s: %s", label, describe(s))
		}
	}
	host := report.SystemInfo.Host
	out.Info("%s on %s/%s, up %s, %d CPUs, memory %.1f%% used",
		report.SystemInfo.Environment, host.OS, host.Platform,
		cli.FormatDuration(time.Duration(host.Uptime)*time.Second), host.CPUCount, host.MemoryUsedPercent)
}

func describe(s status.ServiceStatus) string {
	msg := s.Error
	if msg == "" {
		msg = s.Description
	}
	if len(s.ConfigToReview) > 0 {
		msg += " (check " + strings.Join(s.ConfigToReview, ", ") + ")"
	}
	return msg
}
