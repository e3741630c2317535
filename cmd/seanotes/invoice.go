package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/app/services/invoice"
	"github.com/seanotes/seanotes/internal/cli"
	"github.com/seanotes/seanotes/internal/config"
	"github.com/seanotes/seanotes/internal/metrics"
)

func newInvoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Render an invoice to HTML and text files without storing or sending it",
		RunE:  runInvoice,
	}
	cmd.Flags().String("name", "", "customer name")
	cmd.Flags().String("email", "", "customer e-mail")
	cmd.Flags().String("plan", "PRO", "plan key from the catalogue")
	cmd.Flags().String("number", "", "invoice number (generated when empty)")
	cmd.Flags().String("out", "invoices", "output directory")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runInvoice(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	planKey, _ := cmd.Flags().GetString("plan")
	number, _ := cmd.Flags().GetString("number")
	dir, _ := cmd.Flags().GetString("out")

	catalog := config.LoadPlansOrDefault(cfg.PlansPath)
	plan, ok := catalog.Get(strings.ToUpper(planKey))
	if !ok {
		return fmt.Errorf("unknown plan %q (known: %s)", planKey, strings.Join(catalog.Keys(), ", "))
	}

	var completer ai.Completer
	if cfg.AI.Configured() {
		provider, err := ai.NewProvider(cmd.Context(), cfg.AI, metrics.New())
		if err != nil {
			return err
		}
		completer = provider
	}

	now := time.Now()
	if number == "" {
		number = invoice.GenerateInvoiceNumber(now, -1)
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	out := cli.NewPrinter(cmd.OutOrStdout())
	spinner := out.Spinner("Generating invoice " + number)
	spinner.Start()
	doc := invoice.NewGenerator(completer, log.Named("invoice")).Generate(cmd.Context(), invoice.Data{
		InvoiceNumber:   number,
		CustomerName:    name,
		CustomerEmail:   email,
		PlanName:        plan.Name,
		PlanDescription: plan.Description,
		Amount:          plan.Amount,
		Currency:        plan.Currency,
		Interval:        plan.Interval,
		Features:        plan.Features,
		InvoiceDate:     now,
	})
	spinner.Stop()

	htmlPath, txtPath, err := invoice.WriteFiles(doc, dir, number)
	if err != nil {
		return err
	}
	if doc.UsedFallback {
		out.Warning("AI generation unavailable, used the built-in template")
	}
	out.Success("Invoice %s written to %s and %s", number, htmlPath, txtPath)
	return nil
}
