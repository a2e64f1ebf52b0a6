package main

import (
	"fmt"

	"github.com/kursadbilgin/wa-dispatch/internal/config"
	"github.com/kursadbilgin/wa-dispatch/internal/domain"
	"github.com/kursadbilgin/wa-dispatch/internal/report"
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [path]",
		Short: "Summarize a run report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
				}
				path = cfg.ReportPath
			}

			outcomes, err := report.ParseFile(path)
			if err != nil {
				return err
			}

			summary := &domain.RunReport{Outcomes: outcomes}
			counts := summary.CountByStatus()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reporte: %s\n", path)
			for _, status := range []domain.DeliveryStatus{
				domain.DeliveryStatusDelivered,
				domain.DeliveryStatusSent,
				domain.DeliveryStatusQueued,
				domain.DeliveryStatusError,
			} {
				fmt.Fprintf(out, "  %-9s %d\n", status, counts[status])
			}

			confirmed, total := summary.Summary()
			fmt.Fprintf(out, "Mensajes enviados: %d/%d\n", confirmed, total)
			return nil
		},
	}
}
