package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/startup-optimizer/internal/health"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

var showHealth bool

// scanReport is the structured output of scan --health.
type scanReport struct {
	Profile *models.StartupProfile `json:"profile" yaml:"profile"`
	Health  health.Report          `json:"health" yaml:"health"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Inventory startup programs, services and boot phases",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := signalContext()
		defer cancel()

		p, err := s.engine.Scan(ctx)
		if err != nil {
			return err
		}

		if !showHealth {
			return render(cmd.OutOrStdout(), output, p, func(w io.Writer) {
				printProfile(w, p, nil)
			})
		}
		report := s.engine.SourceHealth()
		out := scanReport{Profile: p, Health: report}
		return render(cmd.OutOrStdout(), output, out, func(w io.Writer) {
			printProfile(w, p, &report)
		})
	},
}

func init() {
	scanCmd.Flags().BoolVar(&showHealth, "health", false, "also print the outcome of each data source")
}
