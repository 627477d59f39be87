package main

import (
	"io"

	"github.com/spf13/cobra"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Scan and list remediation suggestions, most important first",
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
		recs := s.engine.Recommendations(p)
		return render(cmd.OutOrStdout(), output, recs, func(w io.Writer) {
			printRecommendations(w, recs)
		})
	},
}
