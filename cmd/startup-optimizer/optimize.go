package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/startup-optimizer/internal/optimizer"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

var (
	delaySeconds  int
	startupType   string
	applyAll      bool
	priorityOnly  bool
	errOptimizing = errors.New("one or more optimizations failed")
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [entry-id action]",
	Short: "Disable, delay, enable or reconfigure startup entries",
	Long: `Apply one action to one entry, or with --recommended every action suggested
by 'recommend'. Entry ids are printed by 'scan'. Actions: disable, delay,
enable, configure_service. Changing startup configuration requires
administrator privileges.`,
	Example: `  startup-optimizer optimize 'autorun:hkcu\software\microsoft\windows\currentversion\run|slack' delay --delay 60
  startup-optimizer optimize service:cups configure_service --startup-type manual
  startup-optimizer optimize --recommended --priority-only`,
	Args: func(cmd *cobra.Command, args []string) error {
		if applyAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		reqs, err := requestsFromArgs(args)
		if err != nil {
			return err
		}

		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := signalContext()
		defer cancel()

		// Entry ids are stable across scans; the scan loads the live inventory.
		p, err := s.engine.Scan(ctx)
		if err != nil {
			return err
		}
		if applyAll {
			reqs = requestsFromRecommendations(s.engine.Recommendations(p), priorityOnly)
			if len(reqs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to optimize.")
				return nil
			}
		}

		results := s.engine.OptimizeBatch(ctx, reqs)
		if err := render(cmd.OutOrStdout(), output, results, func(w io.Writer) {
			printResults(w, results)
		}); err != nil {
			return err
		}
		for _, r := range results {
			if !r.Success {
				return errOptimizing
			}
		}
		return nil
	},
}

func init() {
	optimizeCmd.Flags().IntVar(&delaySeconds, "delay", 30, "seconds to delay the entry after logon (1-300)")
	optimizeCmd.Flags().StringVar(&startupType, "startup-type", "", "service startup type: automatic, manual or disabled")
	optimizeCmd.Flags().BoolVar(&applyAll, "recommended", false, "apply every recommended action")
	optimizeCmd.Flags().BoolVar(&priorityOnly, "priority-only", false, "with --recommended, apply only priority recommendations")
}

func requestsFromArgs(args []string) ([]optimizer.Request, error) {
	if applyAll {
		return nil, nil
	}
	action, err := models.ParseAction(args[1])
	if err != nil {
		return nil, err
	}
	req := optimizer.Request{EntryID: args[0], Action: action}
	switch action {
	case models.ActionDelay:
		req.Params.DelaySeconds = delaySeconds
	case models.ActionConfigureService:
		t, err := models.ParseStartupType(startupType)
		if err != nil {
			return nil, fmt.Errorf("--startup-type: %w", err)
		}
		req.Params.StartupType = t
	}
	return []optimizer.Request{req}, nil
}

// requestsFromRecommendations turns actionable recommendations into
// requests, skipping profile-level findings.
func requestsFromRecommendations(recs []models.Recommendation, priorityOnly bool) []optimizer.Request {
	var reqs []optimizer.Request
	for _, r := range recs {
		if r.EntryID == "" || r.Action == "" {
			continue
		}
		if priorityOnly && r.Severity != models.SeverityPriority {
			continue
		}
		reqs = append(reqs, optimizer.Request{
			EntryID: r.EntryID,
			Action:  r.Action,
			Params:  optimizer.Params{DelaySeconds: r.DelaySeconds},
		})
	}
	return reqs
}
