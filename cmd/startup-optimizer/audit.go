package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/startup-optimizer/internal/audit"
	"github.com/breeze-rmm/startup-optimizer/internal/config"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the optimization audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Check the hash chain of an audit log",
	Long: `verify walks an audit log and checks that every record matches its hash
and links to the record before it. Without a file argument the active log
in the configured audit directory is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			path = audit.FilePath(cfg.GetAuditDir())
		}
		return verifyAuditLog(cmd.OutOrStdout(), path)
	},
}

func verifyAuditLog(w io.Writer, path string) error {
	n, err := audit.Verify(path)
	if err != nil {
		return fmt.Errorf("%s: chain broken after %d record(s): %w", path, n, err)
	}
	fmt.Fprintf(w, "%s: %d record(s) verified\n", path, n)
	return nil
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
}
