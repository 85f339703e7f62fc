package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hallpass-dev/hallpass/internal/config"
)

func sweepCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one escalation, archive and audit purge sweep and exit",
		Long: `Run every sweep stage once against the configured store:
- escalate open passes past the warning or alert threshold
- archive closed passes older than HALLPASS_ARCHIVE_AFTER_DAYS
- purge audit entries older than HALLPASS_AUDIT_RETENTION_DAYS

Only meaningful with HALLPASS_STORE=sqlite; the memory store starts empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			out := io.Discard
			if verbose {
				out = os.Stderr
			}
			logger := log.New(out, "hallpass ", log.LstdFlags|log.LUTC)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			res := a.sweeper.SweepOnce(cmd.Context())

			fmt.Printf("Escalated: %s\n", color.New(color.FgYellow).Sprint(res.Escalated))
			fmt.Printf("Archived:  %s\n", color.New(color.FgGreen).Sprint(res.Archived))
			fmt.Printf("Purged:    %s\n", color.New(color.FgCyan).Sprint(res.Purged))
			if res.Failures > 0 {
				fmt.Printf("Failures:  %s\n", color.New(color.FgRed).Sprint(res.Failures))
				return fmt.Errorf("sweep finished with %d failures", res.Failures)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log sweep details to stderr")
	return cmd
}
