package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hallpass-dev/hallpass/internal/config"
	"github.com/hallpass-dev/hallpass/internal/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations and list the schema history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()

			conn, err := openSQLite(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			applied, err := db.AppliedVersions(cmd.Context(), conn)
			if err != nil {
				return err
			}
			versions := make([]int, 0, len(applied))
			for v := range applied {
				versions = append(versions, v)
			}
			sort.Ints(versions)

			fmt.Printf("Database: %s\n", cfg.DBPath)
			for _, v := range versions {
				fmt.Printf("  %s %04d applied %s\n",
					color.New(color.FgGreen).Sprint("✓"), v, applied[v].UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
}
