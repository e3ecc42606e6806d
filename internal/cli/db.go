package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOut string

// dbCmd groups knowledge base maintenance
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Maintain the knowledge database",
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge verified records that share a topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.pipeline.Consolidate(cmd.Context())
		if err != nil {
			return err
		}
		if report.Groups == 0 {
			fmt.Println("Nothing to consolidate")
			return nil
		}
		fmt.Printf("✓ Merged %d topic groups, superseded %d records (survivors: %v)\n",
			report.Groups, report.Tombstoned, report.Survivors)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export live knowledge records as JSON",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.store.Export(cmd.Context())
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer func() {
				if closeErr := f.Close(); closeErr != nil && err == nil {
					err = fmt.Errorf("close export file: %w", closeErr)
				}
			}()
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		if exportOut != "" {
			fmt.Fprintf(os.Stderr, "✓ Exported %d records to %s\n", doc.TotalItems, exportOut)
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup [path]",
	Short: "Snapshot the database (default: backup dir from config)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		target := a.cfg.Storage.BackupDir
		if len(args) == 1 {
			target = args[0]
		} else if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("create backup dir: %w", err)
		}

		path, err := a.store.Backup(cmd.Context(), target)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Backed up to %s\n", path)
		return nil
	},
}

var restoreDBCmd = &cobra.Command{
	Use:   "restore <path>",
	Short: "Replace the database contents with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Restore(cmd.Context(), args[0]); err != nil {
			return err
		}
		n, err := a.store.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("✓ Restored %s (%d records)\n", args[0], n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(consolidateCmd, exportCmd, backupCmd, restoreDBCmd)

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to file instead of stdout")
}
