package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ranger/internal/model"
	"github.com/ppiankov/ranger/internal/selfmod"
)

var (
	modTarget      string
	modKind        string
	modPayloadFile string
	modDescription string
	pruneKeep      int
)

// selfmodCmd groups the guarded self-modification commands
var selfmodCmd = &cobra.Command{
	Use:   "selfmod",
	Short: "Validate, apply and roll back changes to extension code",
	Long: `Self-modification edits allow-listed Go files under the configured root.

Every change is checked against the allow-list and safety patterns, backed up,
written, and parsed again; a change that no longer parses is rolled back.

Kinds: add_function, modify_function, add_import, add_class, modify_class

Example:
  ranger selfmod validate --target extensions/improvements.go --kind add_function --file patch.go
  ranger selfmod restore-point create "before tuning"
  ranger selfmod restore 3f2a`,
}

var validateModCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a modification without applying it",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, mod, err := loadModification()
		if err != nil {
			return err
		}
		if err := engine.Validate(mod); err != nil {
			return err
		}
		fmt.Printf("✓ %s on %s is allowed\n", mod.Kind, mod.TargetFile)
		return nil
	},
}

var applyModCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a modification with backup and rollback",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, mod, err := loadModification()
		if err != nil {
			return err
		}
		entry, err := engine.Apply(mod)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Applied %s to %s\n", mod.Kind, mod.TargetFile)
		fmt.Printf("  Backup: %s\n", entry.Backup.BackupPath)
		return nil
	},
}

var restorePointCmd = &cobra.Command{
	Use:   "restore-point",
	Short: "Manage restore points of the allow-listed files",
}

var createRestorePointCmd = &cobra.Command{
	Use:   "create [description]",
	Short: "Copy every allow-listed file into a new restore point",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, err := openEngine()
		if err != nil {
			return err
		}
		desc := ""
		if len(args) == 1 {
			desc = args[0]
		}
		rp, err := engine.CreateRestorePoint(desc)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Created restore point %s (%d files)\n", rp.ID, len(rp.Files))
		return nil
	},
}

var listRestorePointsCmd = &cobra.Command{
	Use:   "list",
	Short: "List restore points, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, err := openEngine()
		if err != nil {
			return err
		}
		points, err := engine.ListRestorePoints()
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Println("No restore points")
			return nil
		}
		for _, rp := range points {
			fmt.Printf("%s  %s  %d files  %s\n",
				shortID(rp.ID), rp.Timestamp.Format("2006-01-02 15:04:05"), len(rp.Files), rp.Description)
		}
		return nil
	},
}

var restoreModCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Copy a restore point's files back (id or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, err := openEngine()
		if err != nil {
			return err
		}
		rp, err := engine.RestoreTo(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Restored %d files from %s (%s)\n", len(rp.Files), rp.ID, rp.Description)
		return nil
	},
}

var pruneModCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest file backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cfg, err := openEngine()
		if err != nil {
			return err
		}
		keep := pruneKeep
		if !cmd.Flags().Changed("keep") {
			keep = cfg.SelfMod.KeepBackups
		}
		removed, err := engine.PruneBackups(keep)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Removed %d backups (kept newest %d)\n", removed, keep)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(selfmodCmd)
	selfmodCmd.AddCommand(validateModCmd, applyModCmd, restorePointCmd, restoreModCmd, pruneModCmd)
	restorePointCmd.AddCommand(createRestorePointCmd, listRestorePointsCmd)

	for _, c := range []*cobra.Command{validateModCmd, applyModCmd} {
		c.Flags().StringVar(&modTarget, "target", "", "target file relative to the self-modification root")
		c.Flags().StringVar(&modKind, "kind", "", "modification kind")
		c.Flags().StringVarP(&modPayloadFile, "file", "f", "", "file holding the Go payload (- for stdin)")
		c.Flags().StringVar(&modDescription, "description", "", "human readable description")
		_ = c.MarkFlagRequired("target")
		_ = c.MarkFlagRequired("kind")
		_ = c.MarkFlagRequired("file")
	}
	pruneModCmd.Flags().IntVar(&pruneKeep, "keep", 0, "backups to keep (default: selfmod.keep_backups)")
}

// openEngine builds a self-modification engine without opening the knowledge base
func openEngine() (*selfmod.Engine, *model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg, true)
	if err != nil {
		return nil, nil, err
	}
	engine, err := selfmod.NewEngine(cfg.SelfMod, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	return engine, cfg, nil
}

func loadModification() (*selfmod.Engine, model.Modification, error) {
	kind, err := model.ParseKind(modKind)
	if err != nil {
		return nil, model.Modification{}, err
	}

	var payload []byte
	if modPayloadFile == "-" {
		payload, err = io.ReadAll(os.Stdin)
	} else {
		payload, err = os.ReadFile(modPayloadFile)
	}
	if err != nil {
		return nil, model.Modification{}, fmt.Errorf("read payload: %w", err)
	}

	engine, _, err := openEngine()
	if err != nil {
		return nil, model.Modification{}, err
	}
	return engine, model.Modification{
		TargetFile:  modTarget,
		Kind:        kind,
		Payload:     string(payload),
		Description: modDescription,
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
