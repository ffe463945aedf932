package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/edjournal/internal/config"
	"github.com/runger/edjournal/internal/logging"
	"github.com/runger/edjournal/internal/store"
)

var dbCmd = &cobra.Command{
	Use:     "db",
	Short:   "Back up, import or clear the exploration database",
	GroupID: groupData,
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup [dest]",
	Short: "Write a consistent copy of the database",
	Long: `Write a consistent copy of the database while it is in use. Without a
destination the copy goes to the backups directory next to the database.

Examples:
  edjournal db backup
  edjournal db backup ~/exploration-2024.db`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		var dest string
		if len(args) == 1 {
			dest = args[0]
		} else {
			dest = defaultBackupPath(time.Now())
			if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
				return fmt.Errorf("create backup directory: %w", err)
			}
		}
		if err := a.engine.Backup(ctx, dest); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backed up to %s\n", dest)
		return nil
	},
}

func defaultBackupPath(now time.Time) string {
	name := "exploration-" + now.Format("20060102-150405") + ".db"
	return filepath.Join(config.DefaultPaths().BackupDir(), name)
}

var dbValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Check that a file can be imported",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.engine.ValidateImport(ctx, args[0])
		if err != nil {
			return err
		}
		printImportInfo(cmd.OutOrStdout(), "Valid", info)
		return nil
	},
}

var dbImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Replace exploration data with another database",
	Long: `Replace every exploration record with the contents of another edjournal
database. The file is validated first; on any failure the current data is
left untouched.

Examples:
  edjournal db import ~/backup/edjournal.db`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.engine.Import(ctx, args[0])
		if err != nil {
			return err
		}
		printImportInfo(cmd.OutOrStdout(), "Imported", info)
		return nil
	},
}

var dbClearYes bool

var dbClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all exploration data",
	Long: `Delete every system, body, signal and route record. Settings and the
EDSM cache are kept. Requires --yes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !dbClearYes {
			return errors.New("refusing to clear without --yes")
		}
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.engine.ClearExplorationData(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Exploration data cleared")
		return nil
	},
}

var dbCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run an integrity check on the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.IntegrityCheck(ctx); err != nil {
			logging.LogIntegrityCheckFailed(a.logger, a.cfg.DatabasePath(), err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%sok%s %s\n", colorGreen, colorReset, a.cfg.DatabasePath())
		return nil
	},
}

func init() {
	dbClearCmd.Flags().BoolVar(&dbClearYes, "yes", false, "confirm deleting all exploration data")

	dbCmd.AddCommand(dbBackupCmd)
	dbCmd.AddCommand(dbValidateCmd)
	dbCmd.AddCommand(dbImportCmd)
	dbCmd.AddCommand(dbClearCmd)
	dbCmd.AddCommand(dbCheckCmd)
}

func printImportInfo(out io.Writer, verb string, info *store.ImportInfo) {
	fmt.Fprintf(out, "%s%s%s %s (schema v%d)\n", colorGreen, verb, colorReset, info.Path, info.SchemaVersion)
	fmt.Fprintf(out, "  Systems:       %d\n", info.Systems)
	fmt.Fprintf(out, "  Bodies:        %d\n", info.Bodies)
	fmt.Fprintf(out, "  Route entries: %d\n", info.RouteEntries)
}
