package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zring/cfbmodel/internal/report"
	"github.com/zring/cfbmodel/internal/storage"
)

// backupPassphraseEnv names the environment variable holding the backup passphrase.
const backupPassphraseEnv = "CFB_BACKUP_PASSPHRASE"

var errMissingPassphrase = errors.New("passphrase required: set " + backupPassphraseEnv)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		year  int
		week  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored prediction runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := a.runs()
			if err != nil {
				return err
			}

			var list []report.Metadata
			if year > 0 && week > 0 {
				list, err = runs.ListForWeek(cmd.Context(), year, week)
			} else {
				list, err = runs.List(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(out(cmd), "No stored prediction runs.")
				return nil
			}

			tw := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSEASON\tWEEK\tGAMES\tMODEL\tGENERATED")
			for _, md := range list {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
					md.RunID, md.Year, md.Week, md.GamesFound, md.ModelType, md.GeneratedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 = all)")
	cmd.Flags().IntVar(&year, "year", 0, "Only runs for this season (with --week)")
	cmd.Flags().IntVar(&week, "week", 0, "Only runs for this week (with --year)")

	cmd.AddCommand(newHistoryShowCmd(a), newHistoryBackupCmd(a), newHistoryRestoreCmd(a))
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var analyze bool

	cmd := &cobra.Command{
		Use:   "show <run-id|latest>",
		Short: "Print a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := a.runs()
			if err != nil {
				return err
			}

			var run *report.Run
			if args[0] == "latest" {
				run, err = runs.Latest(cmd.Context())
			} else {
				run, err = runs.Get(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			if analyze {
				return report.PrintAnalysis(out(cmd), run, report.Analyze(run))
			}
			return report.PrintPredictions(out(cmd), run)
		},
	}

	cmd.Flags().BoolVar(&analyze, "analyze", false, "Print the analysis instead of the predictions")
	return cmd
}

// encryption returns the backup encryption settings, or nil when the
// passphrase is unset and not required.
func encryption(required bool) (*storage.EncryptionConfig, error) {
	pass := os.Getenv(backupPassphraseEnv)
	if pass == "" {
		if required {
			return nil, errMissingPassphrase
		}
		return nil, nil
	}
	return storage.DefaultEncryptionConfig(pass), nil
}

func newHistoryBackupCmd(a *app) *cobra.Command {
	var encrypt bool

	cmd := &cobra.Command{
		Use:   "backup <file>",
		Short: "Write a copy of the prediction history database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := encryption(encrypt)
			if err != nil {
				return err
			}
			if !encrypt {
				enc = nil
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			info, err := db.Backup(cmd.Context(), args[0], enc)
			if err != nil {
				return err
			}

			a.logger.WithFields(logrus.Fields{
				"path":      info.Path,
				"size":      info.Size,
				"encrypted": info.Encrypted,
			}).Info("Backup written")
			fmt.Fprintf(out(cmd), "Backup written to %s (%d bytes, sha256 %s)\n", info.Path, info.Size, info.Checksum)
			return nil
		},
	}

	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Encrypt the backup with $"+backupPassphraseEnv)
	return cmd
}

func newHistoryRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the prediction history database with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			encrypted, err := storage.IsEncrypted(args[0])
			if err != nil {
				return fmt.Errorf("read backup: %w", err)
			}
			enc, err := encryption(encrypted)
			if err != nil {
				return err
			}

			// The database must be closed before its file is replaced.
			a.close()
			if err := storage.Restore(args[0], a.cfg.Paths.DBPath, enc); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Restored %s from %s\n", a.cfg.Paths.DBPath, args[0])
			return nil
		},
	}
}
