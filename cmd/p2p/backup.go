package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scrypster/p2p/internal/backup"
)

func backupCmd(opts *options) *cobra.Command {
	var dir string

	service := func(cmd *cobra.Command) (*backup.Service, error) {
		cfg, logger, err := loadConfig(opts, cmd.ErrOrStderr())
		if err != nil {
			return nil, err
		}
		if cfg.Storage.StorageEngine != "sqlite" {
			return nil, errors.New("backups are only supported for the sqlite engine")
		}
		target := dir
		if target == "" {
			target = filepath.Join(cfg.Storage.DataPath, "backups")
		}
		return backup.New(cfg.DatabasePath(), target, backup.DefaultPolicy(), logger)
	}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the SQLite database and prune old snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			snap, err := svc.Create(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s (%d bytes)\n", snap.Path, snap.Size)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Backup directory (default: <data path>/backups)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			snapshots, err := svc.List()
			if err != nil {
				return err
			}
			return printSnapshots(cmd.OutOrStdout(), snapshots)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Replace the database with a snapshot (stop the server first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			if err := svc.Restore(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored from %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func printSnapshots(out io.Writer, snapshots []backup.Snapshot) error {
	if len(snapshots) == 0 {
		fmt.Fprintln(out, "No snapshots.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tCREATED\tSIZE")
	for _, s := range snapshots {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Path, s.Time.Format("2006-01-02 15:04:05"), s.Size)
	}
	return tw.Flush()
}
