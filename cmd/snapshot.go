package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agentic-research/orrery/internal/persistence"
)

var snapshotLabel string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save, list and restore world snapshots",
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Snapshot the initialized world",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		eng, _, err := openWorld(s)
		if err != nil {
			return err
		}
		data, err := eng.Export()
		if err != nil {
			return err
		}
		now, err := eng.Time()
		if err != nil {
			return err
		}

		db, err := persistence.Open(s.SnapshotPath())
		if err != nil {
			return err
		}
		defer db.Close()
		snap, err := db.Save(cmd.Context(), snapshotLabel, now, eng.Generation(), data)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), snap.ID)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		db, err := persistence.Open(s.SnapshotPath())
		if err != nil {
			return err
		}
		defer db.Close()

		snaps, err := db.List(cmd.Context(), snapshotLabel)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tLABEL\tSIM TIME\tGEN\tSIZE\tSAVED")
		for _, sn := range snaps {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				sn.ID, sn.Label, sn.SimTime.Format(time.RFC3339), sn.Generation,
				humanize.Bytes(uint64(sn.Size)), humanize.Time(sn.CreatedAt))
		}
		return tw.Flush()
	},
}

var restoreOut string

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore [id]",
	Short: "Write a snapshot's world file (default: the latest for --label)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		db, err := persistence.Open(s.SnapshotPath())
		if err != nil {
			return err
		}
		defer db.Close()

		var data string
		if len(args) == 1 {
			data, err = db.Load(cmd.Context(), args[0])
		} else {
			_, data, err = db.Latest(cmd.Context(), snapshotLabel)
		}
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), restoreOut, []byte(data))
	},
}

func init() {
	snapshotCmd.PersistentFlags().StringVar(&snapshotLabel, "label", "default", "snapshot label")
	snapshotRestoreCmd.Flags().StringVarP(&restoreOut, "out", "o", "", "write the world file here instead of stdout")
	snapshotCmd.AddCommand(snapshotSaveCmd, snapshotListCmd, snapshotRestoreCmd)
	rootCmd.AddCommand(snapshotCmd)
}
