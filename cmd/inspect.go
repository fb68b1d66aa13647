package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agentic-research/orrery/api"
	"github.com/agentic-research/orrery/internal/entity"
	"github.com/agentic-research/orrery/internal/world"
)

var lsBySMA bool

var lsCmd = &cobra.Command{
	Use:   "ls [entity]",
	Short: "List bodies, or the children of one body",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		eng, _, err := openWorld(s)
		if err != nil {
			return err
		}

		var paths []string
		switch {
		case len(args) == 1:
			paths, err = eng.ListChildren(strings.Trim(args[0], "/"))
		case lsBySMA:
			paths, err = eng.ListAllOrderedBySemiMajorAxis()
		default:
			paths, err = eng.ListAll()
		}
		if err != nil {
			return err
		}
		return printBodies(cmd, eng, paths)
	},
}

func printBodies(cmd *cobra.Command, eng *world.Engine, paths []string) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tKIND\tNAME\tSMA\tDISTANCE\tMASS")
	for _, p := range paths {
		obj, err := eng.ReadEntity(p)
		if err != nil {
			fmt.Fprintf(tw, "%s\t?\t%v\t\t\t\n", p, err)
			continue
		}
		b := obj.Common()
		sma := "-"
		if obj.HasOrbit() {
			sma = humanize.SIWithDigits(b.Orbit.SMA, 3, "m")
		}
		dist := "-"
		if parent, ok := parentOfPath(p); ok {
			if po, err := eng.ReadEntity(parent); err == nil {
				dist = humanize.SIWithDigits(b.Position.Sub(po.Common().Position).Mag(), 3, "m")
			}
		}
		mass := "-"
		if b.Mass > 0 {
			mass = humanize.SIWithDigits(b.Mass*1000, 3, "g")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p, obj.Kind(), b.Name, sma, dist, mass)
	}
	return tw.Flush()
}

func parentOfPath(p string) (string, bool) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", false
	}
	return p[:i], true
}

var catRaw bool

var catCmd = &cobra.Command{
	Use:   "cat <entity|path>",
	Short: "Print an entity record, or a raw store file with --raw",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		eng, _, err := openWorld(s)
		if err != nil {
			return err
		}

		if catRaw {
			data, err := eng.Store().Read(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}

		obj, err := eng.ReadEntity(strings.Trim(args[0], "/"))
		if err != nil {
			return err
		}
		rec, err := entity.Encode(obj)
		if err != nil {
			return err
		}
		return printJSON(cmd, rec)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <entity> <jsonpath>",
	Short: "Evaluate a JSONPath selector against an entity record",
	Example: `  orrery query sun/earth '$.orbit.ecc'
  orrery query sun '$..name'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		eng, _, err := openWorld(s)
		if err != nil {
			return err
		}
		out, err := eng.Store().Query(api.ObjectPath(strings.Trim(args[0], "/")), args[1])
		if err != nil {
			return err
		}
		if out == nil {
			out = []any{}
		}
		return printJSON(cmd, out)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	lsCmd.Flags().BoolVar(&lsBySMA, "sma", false, "order by semi-major axis")
	catCmd.Flags().BoolVar(&catRaw, "raw", false, "treat the argument as a store path")
	rootCmd.AddCommand(lsCmd, catCmd, queryCmd)
}
