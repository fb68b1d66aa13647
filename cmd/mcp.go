package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/orrery/internal/bridge"
	"github.com/agentic-research/orrery/internal/mcpserver"
)

var mcpRun bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the world as MCP tools over stdio",
	Long: `Mcp serves read_entity, list_entities, tick, status, set_time_warp,
export_world, query and light_time to an MCP client on stdin/stdout.
With --run the world also ticks in real time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		eng, _, err := openWorld(s)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		b := bridge.New(bridge.WorldHandlers(ctx, eng), 0)
		defer b.Close()
		if mcpRun {
			if err := eng.Start(ctx); err != nil {
				return err
			}
			defer eng.Stop()
		}
		return mcpserver.New(bridge.NewClient(b), Version).ServeStdio()
	},
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpRun, "run", false, "tick the world in real time while serving")
	rootCmd.AddCommand(mcpCmd)
}
