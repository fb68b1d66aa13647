package cmd

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/agentic-research/orrery/internal/scenario"
	"github.com/agentic-research/orrery/internal/settings"
)

var settingsForce bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Create or show operator settings",
}

var settingsInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default settings file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := settings.FileName
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !settingsForce {
			return fmt.Errorf("%s exists (use --force to overwrite)", path)
		}
		if err := settings.Save(path, settings.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		data, err := toml.Marshal(s)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var scenarioWrite bool

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Work with HCL scenario files",
}

var scenarioFmtCmd = &cobra.Command{
	Use:   "fmt <file>",
	Short: "Validate and format a scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if _, err := scenario.Parse(src, args[0]); err != nil {
			return err
		}
		out := scenario.Format(src)
		if scenarioWrite {
			return os.WriteFile(args[0], out, 0o644)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var scenarioDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the built-in scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cmd.OutOrStdout().Write(scenario.DefaultSource())
		return err
	},
}

func init() {
	settingsInitCmd.Flags().BoolVar(&settingsForce, "force", false, "overwrite an existing file")
	settingsCmd.AddCommand(settingsInitCmd, settingsShowCmd)
	scenarioFmtCmd.Flags().BoolVar(&scenarioWrite, "write", false, "rewrite the file in place")
	scenarioCmd.AddCommand(scenarioFmtCmd, scenarioDefaultCmd)
	rootCmd.AddCommand(settingsCmd, scenarioCmd)
}
