// internal/cli/show.go
package stochprobe

import (
	"fmt"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// showCmd represents the 'show' command group for displaying resources.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Group commands for displaying resources",
}

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show the effective configuration after defaults, the config file and flags have been merged.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if file := viper.ConfigFileUsed(); file == "" {
			fmt.Fprintln(out, "No config file loaded (using defaults).")
		} else {
			fmt.Fprintf(out, "Config file: %s\n\n", file)
		}
		_, err := pp.Fprintln(out, getConfig())
		return err
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showConfigCmd)
}
