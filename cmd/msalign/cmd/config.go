package cmd

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective parameters",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective parameters as YAML",
	Long: `Print the parameters in effect after the config file, MSALIGN_*
environment variables and global flags are applied. The output is a valid
--config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configCmd.AddCommand(configDumpCmd)
}
