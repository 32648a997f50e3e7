// Package cmd regroups the commands of the gobii-stack binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gobii-ai/gobii-platform-sub000/pkg/config"
)

var cfgFile string

// RootCmd is the root command of the stack, all the other commands are
// attached to it.
var RootCmd = &cobra.Command{
	Use:   "gobii-stack <command>",
	Short: "gobii-stack manages the filespaces of the agents",
	Long: `gobii-stack manages the virtual filesystems attached to the agents:
provisioning, listing, and integrity checking of the filespaces.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Setup(cfgFile)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Usage()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "configuration file to use")
}

// Execute adds all child commands to the root command and executes it.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
