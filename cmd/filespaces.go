package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gobii-ai/gobii-platform-sub000/model/filespace"
)

var filespacesCmdGroup = &cobra.Command{
	Use:   "filespaces <command>",
	Short: "Manage the filespaces of an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Usage()
	},
}

var provisionCmd = &cobra.Command{
	Use:   "provision <owner>",
	Short: "Provision the default filespace of a new agent",
	Long: `Provision the default filespace of a new agent. The command is
idempotent: when the default filespace already exists, it is left as is.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return cmd.Usage()
		}
		if err := filespace.InitRegistry(); err != nil {
			return err
		}
		sp, err := filespace.ProvisionDefault(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", sp.DocID, sp.Name)
		return nil
	},
}

var addFilespaceCmd = &cobra.Command{
	Use:   "add <owner> <name>",
	Short: "Create a filespace for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return cmd.Usage()
		}
		if err := filespace.InitRegistry(); err != nil {
			return err
		}
		sp, err := filespace.Create(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", sp.DocID, sp.Name)
		return nil
	},
}

var lsFilespacesCmd = &cobra.Command{
	Use:   "ls <owner>",
	Short: "List the filespaces of an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return cmd.Usage()
		}
		spaces, err := filespace.List(args[0])
		if err != nil {
			return err
		}
		for _, sp := range spaces {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", sp.DocID, sp.Name)
		}
		return nil
	},
}

var destroyFilespaceCmd = &cobra.Command{
	Use:   "destroy <owner> <name>",
	Short: "Destroy a filespace, its nodes and its blobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return cmd.Usage()
		}
		sp, err := filespace.ByName(args[0], args[1])
		if err != nil {
			return err
		}
		return filespace.Destroy(sp)
	},
}

func init() {
	filespacesCmdGroup.AddCommand(provisionCmd)
	filespacesCmdGroup.AddCommand(addFilespaceCmd)
	filespacesCmdGroup.AddCommand(lsFilespacesCmd)
	filespacesCmdGroup.AddCommand(destroyFilespaceCmd)
	RootCmd.AddCommand(filespacesCmdGroup)
}
