package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gobii-ai/gobii-platform-sub000/model/filespace"
	"github.com/gobii-ai/gobii-platform-sub000/model/vfs"
)

var checkCmd = &cobra.Command{
	Use:   "check <owner> [filespace-name]",
	Short: "Check the structural consistency of the owner's filespaces",
	Long: `Check the structural consistency of the owner's filespaces: cached
paths, parent pointers, live-name uniqueness and absence of cycles. The
inconsistencies are reported without being repaired.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 || len(args) > 2 {
			return cmd.Usage()
		}
		owner := args[0]

		var spaces []*filespace.FileSpace
		if len(args) == 2 {
			sp, err := filespace.ByName(owner, args[1])
			if err != nil {
				return err
			}
			spaces = append(spaces, sp)
		} else {
			var err error
			spaces, err = filespace.List(owner)
			if err != nil {
				return err
			}
		}
		if len(spaces) == 0 {
			return nil
		}

		ids := make([]string, len(spaces))
		names := make(map[string]string, len(spaces))
		for i, sp := range spaces {
			ids[i] = sp.DocID
			names[sp.DocID] = sp.Name
		}
		all, err := vfs.CheckSpaces(spaces[0].Prefixer(), ids)
		if err != nil {
			return err
		}

		var count int
		for id, issues := range all {
			for _, issue := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", names[id], issue)
				count++
			}
		}
		if count > 0 {
			return fmt.Errorf("%d inconsistencies found", count)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(checkCmd)
}
