package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/flow/flowfile"
)

var strictValidate bool

var validateCmd = &cobra.Command{
	Use:   "validate [flow.yaml]",
	Short: "Check a flow file offline with the same rules as save/publish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		doc, err := flowfile.Decode(f)
		if err != nil {
			return err
		}
		if err := doc.Validate(strictValidate); err != nil {
			return err
		}
		mode := "draft"
		if strictValidate {
			mode = "strict"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, valid (%s)\n", args[0], len(doc.Nodes), mode)
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&strictValidate, "strict", true, "apply publish-time rules")
}
