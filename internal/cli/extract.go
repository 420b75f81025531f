package cli

import (
	"github.com/spf13/cobra"

	"github.com/blazelab/blaze/internal/report"
	"github.com/blazelab/blaze/internal/tags"
)

var extractCmd = &cobra.Command{
	Use:   "extract [response-file]",
	Short: "Parse a response's action tags and print them as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args, 0)
		if err != nil {
			return err
		}

		actionsOnly, _ := cmd.Flags().GetBool("actions")
		if actionsOnly {
			cmd.Println(report.ActionMarkup(text))
			return nil
		}
		return printJSON(cmd, tags.Extract(text))
	},
}

func init() {
	extractCmd.Flags().Bool("actions", false, "print only the mutating action tag markup, for approval review")
}
