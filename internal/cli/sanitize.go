package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blazelab/blaze/internal/stream"
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [response-file]",
	Short: "Strip control tags from a (possibly partial) response",
	Long: `Remove every control tag span from the text, including an unclosed
trailing tag still being streamed, and collapse excess blank lines.
Safe to call on any prefix of a response.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args, 0)
		if err != nil {
			return err
		}

		checkWrite, _ := cmd.Flags().GetBool("check-write")
		if checkWrite {
			if stream.HasUnclosedWrite(text) {
				cmd.Println("unclosed")
				return fmt.Errorf("response has an unclosed write tag")
			}
			cmd.Println("closed")
			return nil
		}

		cmd.Print(stream.Sanitize(text))
		return nil
	},
}

func init() {
	sanitizeCmd.Flags().Bool("check-write", false, "report whether the last write tag is still open")
}
