package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blazelab/blaze/internal/apply"
	"github.com/blazelab/blaze/internal/gitvc"
	"github.com/blazelab/blaze/internal/report"
	"github.com/blazelab/blaze/internal/workspace"
)

var applyCmd = &cobra.Command{
	Use:   "apply <app-id> [response-file]",
	Short: "Apply a response's action tags to an app's working tree",
	Long: `Parse every action tag out of a response and apply it to the app's
working tree under the apps root, committing the batch as one commit.
Reads the response from the file argument, or stdin when omitted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args, 1)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		git := &gitvc.ExecGit{}
		pipeline := apply.NewPipeline(
			workspace.NewResolver(cfg.AppsRoot),
			git,
			apply.NewGitScanner(git),
			logger,
		)
		result := pipeline.Apply(cmd.Context(), text, args[0])

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return printJSON(cmd, result)
		}
		cmd.Println(report.Summary(result))
		if result.Error != "" && !result.UpdatedFiles {
			return fmt.Errorf("apply failed")
		}
		return nil
	},
}

// readInput returns the contents of args[idx] when present, otherwise
// everything from stdin.
func readInput(args []string, idx int) (string, error) {
	if len(args) > idx {
		data, err := os.ReadFile(args[idx])
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func init() {
	applyCmd.Flags().Bool("json", false, "print the full apply result as JSON")
}
