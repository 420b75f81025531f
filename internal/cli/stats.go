package cli

import (
	"github.com/spf13/cobra"

	"github.com/blazelab/blaze/internal/analytics"
)

var statsCmd = &cobra.Command{
	Use:   "stats <app-id>",
	Short: "Show apply and remediation stats for an app",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		since, _ := cmd.Flags().GetString("since")
		stats, err := analytics.QueryAppStats(st, args[0], since)
		if err != nil {
			return err
		}
		sources, err := analytics.QueryFixSources(st, args[0], since)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd, struct {
				Stats   *analytics.AppStats     `json:"stats"`
				Sources []analytics.SourceCount `json:"sources"`
			}{stats, sources})
		}

		cmd.Printf("app:          %s\n", stats.AppID)
		cmd.Printf("chats:        %d (%d messages)\n", stats.Chats, stats.Messages)
		cmd.Printf("applies:      %d (%d committed, %d failed)\n", stats.Applies, stats.Committed, stats.Failed)
		cmd.Printf("files:        %d written, %d renamed, %d deleted, %d edited\n",
			stats.FilesWritten, stats.FilesRenamed, stats.FilesDeleted, stats.FilesEdited)
		cmd.Printf("fix attempts: %d across %d distinct errors\n", stats.FixAttempts, stats.FixedErrors)
		for _, sc := range sources {
			cmd.Printf("  %-16s %d\n", sc.Source, sc.Count)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().String("since", "", "only include records at or after this SQLite datetime")
	statsCmd.Flags().Bool("json", false, "print stats as JSON")
}
