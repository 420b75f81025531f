package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blazelab/blaze/internal/autofix"
	"github.com/blazelab/blaze/internal/detect"
)

var fixCmd = &cobra.Command{
	Use:   "fix <app-id> <chat-id> [error-file]",
	Short: "Run the remediation policy against an error blob",
	Long: `Classify raw error output into an incident and decide whether a fix
request may fire, recording the attempt against the error's fingerprint.
Reads the error text from the file argument, or stdin when omitted.

One process holds one policy state, so repeated invocations of this
command each start with a fresh attempt budget; the budget ceiling and
cooldown only bind within a long-running serve process. The command is
still useful for inspecting fingerprints and detector output.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(args, 2)
		if err != nil {
			return err
		}

		sourceStr, _ := cmd.Flags().GetString("source")
		source := autofix.Source(sourceStr)
		manual, _ := cmd.Flags().GetBool("manual")
		mode := autofix.ModeAuto
		if manual {
			mode = autofix.ModeManual
		}

		inc, ok := detect.ForSource(source).Detect(raw, time.Now())
		if !ok {
			cmd.Println("no error detected in input")
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		eng, err := buildEngine(cfg, st)
		if err != nil {
			return err
		}

		decision, err := eng.HandleIncident(cmd.Context(), args[0], args[1], inc, mode, printRequester{cmd})
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd, struct {
				Incident autofix.Incident `json:"incident"`
				Decision autofix.Decision `json:"decision"`
			}{inc, decision})
		}

		cmd.Printf("fingerprint: %s\n", inc.Fingerprint)
		if decision.Allowed {
			cmd.Printf("allowed (%s), attempt %d\n", decision.Reason, decision.AttemptNumber)
		} else {
			cmd.Printf("blocked (%s)\n", decision.Reason)
		}
		return nil
	},
}

// printRequester reports the fix request instead of dispatching it; the
// CLI has no model session to send it to.
type printRequester struct {
	cmd *cobra.Command
}

func (p printRequester) RequestFix(ctx context.Context, appID, chatID string, inc autofix.Incident, attemptNumber int) error {
	p.cmd.Printf("fix request for %s/%s: %s (attempt %d)\n", appID, chatID, inc.PrimaryError, attemptNumber)
	return nil
}

func init() {
	fixCmd.Flags().String("source", string(autofix.SourceServerStderr),
		fmt.Sprintf("incident source: %s, %s, %s, or %s",
			autofix.SourcePreviewBuild, autofix.SourcePreviewRuntime,
			autofix.SourceServerStderr, autofix.SourceBlazeApp))
	fixCmd.Flags().Bool("manual", false, "treat as a human-initiated request (never budget-blocked)")
	fixCmd.Flags().Bool("json", false, "print the incident and decision as JSON")
}
