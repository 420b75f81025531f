// Package report builds the machine-and-human-readable status block
// appended to an assistant turn after actions are applied, and extracts
// action-only markup for manual-approval review.
package report

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/blazelab/blaze/internal/apply"
)

// actionTagRes matches the span of each mutating action tag kind, one
// regex per kind so a tag only ends at its own closer (a write body
// that mentions another kind's closer must not cut the span short).
// Informational tags (chat-summary, status) are not part of an
// approval review.
var actionTagRes = func() []*regexp.Regexp {
	kinds := []string{"write", "rename", "delete", "search-replace", "add-dependency"}
	res := make([]*regexp.Regexp, len(kinds))
	for i, k := range kinds {
		res[i] = regexp.MustCompile(`(?s)<blaze-` + k + `\b((?:[^>"]|"[^"]*")*)>.*?</blaze-` + k + `>`)
	}
	return res
}()

// ActionsOnlyPlaceholder is shown in place of a message whose entire
// content was control tags. The sanitizer returns "" for such a
// message; callers displaying chat history substitute this.
const ActionsOnlyPlaceholder = "assistant performed actions with no visible text"

// StatusBlock renders the outcome of an apply as a <blaze-status> block.
// Being a control tag, it is hidden from live display by the sanitizer
// while remaining greppable in the persisted message.
func StatusBlock(res apply.Result) string {
	state := "applied"
	if !res.UpdatedFiles {
		state = "no-changes"
	}
	if res.Error != "" && !res.UpdatedFiles {
		state = "failed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<blaze-status state=%q>\n", state)
	for _, o := range res.Outcomes {
		if o.Detail != "" {
			fmt.Fprintf(&b, "%s %s: %s (%s)\n", o.Kind, o.Path, o.Result, o.Detail)
		} else {
			fmt.Fprintf(&b, "%s %s: %s\n", o.Kind, o.Path, o.Result)
		}
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", res.Error)
	}
	for _, f := range res.ExtraFiles {
		fmt.Fprintf(&b, "extra file: %s\n", f)
	}
	if res.ExtraFilesError != "" {
		fmt.Fprintf(&b, "extra files error: %s\n", res.ExtraFilesError)
	}
	b.WriteString("</blaze-status>")
	return b.String()
}

// AppendStatus returns the assistant text with a status block appended.
func AppendStatus(text string, res apply.Result) string {
	return strings.TrimRight(text, "\n") + "\n\n" + StatusBlock(res) + "\n"
}

// ActionMarkup strips all prose from a response and returns only the
// mutating action tag spans, separated by blank lines, for a reviewer
// approving actions before they run. Returns "" when there are none.
func ActionMarkup(text string) string {
	var locs [][]int
	for _, re := range actionTagRes {
		locs = append(locs, re.FindAllStringIndex(text, -1)...)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i][0] < locs[j][0] })
	spans := make([]string, 0, len(locs))
	for _, loc := range locs {
		spans = append(spans, text[loc[0]:loc[1]])
	}
	return strings.Join(spans, "\n\n")
}

// Summary is a one-line human description of an apply outcome, used by
// the CLI and logs.
func Summary(res apply.Result) string {
	if res.Error != "" && !res.UpdatedFiles {
		return "failed: " + res.Error
	}
	if !res.UpdatedFiles {
		return "no changes applied"
	}
	c := res.Counts
	parts := []string{}
	if c.Wrote > 0 {
		parts = append(parts, fmt.Sprintf("%d written", c.Wrote))
	}
	if c.Renamed > 0 {
		parts = append(parts, fmt.Sprintf("%d renamed", c.Renamed))
	}
	if c.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", c.Deleted))
	}
	if c.Edited > 0 {
		parts = append(parts, fmt.Sprintf("%d edited", c.Edited))
	}
	s := "applied: " + strings.Join(parts, ", ")
	if res.Error != "" {
		s += " (with errors: " + res.Error + ")"
	}
	return s
}
