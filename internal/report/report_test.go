package report

import (
	"strings"
	"testing"

	"github.com/blazelab/blaze/internal/apply"
	"github.com/blazelab/blaze/internal/stream"
	"github.com/blazelab/blaze/internal/tags"
)

func TestStatusBlock_Applied(t *testing.T) {
	res := apply.Result{
		UpdatedFiles: true,
		Counts:       apply.Counts{Wrote: 1},
		Outcomes: []apply.ActionOutcome{
			{Kind: tags.KindWrite, Path: "src/a.js", Result: apply.OutcomeApplied},
		},
	}

	block := StatusBlock(res)
	if !strings.HasPrefix(block, `<blaze-status state="applied">`) {
		t.Errorf("block = %q, want applied state", block)
	}
	if !strings.Contains(block, "write src/a.js: applied") {
		t.Errorf("block = %q, want the write outcome listed", block)
	}
}

func TestStatusBlock_FailedState(t *testing.T) {
	res := apply.Result{Error: "write src/a.js: disk full"}
	block := StatusBlock(res)
	if !strings.Contains(block, `state="failed"`) {
		t.Errorf("block = %q, want failed state", block)
	}
	if !strings.Contains(block, "error: write src/a.js: disk full") {
		t.Errorf("block = %q, want the error line", block)
	}
}

func TestAppendStatus_HiddenBySanitizer(t *testing.T) {
	text := "I updated the file for you."
	out := AppendStatus(text, apply.Result{UpdatedFiles: true})

	visible := stream.Sanitize(out)
	if visible != text {
		t.Errorf("sanitized = %q, want the status block hidden, prose intact", visible)
	}
}

func TestActionMarkup(t *testing.T) {
	text := `Here's the change:
<blaze-write path="a.js">content</blaze-write>
Some explanation.
<blaze-delete path="b.js"></blaze-delete>
Done!`

	got := ActionMarkup(text)
	if strings.Contains(got, "explanation") || strings.Contains(got, "Done!") {
		t.Errorf("ActionMarkup() = %q, prose must be stripped", got)
	}
	if !strings.Contains(got, `<blaze-write path="a.js">content</blaze-write>`) {
		t.Errorf("ActionMarkup() = %q, missing write span", got)
	}
	if !strings.Contains(got, `<blaze-delete path="b.js"></blaze-delete>`) {
		t.Errorf("ActionMarkup() = %q, missing delete span", got)
	}
}

func TestActionMarkup_CloserOfOtherKindInBody(t *testing.T) {
	// A write body may legitimately contain another kind's closer as
	// literal text; the span must still run to </blaze-write>.
	text := `Intro.
<blaze-write path="doc.md">about </blaze-delete> markers</blaze-write>
Outro.`

	got := ActionMarkup(text)
	want := `<blaze-write path="doc.md">about </blaze-delete> markers</blaze-write>`
	if got != want {
		t.Errorf("ActionMarkup() = %q, want %q", got, want)
	}
}

func TestActionMarkup_NoActions(t *testing.T) {
	if got := ActionMarkup("just prose <blaze-chat-summary>s</blaze-chat-summary>"); got != "" {
		t.Errorf("ActionMarkup() = %q, want empty", got)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		res  apply.Result
		want string
	}{
		{apply.Result{}, "no changes applied"},
		{apply.Result{UpdatedFiles: true, Counts: apply.Counts{Wrote: 2, Deleted: 1}}, "applied: 2 written, 1 deleted"},
		{apply.Result{Error: "boom"}, "failed: boom"},
	}
	for _, tt := range tests {
		if got := Summary(tt.res); got != tt.want {
			t.Errorf("Summary(%+v) = %q, want %q", tt.res, got, tt.want)
		}
	}
}
