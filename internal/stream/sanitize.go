// Package stream makes partially-received model output safe to display.
// Control-tag markup is never shown to the user: closed tag spans are
// excised, and everything from the first still-open tag onward is
// withheld until its closer arrives.
package stream

import (
	"regexp"
	"strings"
)

// controlNames matches any reserved control tag name. Every <blaze-*>
// tag is treated generically here, including kinds the extractor does
// not model, plus the reasoning block name.
const controlNames = `blaze-[a-z0-9-]+|think`

var (
	// tagTokenRe matches a complete open or close control tag,
	// tolerating '>' inside quoted attribute values.
	tagTokenRe = regexp.MustCompile(`<(/?)(` + controlNames + `)((?:[^>"]|"[^"]*")*)>`)

	// openStartRe finds every place a control tag begins, complete or not.
	openStartRe = regexp.MustCompile(`<(` + controlNames + `)`)

	// partialNameRe matches a trailing '<' plus a strict prefix of a
	// control tag name at end of input ("<bla", "<blaze-wri", "<thi").
	partialNameRe = regexp.MustCompile(`<[a-z-]*$`)

	multiNewlineRe = regexp.MustCompile(`\n{3,}`)

	lastWriteOpenRe = regexp.MustCompile(`(?s)<blaze-write\b((?:[^>"]|"[^"]*")*)>?`)
)

type span struct {
	start, end int
}

// Sanitize returns the user-visible portion of text, which may be a
// prefix of a still-streaming response. Closed control-tag spans are
// removed entirely; if any control tag is open without a matching
// closer, everything from that tag's '<' onward is withheld. Runs of
// three or more newlines collapse to two and the result is trimmed.
//
// An empty return value means the message had no visible prose; the
// caller decides what placeholder to show.
func Sanitize(text string) string {
	closed, cut := scan(text)

	var b strings.Builder
	pos := 0
	for _, s := range closed {
		if s.start >= cut {
			break
		}
		if s.start > pos {
			b.WriteString(text[pos:s.start])
		}
		pos = s.end
	}
	if pos < cut {
		b.WriteString(text[pos:cut])
	}

	out := multiNewlineRe.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out)
}

// scan walks every control-tag token in text, pairing closers with the
// nearest same-name open entry (stack discipline that tolerates
// interleaved closes). It returns the closed spans in start order and
// the cut offset: the smallest start among tags left open, or len(text)
// when everything is balanced.
func scan(text string) (closed []span, cut int) {
	type openTag struct {
		name  string
		start int
	}
	var stack []openTag

	for _, loc := range tagTokenRe.FindAllStringSubmatchIndex(text, -1) {
		closing := loc[3] > loc[2] // the "/" group is non-empty
		name := text[loc[4]:loc[5]]
		if !closing {
			stack = append(stack, openTag{name: name, start: loc[0]})
			continue
		}
		// Pop the nearest same-name entry, not necessarily the top.
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].name == name {
				closed = append(closed, span{start: stack[i].start, end: loc[1]})
				stack = append(stack[:i], stack[i+1:]...)
				break
			}
		}
	}

	cut = len(text)
	for _, o := range stack {
		if o.start < cut {
			cut = o.start
		}
	}

	// An open tag whose '>' has not arrived yet never produced a token.
	// Treat its '<' as the cut too, as with a fully-typed open tag.
	if m := unterminatedOpen(text); m >= 0 && m < cut {
		cut = m
	}

	// Merge out-of-order or nested closed spans into start order with
	// no overlaps, so excision is a single forward pass.
	closed = mergeSpans(closed)
	return closed, cut
}

// unterminatedOpen returns the offset of a control-tag start that never
// becomes a complete token, or -1. tagTokenRe's body grammar is the
// quote-aware attribute grammar, so a failed match at the start means no
// token-terminating '>' is reachable: the tag is either still streaming
// or has a dangling attribute quote, and both must be withheld.
func unterminatedOpen(text string) int {
	for _, loc := range openStartRe.FindAllStringIndex(text, -1) {
		rest := text[loc[0]:]
		if tok := tagTokenRe.FindStringIndex(rest); tok != nil && tok[0] == 0 {
			continue // complete token, handled by scan
		}
		return loc[0]
	}
	// A bare prefix like "<bla" at the very end of the stream.
	if m := partialNameRe.FindStringIndex(text); m != nil {
		frag := text[m[0]+1 : m[1]]
		for _, name := range []string{"blaze-", "think"} {
			if frag != "" && strings.HasPrefix(name, frag) {
				return m[0]
			}
			if strings.HasPrefix(frag, "blaze-") {
				return m[0]
			}
		}
	}
	return -1
}

func mergeSpans(spans []span) []span {
	if len(spans) < 2 {
		return spans
	}
	sorted := make([]span, len(spans))
	copy(sorted, spans)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].start < sorted[j-1].start; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		last := &out[len(out)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// HasUnclosedWrite reports whether the LAST <blaze-write occurrence in
// text has no matching closer after it. This deliberately mirrors only
// the final tag's state and is narrower than Sanitize's stack-based
// detection: an earlier unclosed write followed by a closed one reports
// false here. The two checks serve different callers and are kept
// separate on purpose.
func HasUnclosedWrite(text string) bool {
	locs := lastWriteOpenRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return false
	}
	last := locs[len(locs)-1]
	return !strings.Contains(text[last[1]:], "</blaze-write>")
}
