// Package autofix decides when a detected build or runtime error may
// automatically trigger a remediation request. Attempts are budgeted
// per error fingerprint with a cooldown between automatic retries;
// manual requests are never blocked.
package autofix

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Source identifies where an incident was detected.
type Source string

const (
	SourcePreviewRuntime Source = "preview-runtime"
	SourcePreviewBuild   Source = "preview-build"
	SourceServerStderr   Source = "server-stderr"
	SourceBlazeApp       Source = "blaze-app"
)

// Incident is one detected error occurrence. It is created by a
// detector, consumed once by the policy engine, and never mutated.
type Incident struct {
	ID           string    `json:"id"`
	Source       Source    `json:"source"`
	PrimaryError string    `json:"primary_error"`
	Fingerprint  string    `json:"fingerprint"`
	Timestamp    time.Time `json:"timestamp"`
	Route        string    `json:"route,omitempty"`
	File         string    `json:"file,omitempty"`
	Frame        string    `json:"frame,omitempty"`
}

// NewIncident builds an Incident with its fingerprint computed.
func NewIncident(source Source, primaryError, file string, now time.Time) Incident {
	return Incident{
		ID:           uuid.NewString(),
		Source:       source,
		PrimaryError: primaryError,
		Fingerprint:  ComputeFingerprint(source, primaryError, file),
		Timestamp:    now,
		File:         file,
	}
}

const maxFingerprintLen = 240

var (
	digitRunRe   = regexp.MustCompile(`\d+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// ComputeFingerprint derives a stable key identifying "the same
// underlying error" across occurrences: digit runs collapse to '#' so
// line numbers and counts don't fragment otherwise-identical errors.
func ComputeFingerprint(source Source, primaryError, file string) string {
	fp := string(source) + "|" + normalize(file) + "|" + normalize(primaryError)
	if len(fp) > maxFingerprintLen {
		// Back up to a rune boundary so a multibyte character in the
		// error text is never split into invalid UTF-8.
		cut := maxFingerprintLen
		for cut > 0 && !utf8.RuneStart(fp[cut]) {
			cut--
		}
		fp = fp[:cut]
	}
	return fp
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = digitRunRe.ReplaceAllString(s, "#")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// nonActionablePatterns match errors caused by unavailable local
// infrastructure rather than the generated app. Asking the model to
// fix these would burn attempts on something it cannot change.
var nonActionablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)cannot connect to the docker daemon`),
	regexp.MustCompile(`(?i)docker(\s+desktop)?\s+is not running`),
	regexp.MustCompile(`(?i)container runtime (is )?(not reachable|unavailable)`),
	regexp.MustCompile(`(?i)\bEADDRINUSE\b`),
	regexp.MustCompile(`(?i)no space left on device`),
}

// IsActionable reports whether an error text is something a code fix
// could plausibly address. Non-actionable incidents are rejected before
// any policy check: no fingerprint, no recorded attempt.
func IsActionable(errText string) bool {
	for _, re := range nonActionablePatterns {
		if re.MatchString(errText) {
			return false
		}
	}
	return true
}
