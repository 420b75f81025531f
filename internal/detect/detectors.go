package detect

import (
	"regexp"
	"strings"
	"time"

	"github.com/blazelab/blaze/internal/autofix"
)

// maxErrorLen caps how much of a raw error a single incident retains.
const maxErrorLen = 2000

var (
	// errorLineRe matches lines a bundler or runtime flags as errors.
	errorLineRe = regexp.MustCompile(`(?i)^\s*(?:\[?(?:error|err)\]?[:\s]|(?:\w*Error|Exception)\b)`)

	// buildFileRe extracts "path:line:col" references from bundler output.
	buildFileRe = regexp.MustCompile(`([A-Za-z0-9_./-]+\.[a-z]{1,4}):\d+(?::\d+)?`)

	// frameRe matches a stack frame line: "at fn (file:line:col)".
	frameRe = regexp.MustCompile(`^\s*at\s+.*\((.*?):\d+:\d+\)`)

	// routeRe extracts an app route from the output (e.g. a request log).
	routeRe = regexp.MustCompile(`(?:GET|POST|PUT|PATCH|DELETE)\s+(/[a-zA-Z0-9/_-]*)`)
)

// BuildDetector reads bundler/compiler output.
type BuildDetector struct{}

func (d *BuildDetector) Detect(raw string, now time.Time) (autofix.Incident, bool) {
	primary, ok := primaryErrorLine(raw)
	if !ok {
		return autofix.Incident{}, false
	}
	file := ""
	if m := buildFileRe.FindStringSubmatch(primary); m != nil {
		file = m[1]
	} else if m := buildFileRe.FindStringSubmatch(raw); m != nil {
		file = m[1]
	}
	inc := autofix.NewIncident(autofix.SourcePreviewBuild, truncate(primary), file, now)
	return inc, true
}

// RuntimeDetector reads browser/runtime error reports, keeping the
// first stack frame for display.
type RuntimeDetector struct{}

func (d *RuntimeDetector) Detect(raw string, now time.Time) (autofix.Incident, bool) {
	primary, ok := primaryErrorLine(raw)
	if !ok {
		return autofix.Incident{}, false
	}
	file, frame := "", ""
	for _, line := range strings.Split(raw, "\n") {
		if m := frameRe.FindStringSubmatch(line); m != nil {
			frame = strings.TrimSpace(line)
			file = m[1]
			break
		}
	}
	inc := autofix.NewIncident(autofix.SourcePreviewRuntime, truncate(primary), file, now)
	inc.Frame = frame
	if m := routeRe.FindStringSubmatch(raw); m != nil {
		inc.Route = m[1]
	}
	return inc, true
}

// StderrDetector is the fallback for server stderr and app-reported
// errors: it takes the first error-looking line, or the last non-empty
// line when nothing matches, since tracebacks end with the message.
type StderrDetector struct {
	Source autofix.Source
}

func (d *StderrDetector) Detect(raw string, now time.Time) (autofix.Incident, bool) {
	primary, ok := primaryErrorLine(raw)
	if !ok {
		primary = lastNonEmptyLine(raw)
		if primary == "" {
			return autofix.Incident{}, false
		}
	}
	file := ""
	if m := buildFileRe.FindStringSubmatch(raw); m != nil {
		file = m[1]
	}
	return autofix.NewIncident(d.Source, truncate(primary), file, now), true
}

// primaryErrorLine returns the first line that looks like an error.
func primaryErrorLine(raw string) (string, bool) {
	for _, line := range strings.Split(raw, "\n") {
		if errorLineRe.MatchString(line) {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

func lastNonEmptyLine(raw string) string {
	lines := strings.Split(raw, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string) string {
	if len(s) > maxErrorLen {
		return s[:maxErrorLen]
	}
	return s
}
