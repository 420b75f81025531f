// Package detect classifies raw process output into autofix incidents:
// a detector extracts the primary error line, the offending file, and
// the route where one can be recovered, so the policy engine can
// fingerprint the failure.
package detect

import (
	"time"

	"github.com/blazelab/blaze/internal/autofix"
)

// Detector converts one blob of raw output into an incident.
// ok is false when the output contains nothing that looks like an error.
type Detector interface {
	Detect(raw string, now time.Time) (autofix.Incident, bool)
}

// ForSource returns the detector for an incident source.
func ForSource(source autofix.Source) Detector {
	switch source {
	case autofix.SourcePreviewBuild:
		return &BuildDetector{}
	case autofix.SourcePreviewRuntime:
		return &RuntimeDetector{}
	default:
		return &StderrDetector{Source: source}
	}
}
