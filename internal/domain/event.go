package domain

import "time"

// Telemetry stage labels, one per pipeline phase.
const (
	StageAnalysis  = "analysis"
	StageExecution = "execution"
	StageFollowUp  = "followup"
	StageError     = "error"
)

// MessageEvent is one append-only telemetry row per turn phase. The
// orchestrator only writes these; analytics consumes them elsewhere.
type MessageEvent struct {
	ID       string
	Identity string
	Stage    string
	Payload  map[string]any
	At       time.Time
}
