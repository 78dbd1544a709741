package domain

import "time"

// FailureRecord is one ledger row describing a failed run
type FailureRecord struct {
	Scenario   string    `db:"scenario"`
	HUC12      string    `db:"huc12"`
	FlowpathID string    `db:"fpath"`
	Hostname   string    `db:"hostname"`
	ErrorPath  string    `db:"error_path"`
	TimedOut   bool      `db:"timed_out"`
	ExitCode   int       `db:"exit_code"`
	RecordedAt time.Time `db:"recorded_at"`
}

// NewFailureRecord builds a ledger row for key
func NewFailureRecord(key RunKey, hostname, errorPath string, timedOut bool, exitCode int, at time.Time) *FailureRecord {
	return &FailureRecord{
		Scenario:   key.Scenario,
		HUC12:      key.HUC12,
		FlowpathID: key.FlowpathID,
		Hostname:   hostname,
		ErrorPath:  errorPath,
		TimedOut:   timedOut,
		ExitCode:   exitCode,
		RecordedAt: at.UTC(),
	}
}
