package app

import "time"

// Run tracks one CLI invocation. StartSeq is the history high-water mark
// when the run began; a run that appended history is archived on Close.
type Run struct {
	ID        string
	Command   string
	StartSeq  int64
	StartedAt time.Time
}

// NewRun creates a Run whose ID is derived from its start time.
func NewRun(command string, startSeq int64, startedAt time.Time) *Run {
	return &Run{
		ID:        startedAt.UTC().Format("20060102T150405Z"),
		Command:   command,
		StartSeq:  startSeq,
		StartedAt: startedAt,
	}
}

// Mutated reports whether history grew past StartSeq.
func (r *Run) Mutated(currentSeq int64) bool {
	return currentSeq > r.StartSeq
}
