package store

import "time"

// Run status values.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one invocation of the bootstrapper.
type Run struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    *time.Time
	Status        string
	ExitCode      int
	Error         string
	OSVersion     string
	CompilerPath  string
	BuildToolPath string
}

// Event is an installer decision taken during a run: an install, the
// removal or ignoring of a conflicting copy, or a later restore.
type Event struct {
	ID        int64
	RunID     string
	Action    string
	Tool      string
	Manager   string
	Detail    string
	CreatedAt time.Time
}
