package domain

// JobStatus tracks the lifecycle of a single trim job.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusCreated   JobStatus = "created"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status ends a job's observable lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir  string `json:"outputDir"`
	Container  string `json:"container"`
	FFmpegPath string `json:"ffmpegPath"`
}

// TimeRange is a trim interval in seconds. End may still exceed the true
// source duration until the running job clamps it.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Length returns the interval length in seconds.
func (r TimeRange) Length() float64 {
	return r.End - r.Start
}

// Job stores the identity, inputs, and lifecycle status of one trim job.
type Job struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	SourcePath string    `json:"sourcePath"`
	OutputPath string    `json:"outputPath"`
	Range      TimeRange `json:"range"`
}
