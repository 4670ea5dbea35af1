package models

import "time"

// CandidateScore is the held-out score of one candidate estimator
type CandidateScore struct {
	Name      string  `json:"name"`
	R2        float64 `json:"r2"`
	MAE       float64 `json:"mae"`
	NFeatures int     `json:"n_features"`
	Error     string  `json:"error,omitempty"`
}

// TargetStatus is the outcome of training one target
type TargetStatus string

const (
	TargetTrained TargetStatus = "trained"
	TargetSkipped TargetStatus = "skipped"
	TargetFailed  TargetStatus = "failed"
)

// TargetReport describes what training did for one target
type TargetReport struct {
	Target     string           `json:"target"`
	Status     TargetStatus     `json:"status"`
	Version    string           `json:"version,omitempty"`
	Winner     string           `json:"winner,omitempty"`
	R2         float64          `json:"r2,omitempty"`
	MAE        float64          `json:"mae,omitempty"`
	Features   []string         `json:"features,omitempty"`
	Candidates []CandidateScore `json:"candidates,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// TrainingReport summarizes one training invocation over all targets
type TrainingReport struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Rows       int            `json:"rows"`
	Targets    []TargetReport `json:"targets"`
}

// Trained counts the targets that produced a staged version
func (r *TrainingReport) Trained() int {
	n := 0
	for _, t := range r.Targets {
		if t.Status == TargetTrained {
			n++
		}
	}
	return n
}

// RunRecord is one candidate row of the training history
type RunRecord struct {
	RunID     string    `json:"run_id" ch:"run_id"`
	Target    string    `json:"target" ch:"target"`
	Version   string    `json:"version" ch:"version"`
	Candidate string    `json:"candidate" ch:"candidate"`
	R2        float64   `json:"r2" ch:"r2"`
	MAE       float64   `json:"mae" ch:"mae"`
	NFeatures uint32    `json:"n_features" ch:"n_features"`
	Winner    bool      `json:"winner" ch:"winner"`
	TrainedAt time.Time `json:"trained_at" ch:"trained_at"`
}

// ModelVersion is a staged version as listed by the models endpoint
type ModelVersion struct {
	Version   string    `json:"version"`
	RunID     string    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelSummary is the production and staged state of one target
type ModelSummary struct {
	Target     string         `json:"target"`
	Production *ModelVersion  `json:"production,omitempty"`
	Model      string         `json:"model,omitempty"`
	R2         *float64       `json:"r2,omitempty"`
	MAE        *float64       `json:"mae,omitempty"`
	Staged     []ModelVersion `json:"staged"`
}

// JobKind names the pipeline operations the worker runs
type JobKind string

const (
	JobTrain   JobKind = "train"
	JobPromote JobKind = "promote"
)

// JobState is the lifecycle state of a pipeline job
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobStatus is the externally visible state of a pipeline job
type JobStatus struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	Targets    []string   `json:"targets"`
	State      JobState   `json:"state"`
	Error      string     `json:"error,omitempty"`
	Result     any        `json:"result,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
