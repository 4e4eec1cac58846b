package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Stage identifies one discrete unit of pipeline work.
type Stage string

const (
	StageNone      Stage = "none"
	StageFetch     Stage = "fetch"
	StageTransform Stage = "transform"
	StageInfer     Stage = "infer"
	StageNormalize Stage = "normalize"
	StageCompleted Stage = "completed"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var pipelineStages = []Stage{StageFetch, StageTransform, StageInfer, StageNormalize}

var stageSet = func() map[Stage]struct{} {
	set := map[Stage]struct{}{StageNone: {}, StageCompleted: {}}
	for _, stage := range pipelineStages {
		set[stage] = struct{}{}
	}
	return set
}()

// PipelineStages returns the ordered list of executable stages.
func PipelineStages() []Stage {
	cp := make([]Stage, len(pipelineStages))
	copy(cp, pipelineStages)
	return cp
}

// NextStage returns the stage following s in pipeline order. The stage after
// the final executable stage is StageCompleted.
func NextStage(s Stage) (Stage, bool) {
	switch s {
	case StageNone:
		return StageFetch, true
	case StageFetch:
		return StageTransform, true
	case StageTransform:
		return StageInfer, true
	case StageInfer:
		return StageNormalize, true
	case StageNormalize:
		return StageCompleted, true
	default:
		return "", false
	}
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// StageProgress tracks per-stage completion percent in [0,100].
type StageProgress map[Stage]float64

// NewStageProgress returns progress initialized to zero for every stage.
func NewStageProgress() StageProgress {
	progress := make(StageProgress, len(pipelineStages))
	for _, stage := range pipelineStages {
		progress[stage] = 0
	}
	return progress
}

// Overall derives the aggregate percent across all pipeline stages.
func (p StageProgress) Overall() float64 {
	if len(pipelineStages) == 0 {
		return 0
	}
	var sum float64
	for _, stage := range pipelineStages {
		sum += p[stage]
	}
	return sum / float64(len(pipelineStages))
}

// Clone returns an independent copy.
func (p StageProgress) Clone() StageProgress {
	cp := make(StageProgress, len(p))
	for stage, pct := range p {
		cp[stage] = pct
	}
	return cp
}

// Job represents one pipeline run for one source item.
type Job struct {
	ID              int64
	OwnerID         string
	SourceItemID    int64 // zero when the submission transaction has not linked an item
	Status          Status
	CurrentStage    Stage
	Progress        StageProgress
	OverallProgress float64
	Metadata        Bag
	RetryCount      int
	MaxRetries      int
	StatusMessage   string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	LastHeartbeat   *time.Time
	NextAttemptAt   *time.Time
}

// IsTerminal reports whether the job admits no further stage mutation.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RunnableStage returns the stage the dispatcher should execute next: the
// current stage while it has not reached 100 percent, otherwise its successor.
func (j *Job) RunnableStage() (Stage, bool) {
	if j.IsTerminal() {
		return "", false
	}
	if j.CurrentStage == StageNone {
		return StageFetch, true
	}
	if j.CurrentStage == StageCompleted {
		return "", false
	}
	if j.Progress[j.CurrentStage] < 100 {
		return j.CurrentStage, true
	}
	next, ok := NextStage(j.CurrentStage)
	if !ok || next == StageCompleted {
		return "", false
	}
	return next, true
}

// RecomputeOverall refreshes the derived overall percent. The value is
// monotonic: it never drops below a previously reported figure.
func (j *Job) RecomputeOverall() {
	derived := j.Progress.Overall()
	if derived > j.OverallProgress {
		j.OverallProgress = derived
	}
}

// SetFailed marks the job failed with the given error message.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.StatusMessage = message
	j.LastHeartbeat = nil
}

// SourceItem is the external item processed end to end. The gatekeeper
// populates descriptive fields once; stage handlers update only the derived
// duration/language fields; normalize stamps the terminal fields.
type SourceItem struct {
	ID              int64
	ExternalID      string
	Title           string
	Author          string
	Description     string
	ThumbnailURL    string
	PublishedAt     *time.Time
	DurationSeconds float64
	Language        string
	TranscribedAt   *time.Time
	UnitCount       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ResultUnit is one ordered transcript segment for a source item.
type ResultUnit struct {
	SourceItemID  int64
	SequenceIndex int
	StartSeconds  float64
	EndSeconds    float64
	Confidence    float64
	Content       string
}

// DeadLetterRecord is an immutable snapshot of a permanently failed job.
type DeadLetterRecord struct {
	ID           int64
	JobID        int64
	OwnerID      string
	Stage        Stage
	Reason       string
	SnapshotJSON string
	Requeued     bool
	RequeuedBy   string
	CreatedAt    time.Time
	RequeuedAt   *time.Time
}
