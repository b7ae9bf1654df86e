package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidJob is wrapped by job request validation failures.
	ErrInvalidJob = errors.New("invalid tagging job")

	// ErrJobNotFound is returned by status stores for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
)

// Job status values.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// JobRequest asks for one track file to be applied to one mask file.
// Empty tuning fields fall back to the service defaults; a nil Threshold
// does too, while an explicit zero tags storm-center cells only.
type JobRequest struct {
	ID         string   `json:"id,omitempty"`
	TrackFile  string   `json:"track_file"`
	MaskFile   string   `json:"mask_file"`
	OutputFile string   `json:"output_file"`
	Mesh       string   `json:"mesh,omitempty"`
	BinaryVar  string   `json:"binary_var,omitempty"`
	TagVar     string   `json:"tag_var,omitempty"`
	Threshold  *float64 `json:"threshold_m,omitempty"`
}

// ParseJobRequest decodes a request from a raw message and assigns an ID
// when the producer did not supply one.
func ParseJobRequest(raw RawEvent) (JobRequest, error) {
	var req JobRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return JobRequest{}, fmt.Errorf("parse job request: %w", err)
	}
	if req.ID == "" {
		req.ID = strings.TrimSpace(string(raw.Key))
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// Validate checks the fields every job needs.
func (r JobRequest) Validate() error {
	var missing []string
	if r.TrackFile == "" {
		missing = append(missing, "track_file")
	}
	if r.MaskFile == "" {
		missing = append(missing, "mask_file")
	}
	if r.OutputFile == "" {
		missing = append(missing, "output_file")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidJob, strings.Join(missing, ", "))
	}
	if r.OutputFile == r.MaskFile {
		return fmt.Errorf("%w: output_file must differ from mask_file", ErrInvalidJob)
	}
	if _, err := ParseMeshMode(r.Mesh); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if r.Threshold != nil && *r.Threshold < 0 {
		return fmt.Errorf("%w: negative threshold_m", ErrInvalidJob)
	}
	return nil
}

// JobResult is published once per job and mirrored in the status store.
type JobResult struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	TrackFile     string    `json:"track_file"`
	MaskFile      string    `json:"mask_file"`
	OutputFile    string    `json:"output_file,omitempty"`
	Storms        int       `json:"storms"`
	Observations  int       `json:"observations"`
	MatchedGroups int       `json:"matched_groups"`
	SkippedGroups int       `json:"skipped_groups"`
	TaggedCells   int       `json:"tagged_cells"`
	Overwrites    int       `json:"overwrites"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// ApplyStats copies tagging statistics onto the result.
func (r *JobResult) ApplyStats(s TagStats) {
	r.Observations = s.Observations
	r.MatchedGroups = s.MatchedGroups
	r.SkippedGroups = s.SkippedGroups
	r.TaggedCells = s.TaggedCells
	r.Overwrites = s.Overwrites
}

// Duration is the wall time between start and finish.
func (r JobResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewResultEvent encodes a result for the sink topic, keyed by job id.
func NewResultEvent(res JobResult) (OutputEvent, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize job result: %w", err)
	}
	return OutputEvent{
		Key:   []byte(res.ID),
		Value: data,
		Headers: map[string]string{
			"status":      res.Status,
			"finished_at": res.FinishedAt.Format(time.RFC3339),
		},
	}, nil
}
