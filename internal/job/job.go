// Package job provides the Job aggregate and the lifecycle controller that
// submits jobs through a provider adapter and polls them to a terminal state.
// It includes the Job entity with its phase state machine, the live job
// repository, and the transport port towards the proxy endpoints.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/videogen/internal/provider"
)

// Phase is the lifecycle state of a Job as tracked by the controller.
type Phase string

const (
	// PhaseDraft is a prompt that has not been sent yet.
	PhaseDraft Phase = "draft"
	// PhaseSubmitting means the create call is in flight.
	PhaseSubmitting Phase = "submitting"
	// PhaseSubmitted means the provider accepted the job and assigned an id.
	PhaseSubmitted Phase = "submitted"
	// PhasePolling means detail requests are being issued on an interval.
	PhasePolling Phase = "polling"
	// PhaseCompleted means a video is available or the provider reported completion.
	PhaseCompleted Phase = "completed"
	// PhaseFailed means the provider reported failure.
	PhaseFailed Phase = "failed"
	// PhaseError means the submission itself failed.
	PhaseError Phase = "error"
)

// Provider status values the controller sets or reacts to. The provider
// vocabulary is open; any other value is carried through as-is.
const (
	StatusSubmitting = "submitting"
	StatusSubmitted  = "submitted"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusError      = "error"
	StatusUnknown    = provider.StatusUnknown
)

// ErrInvalidTransition is returned when an invalid phase transition is attempted.
var ErrInvalidTransition = errors.New("job: invalid phase transition")

// validTransitions defines which phase transitions are allowed.
var validTransitions = map[Phase][]Phase{
	PhaseDraft:      {PhaseSubmitting},
	PhaseSubmitting: {PhaseSubmitted, PhaseError},
	PhaseSubmitted:  {PhasePolling, PhaseCompleted, PhaseFailed},
	PhasePolling:    {PhaseCompleted, PhaseFailed},
	PhaseCompleted:  {},
	PhaseFailed:     {},
	PhaseError:      {},
}

// canTransition checks if a transition from one phase to another is valid.
func canTransition(from, to Phase) bool {
	for _, p := range validTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions can happen from p.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseError
}

// Key identifies a job once the provider assigned its id.
type Key struct {
	Provider provider.Name
	ID       string
}

// String returns "provider/id".
func (k Key) String() string {
	return string(k.Provider) + "/" + k.ID
}

// Job is a single generation request tracked across its lifecycle.
type Job struct {
	mu sync.RWMutex

	// ID is the provider-assigned identifier. Empty until creation succeeds.
	ID string
	// Provider is fixed at creation.
	Provider provider.Name
	// Item holds the prompt, the optional first frame, and per-item overrides.
	Item provider.Item
	// Settings is the snapshot taken at submission time.
	Settings provider.Settings
	// Phase is the lifecycle state.
	Phase Phase
	// Status is the last status reported by the provider, or one set locally.
	Status string
	// VideoURL is set once the provider reports a playable artifact and never overwritten.
	VideoURL string
	// Error contains the last error message, if any.
	Error string
	// CreatedAt is when the draft was created.
	CreatedAt time.Time
	// UpdatedAt is when the job last changed.
	UpdatedAt time.Time
	// SubmittedAt is when the provider accepted the job.
	SubmittedAt time.Time
	// CompletedAt is when the job reached a terminal phase.
	CompletedAt time.Time
}

// NewDraft creates a job in PhaseDraft. It has no identity until submitted.
func NewDraft(p provider.Name, item provider.Item, settings provider.Settings) *Job {
	now := time.Now()
	return &Job{
		Provider:  p,
		Item:      item,
		Settings:  settings,
		Phase:     PhaseDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key returns the (provider, id) identity of the job.
func (j *Job) Key() Key {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Key{Provider: j.Provider, ID: j.ID}
}

// Prompt returns the generation instruction.
func (j *Job) Prompt() string {
	return j.Item.Prompt
}

// TransitionTo attempts to change the job phase.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(phase Phase) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(phase)
}

func (j *Job) transitionLocked(phase Phase) error {
	if !canTransition(j.Phase, phase) {
		return ErrInvalidTransition
	}

	j.Phase = phase
	j.UpdatedAt = time.Now()

	switch phase {
	case PhaseSubmitting:
		j.Status = StatusSubmitting
	case PhaseSubmitted:
		j.SubmittedAt = j.UpdatedAt
		j.Status = StatusSubmitted
	case PhaseCompleted, PhaseFailed, PhaseError:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Submitting marks the create call as in flight.
func (j *Job) Submitting() error {
	return j.TransitionTo(PhaseSubmitting)
}

// Submitted records the provider-assigned id.
func (j *Job) Submitted(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(PhaseSubmitted); err != nil {
		return err
	}
	j.ID = id
	return nil
}

// Fail ends a submission in PhaseError with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(PhaseError); err != nil {
		return err
	}
	j.Status = StatusError
	j.Error = errMsg
	return nil
}

// CompleteWith marks the job completed with a known video URL.
func (j *Job) CompleteWith(videoURL string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(PhaseCompleted); err != nil {
		return err
	}
	j.Status = StatusCompleted
	if j.VideoURL == "" {
		j.VideoURL = videoURL
	}
	return nil
}

// Apply merges a poll result into the job and reports whether the job is now
// terminal. A result is terminal when it carries a video URL or its status is
// exactly "completed" or "failed". Results arriving after a terminal phase are
// ignored.
func (j *Job) Apply(d provider.Detail) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Phase.IsTerminal() {
		return true
	}

	j.Status = d.Status
	if j.VideoURL == "" && d.VideoURL != "" {
		j.VideoURL = d.VideoURL
	}
	if d.Error != "" {
		j.Error = d.Error
	}
	j.UpdatedAt = time.Now()

	var next Phase
	switch {
	case d.VideoURL != "" || d.Status == StatusCompleted:
		next = PhaseCompleted
	case d.Status == StatusFailed:
		next = PhaseFailed
	default:
		next = PhasePolling
	}
	if next != j.Phase {
		_ = j.transitionLocked(next)
	}
	return j.Phase.IsTerminal()
}

// GetPhase returns the current phase (thread-safe).
func (j *Job) GetPhase() Phase {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Phase
}

// GetStatus returns the current status (thread-safe).
func (j *Job) GetStatus() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal phase.
func (j *Job) IsTerminal() bool {
	return j.GetPhase().IsTerminal()
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		Provider:    j.Provider,
		Item:        j.Item,
		Settings:    j.Settings,
		Phase:       j.Phase,
		Status:      j.Status,
		VideoURL:    j.VideoURL,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		SubmittedAt: j.SubmittedAt,
		CompletedAt: j.CompletedAt,
	}
}
