package jobs

import "time"

// Kind names an event type as seen by front-ends.
type Kind string

const (
	KindOutput    Kind = "output"
	KindProgress  Kind = "progress"
	KindJobStatus Kind = "job_status"
	KindSuccess   Kind = "success"
	KindError     Kind = "error"
	KindCancelled Kind = "cancelled"
)

// Terminal reports whether k ends a job.
func (k Kind) Terminal() bool {
	switch k {
	case KindSuccess, KindError, KindCancelled:
		return true
	default:
		return false
	}
}

// State is the coordinator's lifecycle position.
type State string

const (
	StateIdle          State = "idle"
	StatePreconverting State = "preconverting"
	StateEncoding      State = "encoding"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"
)

// Active reports whether a job is running in state s.
func (s State) Active() bool {
	return s == StatePreconverting || s == StateEncoding
}

// Event is one entry in the job event stream.
type Event struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"ts"`
	JobID    string    `json:"job_id,omitempty"`
	Kind     Kind      `json:"type"`
	Content  string    `json:"content,omitempty"`
	Progress float64   `json:"progress,omitempty"`
	State    State     `json:"state,omitempty"`
}
