package models

import "time"

// SessionStatus represents the state of a collection session
type SessionStatus string

const (
	SessionStatusIdle    SessionStatus = "idle"
	SessionStatusRunning SessionStatus = "running"
	SessionStatusDone    SessionStatus = "done"
	SessionStatusError   SessionStatus = "error"
)

// Terminal reports whether the status is one of the terminal states.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusDone || s == SessionStatusError
}

// Session is the single in-flight collection attempt and its accumulated
// state. Exactly one Session exists process-wide at a time; it is created
// fresh on Start and replaced on the next Start once terminal.
//
// Status transitions only idle -> running -> {done, error}. The session
// controller is the only writer; readers get copies via Report().
type Session struct {
	ID               string        `json:"id"`
	TargetID         string        `json:"target_id"`
	Status           SessionStatus `json:"status"`
	OriginalLocation string        `json:"original_location"`
	Aggregate        *Aggregate    `json:"-"`
	Queue            []SectionTask `json:"queue"`
	LastMessage      string        `json:"last_message"`
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at,omitempty"`
}

// NewSession creates a fresh running session for the given target.
func NewSession(id, targetID string) *Session {
	return &Session{
		ID:        id,
		TargetID:  targetID,
		Status:    SessionStatusRunning,
		Aggregate: NewAggregate(),
		StartedAt: time.Now(),
	}
}

// SessionReport is a read-only snapshot of a session for status queries.
type SessionReport struct {
	ID             string        `json:"id"`
	TargetID       string        `json:"target_id"`
	Status         SessionStatus `json:"status"`
	LastMessage    string        `json:"last_message"`
	Error          string        `json:"error,omitempty"`
	QueueRemaining int           `json:"queue_remaining"`
	SectionsMerged int           `json:"sections_merged"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
}

// Report builds a snapshot of the session's observable state.
func (s *Session) Report() *SessionReport {
	report := &SessionReport{
		ID:             s.ID,
		TargetID:       s.TargetID,
		Status:         s.Status,
		LastMessage:    s.LastMessage,
		Error:          s.Error,
		QueueRemaining: len(s.Queue),
		StartedAt:      s.StartedAt,
	}
	if s.Aggregate != nil {
		report.SectionsMerged = len(s.Aggregate.Sections)
	}
	if !s.FinishedAt.IsZero() {
		finished := s.FinishedAt
		report.FinishedAt = &finished
	}
	return report
}
