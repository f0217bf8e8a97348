package domain

import (
	"time"
)

// ConversationState is the phase a session is in between turns.
// Classification and execution happen within a single turn and are never
// persisted, so only the phases below appear on a stored session.
type ConversationState string

const (
	// StateIdle means no operation is in progress.
	StateIdle ConversationState = "idle"
	// StateCollecting means the session is waiting for the next field value.
	StateCollecting ConversationState = "collecting"
	// StateConfirming means the session is waiting for a yes/no answer
	// before a destructive operation executes.
	StateConfirming ConversationState = "confirming"
	// StateReady means every field is collected but the last execution
	// attempt failed on an unavailable backend; the collected data is kept
	// so the user can retry without re-entering it.
	StateReady ConversationState = "ready"
)

// Intent is the classified user goal for the current conversation segment.
type Intent string

const (
	IntentNone    Intent = ""
	IntentCreate  Intent = "create"
	IntentRead    Intent = "read"
	IntentUpdate  Intent = "update"
	IntentDelete  Intent = "delete"
	IntentHelp    Intent = "help"
	IntentUnknown Intent = "unknown"
)

// FieldValue is one collected field, kept in collection order.
type FieldValue struct {
	Name  string
	Value string
}

// Session holds the conversational state for one session id across turns.
// It is mutated exclusively by the dialogue engine, one turn at a time.
type Session struct {
	ID                   string
	State                ConversationState
	Intent               Intent
	Collected            []FieldValue
	Missing              []string
	TargetEmail          string
	UpdateField          string
	AwaitingConfirmation bool
	TurnCount            int
	RetryCount           int
	UpdatedAt            time.Time
}

// NewSession returns a fresh idle session for the given id.
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		State:     StateIdle,
		Intent:    IntentNone,
		UpdatedAt: time.Now(),
	}
}

// Reset discards all in-flight state, returning the session to idle.
// The turn counter is preserved for telemetry.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Intent = IntentNone
	s.Collected = nil
	s.Missing = nil
	s.TargetEmail = ""
	s.UpdateField = ""
	s.AwaitingConfirmation = false
	s.RetryCount = 0
}

// CurrentField returns the field at the front of the missing queue, or
// empty when nothing remains to collect.
func (s *Session) CurrentField() string {
	if len(s.Missing) == 0 {
		return ""
	}
	return s.Missing[0]
}

// AdvanceField pops the front of the missing queue and clears the
// per-field retry counter.
func (s *Session) AdvanceField() {
	if len(s.Missing) > 0 {
		s.Missing = s.Missing[1:]
	}
	s.RetryCount = 0
}

// RequeueField puts a field back at the front of the missing queue so it
// is collected again on the next turn. Used for error recovery when a
// dispatched value turns out to be unusable.
func (s *Session) RequeueField(field string) {
	for _, f := range s.Missing {
		if f == field {
			return
		}
	}
	s.Missing = append([]string{field}, s.Missing...)
	s.RetryCount = 0
}

// SetField stores a validated value, replacing any earlier value for the
// same field while preserving first-collection order.
func (s *Session) SetField(name, value string) {
	for i := range s.Collected {
		if s.Collected[i].Name == name {
			s.Collected[i].Value = value
			return
		}
	}
	s.Collected = append(s.Collected, FieldValue{Name: name, Value: value})
}

// Field returns the collected value for a field name.
func (s *Session) Field(name string) (string, bool) {
	for _, fv := range s.Collected {
		if fv.Name == name {
			return fv.Value, true
		}
	}
	return "", false
}

// DropField removes a collected value, if present.
func (s *Session) DropField(name string) {
	for i := range s.Collected {
		if s.Collected[i].Name == name {
			s.Collected = append(s.Collected[:i], s.Collected[i+1:]...)
			return
		}
	}
}

// FieldMap returns the collected fields as a map for dispatch payloads.
func (s *Session) FieldMap() map[string]string {
	m := make(map[string]string, len(s.Collected))
	for _, fv := range s.Collected {
		m[fv.Name] = fv.Value
	}
	return m
}

// Touch bumps the activity timestamp used by the expiry sweeper.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}
