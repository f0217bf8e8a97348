// Package dialogue implements the conversation state machine that turns an
// utterance stream into validated CRUD commands. One call to HandleMessage
// is one turn: classify or collect, validate, and when a command is
// complete, dispatch it.
package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/akulikov/regdesk/internal/crud"
	"github.com/akulikov/regdesk/internal/domain"
	"github.com/akulikov/regdesk/internal/nlu"
	"github.com/akulikov/regdesk/internal/session"
	"github.com/akulikov/regdesk/internal/validate"
)

// updateChoiceField is the pseudo-field collected during UPDATE flows to
// pick which registration field changes. It never reaches validation or
// persistence.
const updateChoiceField = "update_choice"

// defaultMaxRetries bounds consecutive rejections for one field before
// the operation is abandoned.
const defaultMaxRetries = 5

// TurnLogger receives both sides of every completed turn. Implemented by
// the transcript writer; nil disables transcript logging.
type TurnLogger interface {
	LogTurn(sessionID, role, content string)
}

// Engine orchestrates sessions, classification, validation and dispatch.
type Engine struct {
	sessions   *session.Store
	classifier nlu.Classifier
	dispatcher *crud.Dispatcher
	transcript TurnLogger
	maxRetries int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTranscript attaches a transcript logger.
func WithTranscript(t TurnLogger) Option {
	return func(e *Engine) { e.transcript = t }
}

// WithMaxRetries overrides the per-field retry bound.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// New creates a dialogue engine.
func New(sessions *session.Store, classifier nlu.Classifier, dispatcher *crud.Dispatcher, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		sessions:   sessions,
		classifier: classifier,
		dispatcher: dispatcher,
		maxRetries: defaultMaxRetries,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMessage processes one utterance for a session and returns the
// assistant reply plus the session id (generated when the caller passed
// none). It returns session.ErrBusy when a turn is already in flight for
// the same session.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, message string) (string, string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sess, release, err := e.sessions.AcquireTurn(sessionID)
	if err != nil {
		return "", sessionID, err
	}
	defer release()

	sess.TurnCount++
	defer sess.Touch()

	message = strings.TrimSpace(message)
	reply := e.step(ctx, sess, message)

	if e.transcript != nil {
		e.transcript.LogTurn(sessionID, "user", message)
		e.transcript.LogTurn(sessionID, "assistant", reply)
	}
	return reply, sessionID, nil
}

// Clear resets a session to its initial idle state. Idempotent.
func (e *Engine) Clear(sessionID string) {
	e.sessions.Clear(sessionID)
}

func (e *Engine) step(ctx context.Context, sess *domain.Session, message string) string {
	switch sess.State {
	case domain.StateIdle:
		return e.classifyTurn(ctx, sess, message)
	case domain.StateCollecting:
		return e.collectTurn(ctx, sess, message)
	case domain.StateConfirming:
		return e.confirmTurn(ctx, sess, message)
	case domain.StateReady:
		return e.readyTurn(ctx, sess, message)
	default:
		e.logger.Error("Session in impossible state, resetting",
			"session_id", sess.ID, "state", string(sess.State))
		sess.Reset()
		return startOverReply
	}
}

// classifyTurn handles an utterance arriving on an idle session: classify
// it, initialize the field queue for the intent, and seed any inline
// values the classifier extracted.
func (e *Engine) classifyTurn(ctx context.Context, sess *domain.Session, message string) string {
	res, err := e.classifier.Classify(ctx, message, sess)
	if err != nil {
		e.logger.Warn("Intent classification failed", "session_id", sess.ID, "error", err)
		return unknownReply
	}

	switch res.Intent {
	case domain.IntentCreate:
		sess.Intent = domain.IntentCreate
		sess.State = domain.StateCollecting
		sess.Missing = append([]string(nil), domain.RequiredFields...)
		e.seedExtracted(sess, res.Fields)
		return createIntro(sess.CurrentField())

	case domain.IntentRead, domain.IntentDelete, domain.IntentUpdate:
		sess.Intent = res.Intent
		sess.State = domain.StateCollecting
		sess.Missing = []string{domain.FieldEmail}
		if res.Intent == domain.IntentUpdate {
			sess.Missing = append(sess.Missing, updateChoiceField)
		}
		e.seedExtracted(sess, res.Fields)
		if sess.CurrentField() != domain.FieldEmail {
			// Email arrived inline; continue as if it was just collected.
			return e.afterFieldAccepted(ctx, sess)
		}
		return intentIntro(res.Intent)

	case domain.IntentHelp:
		return helpReply

	default:
		return unknownReply
	}
}

// seedExtracted re-validates classifier-extracted values and accepts the
// ones that pass, so the user is not asked for data they already gave.
// Invalid extractions are dropped silently and collected normally later.
func (e *Engine) seedExtracted(sess *domain.Session, fields map[string]string) {
	for _, field := range domain.RequiredFields {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		value, err := validate.Field(field, raw)
		if err != nil {
			continue
		}
		if !contains(sess.Missing, field) {
			continue
		}
		if field == domain.FieldEmail && sess.Intent != domain.IntentCreate {
			sess.TargetEmail = value
		} else {
			sess.SetField(field, value)
		}
		sess.Missing = remove(sess.Missing, field)
	}
}

// collectTurn interprets the utterance as the value for the field at the
// front of the queue. A rejected value never advances the queue.
func (e *Engine) collectTurn(ctx context.Context, sess *domain.Session, message string) string {
	field := sess.CurrentField()
	if field == "" {
		e.logger.Error("Collecting with empty field queue, resetting", "session_id", sess.ID)
		sess.Reset()
		return startOverReply
	}

	if field == updateChoiceField {
		return e.collectUpdateChoice(sess, message)
	}

	value, err := validate.Field(field, message)
	if err != nil {
		sess.RetryCount++
		if sess.RetryCount >= e.maxRetries {
			e.logger.Info("Retry limit reached, abandoning operation",
				"session_id", sess.ID, "field", field)
			sess.Reset()
			return tooManyAttemptsReply
		}
		var fieldErr *validate.FieldError
		if errors.As(err, &fieldErr) {
			return validationReply(field, fieldErr.Reason)
		}
		e.logger.Error("Validation failed without field error", "session_id", sess.ID, "error", err)
		sess.Reset()
		return startOverReply
	}

	if field == domain.FieldEmail && sess.Intent != domain.IntentCreate && sess.TargetEmail == "" {
		sess.TargetEmail = value
	} else {
		sess.SetField(field, value)
	}
	sess.AdvanceField()
	return e.afterFieldAccepted(ctx, sess)
}

func (e *Engine) collectUpdateChoice(sess *domain.Session, message string) string {
	field := identifyUpdateField(message)
	if field == "" {
		sess.RetryCount++
		if sess.RetryCount >= e.maxRetries {
			sess.Reset()
			return tooManyAttemptsReply
		}
		return updateChoiceRetryReply()
	}

	sess.UpdateField = field
	sess.AdvanceField()
	sess.Missing = append(sess.Missing, field)
	return newValuePrompt(field)
}

// afterFieldAccepted either prompts for the next missing field or, when
// the queue is empty, moves to confirmation (DELETE, UPDATE) or executes
// directly (CREATE, READ).
func (e *Engine) afterFieldAccepted(ctx context.Context, sess *domain.Session) string {
	if next := sess.CurrentField(); next != "" {
		if next == updateChoiceField {
			return updateChoicesReply()
		}
		return ackPromptFor(next)
	}

	switch sess.Intent {
	case domain.IntentCreate, domain.IntentRead:
		return e.execute(ctx, sess)
	case domain.IntentDelete:
		sess.State = domain.StateConfirming
		sess.AwaitingConfirmation = true
		return confirmDeleteReply(sess.TargetEmail)
	case domain.IntentUpdate:
		value, _ := sess.Field(sess.UpdateField)
		sess.State = domain.StateConfirming
		sess.AwaitingConfirmation = true
		return confirmUpdateReply(sess.UpdateField, value)
	default:
		e.logger.Error("Field queue drained without an intent", "session_id", sess.ID)
		sess.Reset()
		return startOverReply
	}
}

// confirmTurn accepts only yes/no. Negative aborts and discards pending
// state; affirmative executes.
func (e *Engine) confirmTurn(ctx context.Context, sess *domain.Session, message string) string {
	switch parseYesNo(message) {
	case answerYes:
		sess.AwaitingConfirmation = false
		return e.execute(ctx, sess)
	case answerNo:
		sess.Reset()
		return cancelledReply
	default:
		sess.RetryCount++
		if sess.RetryCount >= e.maxRetries {
			sess.Reset()
			return tooManyAttemptsReply
		}
		return confirmAgainReply
	}
}

// readyTurn handles a session parked after a backend failure: the command
// is fully collected, waiting for the user to retry or give up.
func (e *Engine) readyTurn(ctx context.Context, sess *domain.Session, message string) string {
	lower := strings.ToLower(strings.Trim(message, " .!?"))
	if lower == "retry" || lower == "try again" || parseYesNo(message) == answerYes {
		return e.execute(ctx, sess)
	}
	if lower == "cancel" || parseYesNo(message) == answerNo {
		sess.Reset()
		return cancelledReply
	}
	return readyAgainReply
}

// execute dispatches the completed command exactly once and routes the
// outcome: success resets to idle, recoverable failures return to
// collection at the field that must be corrected, and backend failures
// preserve state for a retry.
func (e *Engine) execute(ctx context.Context, sess *domain.Session) string {
	payload := crud.Payload{Email: sess.TargetEmail}
	switch sess.Intent {
	case domain.IntentCreate:
		payload.Fields = sess.FieldMap()
	case domain.IntentUpdate:
		payload.UpdateField = sess.UpdateField
		payload.UpdateValue, _ = sess.Field(sess.UpdateField)
	}

	outcome := e.dispatcher.Dispatch(ctx, sess.Intent, payload)
	if outcome.Success {
		intent := sess.Intent
		updateField := sess.UpdateField
		targetEmail := sess.TargetEmail
		sess.Reset()

		e.logger.Info("Operation completed",
			"session_id", sess.ID, "intent", string(intent), "turns", sess.TurnCount)

		switch intent {
		case domain.IntentCreate:
			return createdReply(outcome.Registration)
		case domain.IntentRead:
			return readReply(outcome.Registration)
		case domain.IntentUpdate:
			return updatedReply(outcome.Registration, updateField)
		default:
			return deletedReply(targetEmail)
		}
	}

	switch outcome.ErrorKind {
	case crud.ErrDuplicateEmail:
		failedField := domain.FieldEmail
		if sess.Intent == domain.IntentUpdate {
			failedField = sess.UpdateField
		}
		taken, _ := sess.Field(failedField)
		if taken == "" {
			taken = sess.TargetEmail
		}
		sess.DropField(failedField)
		sess.RequeueField(failedField)
		sess.State = domain.StateCollecting
		sess.AwaitingConfirmation = false
		return duplicateEmailReply(taken)

	case crud.ErrNotFound:
		missing := sess.TargetEmail
		sess.TargetEmail = ""
		sess.RequeueField(domain.FieldEmail)
		sess.State = domain.StateCollecting
		sess.AwaitingConfirmation = false
		return notFoundReply(missing)

	default:
		// Backend unavailable: keep everything the user entered.
		if sess.Intent == domain.IntentDelete || sess.Intent == domain.IntentUpdate {
			sess.State = domain.StateConfirming
			sess.AwaitingConfirmation = true
		} else {
			sess.State = domain.StateReady
		}
		return unavailableRetryReply
	}
}

// identifyUpdateField resolves a user's field choice by 1-based list
// number, field name, or label.
func identifyUpdateField(input string) string {
	lower := strings.ToLower(strings.TrimSpace(input))
	if lower == "" {
		return ""
	}

	if n, err := strconv.Atoi(strings.Trim(lower, ".")); err == nil {
		if n >= 1 && n <= len(domain.UpdatableFields) {
			return domain.UpdatableFields[n-1]
		}
		return ""
	}

	for _, field := range domain.UpdatableFields {
		spaced := strings.ReplaceAll(field, "_", " ")
		if strings.Contains(lower, spaced) || strings.Contains(lower, field) {
			return field
		}
	}
	// Single-word shorthands.
	switch {
	case strings.Contains(lower, "name"):
		return domain.FieldFullName
	case strings.Contains(lower, "email") || strings.Contains(lower, "mail"):
		return domain.FieldEmail
	case strings.Contains(lower, "phone") || strings.Contains(lower, "number"):
		return domain.FieldPhoneNumber
	case strings.Contains(lower, "birth") || strings.Contains(lower, "dob") || strings.Contains(lower, "date"):
		return domain.FieldDateOfBirth
	case strings.Contains(lower, "address"):
		return domain.FieldAddress
	}
	return ""
}

type answer int

const (
	answerUnclear answer = iota
	answerYes
	answerNo
)

func parseYesNo(message string) answer {
	switch strings.ToLower(strings.Trim(message, " .!?")) {
	case "yes", "y", "yeah", "yep", "sure", "ok", "okay", "confirm", "do it":
		return answerYes
	case "no", "n", "nope", "cancel", "stop", "abort", "never mind", "dont", "don't":
		return answerNo
	default:
		return answerUnclear
	}
}

func contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

func remove(fields []string, name string) []string {
	out := fields[:0]
	for _, f := range fields {
		if f != name {
			out = append(out, f)
		}
	}
	return out
}
