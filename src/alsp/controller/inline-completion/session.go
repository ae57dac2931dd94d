package inlinecompletion

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/uber/assist-lsp/src/alsp/entity"
	"github.com/uber/assist-lsp/src/alsp/gateway/telemetry"
	"github.com/uber/assist-lsp/src/alsp/internal/clock"
	"github.com/uber/assist-lsp/src/alsp/internal/tracker"
	"go.uber.org/zap"
)

// _sessionHistoryCap bounds the closed-session log kept for telemetry.
const _sessionHistoryCap = 5

// CodeSession is one completion or edit request-response cycle, including
// all per-suggestion user-decision bookkeeping. All mutation goes through
// the owning SessionManager.
type CodeSession struct {
	ID          string
	Trigger     entity.TriggerMetadata
	Suggestions []entity.Suggestion
	State       entity.SessionState
	RequestedAt time.Time
	ClosedAt    time.Time

	// PreviousDecision and PreviousCloseTime carry the preceding session's
	// outcome forward for streak and latency telemetry.
	PreviousDecision  entity.TriggerDecision
	PreviousCloseTime time.Time

	decisions map[string]entity.UserDecision
}

// SessionManager owns the single current session for one request kind.
// There are two instances, one for completions and one for edit predictions.
type SessionManager struct {
	clock     clock.Clock
	telemetry telemetry.Emitter
	streak    *tracker.StreakTracker
	logger    *zap.SugaredLogger

	mu          sync.Mutex
	current     *CodeSession
	history     []*CodeSession
	fallbackSeq uint64
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(clk clock.Clock, emitter telemetry.Emitter, streak *tracker.StreakTracker, logger *zap.SugaredLogger) *SessionManager {
	return &SessionManager{
		clock:     clk,
		telemetry: emitter,
		streak:    streak,
		logger:    logger,
	}
}

// CreateSession closes any current session, pushes it into the history log,
// and returns a fresh Requesting session carrying the predecessor's outcome.
func (m *SessionManager) CreateSession(trigger entity.TriggerMetadata) *CodeSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	var previousDecision entity.TriggerDecision
	var previousClose time.Time
	if m.current != nil {
		m.closeLocked(m.current, false)
		previousDecision, _ = aggregateLocked(m.current)
		previousClose = m.current.ClosedAt
		m.pushHistoryLocked(m.current)
	}

	session := &CodeSession{
		ID:                m.newSessionIDLocked(),
		Trigger:           trigger,
		State:             entity.SessionStateRequesting,
		RequestedAt:       m.clock.Now(),
		PreviousDecision:  previousDecision,
		PreviousCloseTime: previousClose,
		decisions:         make(map[string]entity.UserDecision),
	}
	m.current = session
	return session
}

// ActivateSession transitions Requesting to Active, but only while the
// session is still current. A session superseded before its response arrived
// stays inert.
func (m *SessionManager) ActivateSession(session *CodeSession) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session != m.current || session.State != entity.SessionStateRequesting {
		return false
	}
	session.State = entity.SessionStateActive
	return true
}

// SetSuggestions attaches the backend response to the session.
func (m *SessionManager) SetSuggestions(session *CodeSession, suggestions []entity.Suggestion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.Suggestions = suggestions
}

// RecordError marks the session failed. Handled like a close for telemetry.
func (m *SessionManager) RecordError(session *CodeSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionFinished(session) {
		return
	}
	session.State = entity.SessionStateError
	m.closeLocked(session, false)
	if session == m.current {
		m.pushHistoryLocked(session)
		m.current = nil
	}
}

// RecordDecision stores the user's decision for one suggestion.
func (m *SessionManager) RecordDecision(session *CodeSession, itemID string, decision entity.UserDecision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessionFinished(session) {
		return
	}
	session.decisions[itemID] = decision
}

// CloseSession finalizes the session. Idempotent; suggestions without an
// explicit decision default to Discard.
func (m *SessionManager) CloseSession(session *CodeSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionFinished(session) {
		return
	}
	m.closeLocked(session, false)
	if session == m.current {
		m.pushHistoryLocked(session)
		m.current = nil
	}
}

// DiscardSession invalidates the session, forcing every suggestion's decision
// to Discard regardless of prior state. Idempotent.
func (m *SessionManager) DiscardSession(session *CodeSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionFinished(session) {
		return
	}
	m.closeLocked(session, true)
	if session == m.current {
		m.pushHistoryLocked(session)
		m.current = nil
	}
}

// CurrentSession returns the manager's current session, if any.
func (m *SessionManager) CurrentSession() *CodeSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// FindSession locates a session by id among the current session and history.
func (m *SessionManager) FindSession(id string) *CodeSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.ID == id {
		return m.current
	}
	for _, s := range m.history {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// AggregatedDecision returns the session-level trigger decision. Undefined
// (ok false) until the session is closed or discarded.
func (m *SessionManager) AggregatedDecision(session *CodeSession) (entity.TriggerDecision, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return aggregateLocked(session)
}

// RecentDecisions returns aggregated decisions for finished sessions,
// newest-first, for the classifier's accept-ratio feature.
func (m *SessionManager) RecentDecisions() []entity.TriggerDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]entity.TriggerDecision, 0, len(m.history))
	for i := len(m.history) - 1; i >= 0; i-- {
		if d, ok := aggregateLocked(m.history[i]); ok {
			out = append(out, d)
		}
	}
	return out
}

// closeLocked finalizes decisions, records the close time, and emits
// telemetry. Requires m.mu held and the session not yet finished.
func (m *SessionManager) closeLocked(session *CodeSession, discard bool) {
	for _, s := range session.Suggestions {
		if discard {
			session.decisions[s.ItemID] = entity.UserDecisionDiscard
			continue
		}
		if _, ok := session.decisions[s.ItemID]; !ok {
			session.decisions[s.ItemID] = entity.UserDecisionDiscard
		}
	}

	if discard {
		session.State = entity.SessionStateDiscarded
	} else if session.State != entity.SessionStateError {
		session.State = entity.SessionStateClosed
	}
	session.ClosedAt = m.clock.Now()

	decision, ok := aggregateLocked(session)
	if !ok {
		return
	}
	m.telemetry.EmitTriggerDecision(decision, session.Trigger.TriggerType)
	if decision == entity.TriggerDecisionAccept {
		m.telemetry.EmitAcceptStreak(m.streak.RecordAccept())
	} else if length, reset := m.streak.RecordNonAccept(); reset {
		m.logger.Debugw("accept streak broken", "length", length)
		m.telemetry.EmitAcceptStreak(0)
	}
}

// newSessionIDLocked returns a fresh unique id. If UUID generation fails the
// id is derived from the clock and a counter so sessions stay distinguishable.
func (m *SessionManager) newSessionIDLocked() string {
	id, err := uuid.NewV4()
	if err == nil {
		return id.String()
	}
	m.logger.Errorf("failed to generate session id: %s", err)
	return m.fallbackSessionIDLocked()
}

func (m *SessionManager) fallbackSessionIDLocked() string {
	m.fallbackSeq++
	return fmt.Sprintf("session-%d-%d", m.clock.Now().UnixNano(), m.fallbackSeq)
}

func (m *SessionManager) pushHistoryLocked(session *CodeSession) {
	m.history = append(m.history, session)
	if len(m.history) > _sessionHistoryCap {
		m.history = m.history[len(m.history)-_sessionHistoryCap:]
	}
}

func sessionFinished(session *CodeSession) bool {
	switch session.State {
	case entity.SessionStateClosed, entity.SessionStateDiscarded, entity.SessionStateError:
		return true
	}
	return false
}

// aggregateLocked applies the total order Accept > Reject > Empty > Discard.
func aggregateLocked(session *CodeSession) (entity.TriggerDecision, bool) {
	switch session.State {
	case entity.SessionStateDiscarded:
		return entity.TriggerDecisionDiscard, true
	case entity.SessionStateClosed, entity.SessionStateError:
	default:
		return "", false
	}

	if len(session.decisions) == 0 {
		return entity.TriggerDecisionEmpty, true
	}

	anyReject := false
	allEmpty := true
	for _, d := range session.decisions {
		switch d {
		case entity.UserDecisionAccept:
			return entity.TriggerDecisionAccept, true
		case entity.UserDecisionReject:
			anyReject = true
			allEmpty = false
		case entity.UserDecisionEmpty:
		default:
			allEmpty = false
		}
	}
	if anyReject {
		return entity.TriggerDecisionReject, true
	}
	if allEmpty {
		return entity.TriggerDecisionEmpty, true
	}
	return entity.TriggerDecisionDiscard, true
}
