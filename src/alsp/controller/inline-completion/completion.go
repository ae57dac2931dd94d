// Package inlinecompletion drives completion and edit-prediction sessions:
// auto-trigger evaluation, backend calls with debounce and stale-response
// guards, and per-suggestion user-decision bookkeeping.
package inlinecompletion

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/assist-lsp/src/alsp/entity"
	"github.com/uber/assist-lsp/src/alsp/gateway/backend"
	"github.com/uber/assist-lsp/src/alsp/gateway/telemetry"
	"github.com/uber/assist-lsp/src/alsp/internal/clock"
	"github.com/uber/assist-lsp/src/alsp/internal/tracker"
	"github.com/uber/assist-lsp/src/alsp/internal/trigger"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

const _nameKey = "inline-completion"

// Config holds the settings for this controller.
type Config struct {
	// EditDebounceMs delays edit-prediction backend calls; a document change
	// during the delay restarts it.
	EditDebounceMs int `yaml:"editDebounceMs"`
	// MaxEditRetries bounds retries when the document changes mid-flight.
	MaxEditRetries int `yaml:"maxEditRetries"`
	// UseClassifier adds the scored classifier as a secondary trigger signal.
	UseClassifier bool `yaml:"useClassifier"`
}

// Request is one completion or edit-prediction invocation.
type Request struct {
	URI              protocol.DocumentURI
	Position         protocol.Position
	Language         protocol.LanguageIdentifier
	Filename         string
	LeftFileContent  string
	RightFileContent string
	TriggerType      entity.TriggerType
}

// Result is returned to the UI layer. Always populated, even on failure.
type Result struct {
	Items     []entity.Suggestion
	SessionID string
}

// Controller handles completion and edit-prediction requests.
type Controller interface {
	// OnInlineCompletion serves a completion request. While one request is in
	// flight, new arrivals return an empty result immediately.
	OnInlineCompletion(ctx context.Context, req Request) Result

	// OnEditCompletion serves an edit-prediction request with debounce,
	// document-change invalidation, and bounded retry.
	OnEditCompletion(ctx context.Context, req Request) Result

	// LogCompletionResults applies the user's decisions to a completion
	// session and closes it.
	LogCompletionResults(sessionID string, decisions map[string]entity.UserDecision)

	// LogEditResults applies the user's decisions to an edit session, records
	// rejections for similarity suppression, and closes it.
	LogEditResults(sessionID string, decisions map[string]entity.UserDecision)

	HandleDocumentOpen(uri protocol.DocumentURI, content string)
	HandleDocumentChange(uri protocol.DocumentURI, content string)
	HandleDocumentClose(uri protocol.DocumentURI)
	HandleCursorMove(uri protocol.DocumentURI, position protocol.Position)

	CompletionSessions() *SessionManager
	EditSessions() *SessionManager
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Backend     backend.Service
	Telemetry   telemetry.Emitter
	RecentEdits *tracker.RecentEditTracker
	Cursors     *tracker.CursorTracker
	Rejected    *tracker.RejectedEditTracker
	Streak      *tracker.StreakTracker
	Coverage    *tracker.CoverageTracker
	Clock       clock.Clock
	Logger      *zap.SugaredLogger
	Stats       tally.Scope
	Config      config.Provider
}

type controller struct {
	backend     backend.Service
	telemetry   telemetry.Emitter
	recentEdits *tracker.RecentEditTracker
	cursors     *tracker.CursorTracker
	rejected    *tracker.RejectedEditTracker
	coverage    *tracker.CoverageTracker
	clock       clock.Clock
	logger      *zap.SugaredLogger
	stats       tally.Scope
	cfg         Config
	triggerCfg  trigger.Config

	completions *SessionManager
	edits       *SessionManager

	completionInFlight atomic.Bool
	editInFlight       atomic.Bool

	versionMu   sync.Mutex
	docVersions map[protocol.DocumentURI]uint64
}

// New creates a new controller for inline completion.
func New(p Params) Controller {
	var cfg Config
	if err := p.Config.Get(_nameKey).Populate(&cfg); err != nil {
		p.Logger.With("plugin", _nameKey).Warnf("unable to load completion config, using defaults: %s", err)
	}
	if cfg.EditDebounceMs <= 0 {
		cfg.EditDebounceMs = 500
	}
	if cfg.MaxEditRetries <= 0 {
		cfg.MaxEditRetries = 3
	}

	logger := p.Logger.With("plugin", _nameKey)
	return &controller{
		backend:     p.Backend,
		telemetry:   p.Telemetry,
		recentEdits: p.RecentEdits,
		cursors:     p.Cursors,
		rejected:    p.Rejected,
		coverage:    p.Coverage,
		clock:       p.Clock,
		logger:      logger,
		stats:       p.Stats.SubScope("inline_completion"),
		cfg:         cfg,
		triggerCfg:  trigger.DefaultConfig(),
		completions: NewSessionManager(p.Clock, p.Telemetry, p.Streak, logger),
		edits:       NewSessionManager(p.Clock, p.Telemetry, p.Streak, logger),
		docVersions: make(map[protocol.DocumentURI]uint64),
	}
}

func (c *controller) OnInlineCompletion(ctx context.Context, req Request) Result {
	if !c.completionInFlight.CompareAndSwap(false, true) {
		c.stats.Counter("completion_rejected_in_flight").Inc(1)
		return Result{}
	}
	defer c.completionInFlight.Store(false)

	c.cursors.TrackPosition(req.URI, req.Position)

	session := c.completions.CreateSession(entity.TriggerMetadata{
		URI:         req.URI,
		Position:    req.Position,
		TriggerType: req.TriggerType,
		Language:    req.Language,
	})

	resp, err := c.backend.GenerateSuggestions(ctx, c.buildRequest(req))
	if err != nil {
		c.logger.Errorf("completion request failed: %s", err)
		c.completions.RecordError(session)
		return Result{SessionID: session.ID}
	}

	if !c.completions.ActivateSession(session) {
		// A newer request superseded this one before the response arrived.
		c.stats.Counter("completion_stale_response").Inc(1)
		return Result{}
	}
	c.completions.SetSuggestions(session, resp.Suggestions)
	c.markEmptySuggestions(c.completions, session, resp.Suggestions)

	return Result{Items: resp.Suggestions, SessionID: session.ID}
}

func (c *controller) OnEditCompletion(ctx context.Context, req Request) Result {
	if req.TriggerType == entity.TriggerTypeAuto && !c.shouldAutoTrigger(req) {
		return Result{}
	}

	if !c.editInFlight.CompareAndSwap(false, true) {
		c.stats.Counter("edit_rejected_in_flight").Inc(1)
		return Result{}
	}
	defer c.editInFlight.Store(false)

	for attempt := 0; attempt < c.cfg.MaxEditRetries; attempt++ {
		if !c.waitDebounce(ctx, req.URI) {
			return Result{}
		}

		version := c.docVersion(req.URI)
		session := c.edits.CreateSession(entity.TriggerMetadata{
			URI:         req.URI,
			Position:    req.Position,
			TriggerType: req.TriggerType,
			Language:    req.Language,
		})

		resp, err := c.backend.GenerateSuggestions(ctx, c.buildRequest(req))
		if err != nil {
			c.logger.Errorf("edit prediction request failed: %s", err)
			c.edits.RecordError(session)
			return Result{SessionID: session.ID}
		}

		if c.docVersion(req.URI) != version {
			// The document changed mid-flight; the result is stale.
			c.stats.Counter("edit_retry_document_changed").Inc(1)
			c.edits.DiscardSession(session)
			continue
		}

		if !c.edits.ActivateSession(session) {
			c.stats.Counter("edit_stale_response").Inc(1)
			return Result{}
		}

		kept := make([]entity.Suggestion, 0, len(resp.Suggestions))
		for _, s := range resp.Suggestions {
			if c.rejected.IsSimilarToRejected(s.Content, req.URI) {
				c.stats.Counter("edit_suppressed_rejected").Inc(1)
				continue
			}
			kept = append(kept, s)
		}
		c.edits.SetSuggestions(session, kept)
		c.markEmptySuggestions(c.edits, session, kept)

		return Result{Items: kept, SessionID: session.ID}
	}

	c.logger.Debugw("edit prediction gave up after retries", "uri", req.URI)
	return Result{}
}

func (c *controller) LogCompletionResults(sessionID string, decisions map[string]entity.UserDecision) {
	c.logResults(c.completions, sessionID, decisions, false)
}

func (c *controller) LogEditResults(sessionID string, decisions map[string]entity.UserDecision) {
	c.logResults(c.edits, sessionID, decisions, true)
}

func (c *controller) logResults(manager *SessionManager, sessionID string, decisions map[string]entity.UserDecision, trackRejections bool) {
	session := manager.FindSession(sessionID)
	if session == nil {
		c.logger.Debugw("decisions for unknown session", "sessionId", sessionID)
		return
	}

	for itemID, decision := range decisions {
		manager.RecordDecision(session, itemID, decision)
		if trackRejections && decision == entity.UserDecisionReject {
			for _, s := range session.Suggestions {
				if s.ItemID == itemID {
					c.rejected.RecordRejection(session.Trigger.URI, session.Trigger.Position, s.Content)
					break
				}
			}
		}
		if decision == entity.UserDecisionAccept {
			for _, s := range session.Suggestions {
				if s.ItemID == itemID {
					c.coverage.RecordAcceptance(len(s.Content))
					break
				}
			}
		}
		if decision == entity.UserDecisionAccept || decision == entity.UserDecisionReject {
			c.telemetry.EmitSuggestionDecision(decision)
		}
	}
	manager.CloseSession(session)

	if stats := c.coverage.Snapshot(); stats.TotalChars > 0 {
		c.telemetry.EmitCoverage(stats.Percentage, stats.AcceptedChars, stats.TotalChars)
	}
}

func (c *controller) HandleDocumentOpen(uri protocol.DocumentURI, content string) {
	c.recentEdits.HandleDocumentOpen(uri, content)
	c.coverage.HandleDocumentOpen(uri, len(content))
}

func (c *controller) HandleDocumentChange(uri protocol.DocumentURI, content string) {
	c.bumpDocVersion(uri)
	c.recentEdits.HandleDocumentChange(uri, content)
	c.coverage.HandleDocumentChange(uri, len(content))
}

func (c *controller) HandleDocumentClose(uri protocol.DocumentURI) {
	c.recentEdits.HandleDocumentClose(uri)
	c.cursors.ClearHistory(uri)
	c.coverage.HandleDocumentClose(uri)
}

func (c *controller) HandleCursorMove(uri protocol.DocumentURI, position protocol.Position) {
	c.cursors.TrackPosition(uri, position)
}

func (c *controller) CompletionSessions() *SessionManager {
	return c.completions
}

func (c *controller) EditSessions() *SessionManager {
	return c.edits
}

func (c *controller) shouldAutoTrigger(req Request) bool {
	fired := trigger.ShouldTrigger(c.triggerCfg, trigger.Params{
		URI:              req.URI,
		Line:             int(req.Position.Line),
		RightFileContent: req.RightFileContent,
		RecentEdits:      c.recentEdits,
	})
	if !fired {
		return false
	}

	if c.cfg.UseClassifier {
		result := trigger.Classify(trigger.ClassifierInput{
			LeftContextAtCurLine: lastLine(req.LeftFileContent),
			LeftFileContent:      req.LeftFileContent,
			RightFileContent:     req.RightFileContent,
			Language:             string(req.Language),
			RecentEditDiffs:      c.recentEdits.GenerateEditContexts(req.URI),
			RecentDecisions:      c.edits.RecentDecisions(),
		})
		if !result.ShouldTrigger {
			c.stats.Counter("edit_classifier_suppressed").Inc(1)
			return false
		}
	}
	return true
}

// waitDebounce blocks until no document change has arrived for the debounce
// interval, restarting on each change. Returns false on context cancellation.
func (c *controller) waitDebounce(ctx context.Context, uri protocol.DocumentURI) bool {
	for {
		version := c.docVersion(uri)
		if !c.sleep(ctx, time.Duration(c.cfg.EditDebounceMs)*time.Millisecond) {
			return false
		}
		if c.docVersion(uri) == version {
			return true
		}
	}
}

func (c *controller) sleep(ctx context.Context, d time.Duration) bool {
	done := make(chan struct{})
	timer := c.clock.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return true
	case <-ctx.Done():
		timer.Stop()
		return false
	}
}

func (c *controller) docVersion(uri protocol.DocumentURI) uint64 {
	c.versionMu.Lock()
	defer c.versionMu.Unlock()
	return c.docVersions[uri]
}

func (c *controller) bumpDocVersion(uri protocol.DocumentURI) {
	c.versionMu.Lock()
	defer c.versionMu.Unlock()
	c.docVersions[uri]++
}

func (c *controller) buildRequest(req Request) backend.Request {
	return backend.Request{
		FileContext: backend.FileContext{
			URI:              req.URI,
			Filename:         req.Filename,
			Language:         req.Language,
			LeftFileContent:  req.LeftFileContent,
			RightFileContent: req.RightFileContent,
		},
		Position:            req.Position,
		TriggerType:         req.TriggerType,
		SupplementalContext: c.recentEdits.GenerateEditContexts(req.URI),
	}
}

// markEmptySuggestions records Empty for suggestions without content so the
// aggregation sees them correctly.
func (c *controller) markEmptySuggestions(manager *SessionManager, session *CodeSession, suggestions []entity.Suggestion) {
	for _, s := range suggestions {
		if strings.TrimSpace(s.Content) == "" {
			manager.RecordDecision(session, s.ItemID, entity.UserDecisionEmpty)
		}
	}
}

func lastLine(content string) string {
	if idx := strings.LastIndexByte(content, '\n'); idx >= 0 {
		return content[idx+1:]
	}
	return content
}
