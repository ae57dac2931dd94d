// Package telemetry provides a fire-and-forget event emitter backed by the
// metrics scope. Emission failures never reach callers.
package telemetry

import (
	"github.com/uber-go/tally"
	"github.com/uber/assist-lsp/src/alsp/entity"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Emitter records completion and tool lifecycle events.
type Emitter interface {
	EmitTriggerDecision(decision entity.TriggerDecision, triggerType entity.TriggerType)
	EmitSuggestionDecision(decision entity.UserDecision)
	EmitAcceptStreak(length int)
	EmitToolInvocation(server, tool string, success bool)
	EmitServerState(server string, status entity.ServerStatus)
	EmitCoverage(percentage float64, acceptedChars, totalChars int)
}

// Params defines the dependencies of this package.
type Params struct {
	fx.In

	Stats  tally.Scope
	Logger *zap.SugaredLogger
}

type emitter struct {
	stats  tally.Scope
	logger *zap.SugaredLogger
}

// New creates an Emitter.
func New(p Params) Emitter {
	return &emitter{
		stats:  p.Stats.SubScope("telemetry"),
		logger: p.Logger.With("plugin", "telemetry"),
	}
}

func (e *emitter) EmitTriggerDecision(decision entity.TriggerDecision, triggerType entity.TriggerType) {
	e.stats.Tagged(map[string]string{
		"decision": string(decision),
		"trigger":  string(triggerType),
	}).Counter("trigger_decision").Inc(1)
}

func (e *emitter) EmitSuggestionDecision(decision entity.UserDecision) {
	e.stats.Tagged(map[string]string{"decision": string(decision)}).Counter("suggestion_decision").Inc(1)
}

func (e *emitter) EmitAcceptStreak(length int) {
	e.stats.Gauge("accept_streak").Update(float64(length))
}

func (e *emitter) EmitToolInvocation(server, tool string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	e.stats.Tagged(map[string]string{
		"server":  server,
		"tool":    tool,
		"outcome": outcome,
	}).Counter("tool_invocation").Inc(1)
}

func (e *emitter) EmitServerState(server string, status entity.ServerStatus) {
	e.stats.Tagged(map[string]string{
		"server": server,
		"status": string(status),
	}).Counter("server_state").Inc(1)
}

func (e *emitter) EmitCoverage(percentage float64, acceptedChars, totalChars int) {
	e.stats.Gauge("coverage_percentage").Update(percentage)
	e.stats.Gauge("coverage_accepted_chars").Update(float64(acceptedChars))
	e.stats.Gauge("coverage_total_chars").Update(float64(totalChars))
}
