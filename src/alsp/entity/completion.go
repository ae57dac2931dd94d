package entity

import "go.lsp.dev/protocol"

// SessionState tracks a completion or edit session through its lifecycle.
type SessionState string

const (
	// SessionStateRequesting indicates the backend request is in flight.
	SessionStateRequesting SessionState = "REQUESTING"
	// SessionStateActive indicates suggestions were shown to the user.
	SessionStateActive SessionState = "ACTIVE"
	// SessionStateClosed indicates the session ended with recorded decisions.
	SessionStateClosed SessionState = "CLOSED"
	// SessionStateDiscarded indicates the session was invalidated before feedback.
	SessionStateDiscarded SessionState = "DISCARD"
	// SessionStateError indicates the backend request failed.
	SessionStateError SessionState = "ERROR"
)

// UserDecision records what the user did with one suggestion.
type UserDecision string

const (
	// UserDecisionEmpty indicates the suggestion carried no content.
	UserDecisionEmpty UserDecision = "Empty"
	// UserDecisionAccept indicates the suggestion was accepted.
	UserDecisionAccept UserDecision = "Accept"
	// UserDecisionReject indicates the suggestion was explicitly rejected.
	UserDecisionReject UserDecision = "Reject"
	// UserDecisionDiscard indicates the suggestion was dropped without feedback.
	UserDecisionDiscard UserDecision = "Discard"
)

// TriggerDecision is the session-level aggregation of suggestion decisions.
// The total order for aggregation is Accept > Reject > Empty > Discard.
type TriggerDecision string

const (
	// TriggerDecisionAccept indicates at least one suggestion was accepted.
	TriggerDecisionAccept TriggerDecision = "Accept"
	// TriggerDecisionReject indicates suggestions were shown and all rejected.
	TriggerDecisionReject TriggerDecision = "Reject"
	// TriggerDecisionEmpty indicates the session produced no visible suggestions.
	TriggerDecisionEmpty TriggerDecision = "Empty"
	// TriggerDecisionDiscard indicates the session was superseded or invalidated.
	TriggerDecisionDiscard TriggerDecision = "Discard"
)

// TriggerType distinguishes how a completion request originated.
type TriggerType string

const (
	// TriggerTypeAuto indicates the request fired from the auto-trigger heuristics.
	TriggerTypeAuto TriggerType = "AutoTrigger"
	// TriggerTypeOnDemand indicates the user explicitly invoked completion.
	TriggerTypeOnDemand TriggerType = "OnDemand"
)

// Suggestion is one backend-produced completion or edit candidate.
type Suggestion struct {
	ItemID     string
	Content    string
	References []SuggestionReference
}

// SuggestionReference attributes part of a suggestion to licensed source material.
type SuggestionReference struct {
	LicenseName   string
	Repository    string
	URL           string
	RecommendSpan [2]int
}

// TriggerMetadata captures where and why a session was started.
type TriggerMetadata struct {
	URI         protocol.URI
	Position    protocol.Position
	TriggerType TriggerType
	Language    protocol.LanguageIdentifier
}
