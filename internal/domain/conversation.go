package domain

import "time"

// State is the conversation funnel position persisted per identity.
type State string

const (
	StateInitial            State = "INITIAL"
	StateGreetingSent       State = "GREETING_SENT"
	StateQualifying         State = "QUALIFYING"
	StatePitched            State = "PITCHED"
	StateCTASent            State = "CTA_SENT"
	StateAwaitingPayment    State = "AWAITING_PAYMENT"
	StateRefused            State = "REFUSED"
	StateTriage             State = "TRIAGE"
	StateOnboardingComplete State = "ONBOARDING_COMPLETE"
	StateRiskDetected       State = "RISK_DETECTED"
	StateAwaitingHuman      State = "AWAITING_HUMAN"
)

// Terminal reports whether automated handling has ended for the conversation.
// Both terminal states still accept inbound messages; they just never produce
// an automated reply beyond escalation notices.
func (s State) Terminal() bool {
	return s == StateRiskDetected || s == StateAwaitingHuman
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	switch s {
	case StateInitial, StateGreetingSent, StateQualifying, StatePitched,
		StateCTASent, StateAwaitingPayment, StateRefused, StateTriage,
		StateOnboardingComplete, StateRiskDetected, StateAwaitingHuman:
		return true
	}
	return false
}

// Well-known meta keys. Meta is additive: handlers only ever set new keys or
// clear the sub-keys they own (e.g. a completed questionnaire cursor).
const (
	MetaQualificationStep   = "qualification.step"
	MetaQualificationAnswer = "qualification.answer." // + step number
	MetaIntakeStep          = "intake.step"
	MetaIntakeAnswer        = "intake.answer." // + step number
	MetaLeadScore           = "lead.score"
	MetaProvisionalScore    = "lead.provisional_score"
	MetaSentiment           = "sentiment.last"
	MetaFollowUpSent        = "followup." // + kind + ".sent"
	MetaPlan                = "plan.offered"
)

// ConversationContext is the single state record per conversation identity.
type ConversationContext struct {
	Identity         string
	State            State
	Meta             map[string]any
	LastUserText     string
	LastBotText      string
	InteractionCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewConversationContext returns the default record used before the first
// write for an identity.
func NewConversationContext(identity string) *ConversationContext {
	return &ConversationContext{
		Identity: identity,
		State:    StateInitial,
		Meta:     map[string]any{},
	}
}

// MetaInt reads an integer meta value, tolerating the numeric types JSON and
// driver round-trips produce.
func (c *ConversationContext) MetaInt(key string) (int, bool) {
	v, ok := c.Meta[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// MetaBool reads a boolean meta value.
func (c *ConversationContext) MetaBool(key string) bool {
	v, ok := c.Meta[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// ContextPatch is an atomic field-level update applied by the store. Nil
// fields are left untouched, so concurrent writers never clobber fields they
// did not set.
type ContextPatch struct {
	State        *State
	LastUserText *string
	LastBotText  *string
	// MetaSet overwrites the given meta keys.
	MetaSet map[string]any
	// MetaSetIfAbsent writes keys only when they are not present yet. Used
	// for idempotent per-step questionnaire answers: replaying a turn sees
	// the existing answer and does not advance the cursor twice.
	MetaSetIfAbsent map[string]any
	// MetaClear removes meta sub-keys (e.g. a completed cursor).
	MetaClear []string
	// BumpInteraction increments the monotonic interaction counter.
	BumpInteraction bool
}

// Sentiment is the per-message distribution returned by the analyzer. The
// three components sum to roughly 1.0.
type Sentiment struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// Dominant returns the label of the strongest component, preferring neutral
// on ties.
func (s Sentiment) Dominant() string {
	switch {
	case s.Positive > s.Neutral && s.Positive >= s.Negative:
		return "positive"
	case s.Negative > s.Neutral && s.Negative > s.Positive:
		return "negative"
	default:
		return "neutral"
	}
}

// NeutralSentiment is the degraded default used when the analyzer times out
// or returns garbage.
func NeutralSentiment() Sentiment {
	return Sentiment{Positive: 0.33, Negative: 0.33, Neutral: 0.34}
}

// HandlerResult is what an agent proposes for one turn. The dispatcher
// applies it in a single store write; agents never touch the store directly.
type HandlerResult struct {
	// Reply is the outbound message, empty when the agent deliberately says
	// nothing (escalation notifies humans instead).
	Reply string
	// NextState, when non-nil, is the single explicit transition for this
	// turn. Nil leaves the state unchanged.
	NextState *State
	// MetaSet / MetaSetIfAbsent / MetaClear become the meta part of the
	// applied patch.
	MetaSet         map[string]any
	MetaSetIfAbsent map[string]any
	MetaClear       []string
	// Notices are messages for the human support channel, not the end user.
	Notices []Notice
}

// Notice is an out-of-band message to a human operator.
type Notice struct {
	Identity string
	Text     string
}

// Transition returns a HandlerResult helper value with the state set.
func (r HandlerResult) Transition(s State) HandlerResult {
	r.NextState = &s
	return r
}
