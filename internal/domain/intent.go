package domain

import "strings"

// Intent is the classified purpose of an inbound message. The set is closed:
// the resolver only ever emits the constants below, and the dispatcher maps
// anything it does not recognize to the generative fallback.
type Intent string

const (
	IntentGreeting      Intent = "GREETING"
	IntentPresencePing  Intent = "PRESENCE_PING"
	IntentIntake        Intent = "INTAKE"
	IntentHumanHandoff  Intent = "HUMAN_HANDOFF"
	IntentQualification Intent = "QUALIFICATION"
	IntentPitchBasic    Intent = "PITCH_BASIC"
	IntentPitchPremium  Intent = "PITCH_PREMIUM"
	IntentCallToAction  Intent = "CALL_TO_ACTION"
	IntentPriceRefusal  Intent = "PRICE_REFUSAL"

	IntentFAQHowItWorks   Intent = "FAQ_HOW_IT_WORKS"
	IntentFAQPayment      Intent = "FAQ_PAYMENT"
	IntentFAQCancellation Intent = "FAQ_CANCELLATION"
	IntentFAQBot          Intent = "FAQ_BOT"
	IntentFollowUpQual    Intent = "FOLLOW_UP_QUALIFICATION"
	IntentFollowUpPayment Intent = "FOLLOW_UP_PAYMENT"
	IntentUnknown         Intent = "UNKNOWN"
)

// faqPrefix is the catalog namespace routed to the FAQ agent even for ids
// that have no dedicated registry entry.
const faqPrefix = "FAQ_"

// IsFAQ reports whether the intent belongs to the FAQ namespace.
func (i Intent) IsFAQ() bool {
	return strings.HasPrefix(string(i), faqPrefix)
}

// IntentDefinition is one static catalog entry. Loaded once and treated as
// immutable for the life of the process.
type IntentDefinition struct {
	ID              Intent   `yaml:"id"`
	Triggers        []string `yaml:"triggers"`
	Response        string   `yaml:"response"`
	EscalateToHuman bool     `yaml:"escalate_to_human"`
}
