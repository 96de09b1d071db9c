package usecase

import (
	"careline-agent/internal/domain"
)

// FollowUpKind names one scheduled re-engagement campaign. Each kind targets
// a set of stalled states and is sent at most once per conversation.
type FollowUpKind string

const (
	FollowUpQualification FollowUpKind = "qualification"
	FollowUpPayment       FollowUpKind = "payment"
)

// FlagKey is the meta key recording that this kind was already sent.
func (k FollowUpKind) FlagKey() string {
	return domain.MetaFollowUpSent + string(k) + ".sent"
}

// Intent maps the kind to its catalog entry.
func (k FollowUpKind) Intent() domain.Intent {
	switch k {
	case FollowUpQualification:
		return domain.IntentFollowUpQual
	case FollowUpPayment:
		return domain.IntentFollowUpPayment
	}
	return domain.IntentUnknown
}

// States is the set of funnel positions this kind may nudge.
func (k FollowUpKind) States() []domain.State {
	switch k {
	case FollowUpQualification:
		return []domain.State{domain.StateQualifying, domain.StatePitched, domain.StateCTASent}
	case FollowUpPayment:
		return []domain.State{domain.StateAwaitingPayment}
	}
	return nil
}

func followUpKindForIntent(id domain.Intent) (FollowUpKind, bool) {
	switch id {
	case domain.IntentFollowUpQual:
		return FollowUpQualification, true
	case domain.IntentFollowUpPayment:
		return FollowUpPayment, true
	}
	return "", false
}
