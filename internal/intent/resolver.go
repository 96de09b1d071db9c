package intent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"careline-agent/internal/domain"
)

// TriggerThreshold is the minimum similarity ratio for a fuzzy trigger match
// to win without consulting the classifier.
const TriggerThreshold = 0.75

// defaultClassifierTimeout bounds the external classifier call; on expiry
// the resolver degrades to the greeting label.
const defaultClassifierTimeout = 5 * time.Second

// Classifier is the external label classifier consulted when no trigger
// clears the threshold.
type Classifier interface {
	ClassifyIntent(ctx context.Context, text string) (string, error)
}

// classifierLabels is the closed label set the external classifier may
// return. Anything else (including errors and timeouts) becomes the greeting
// label.
var classifierLabels = map[string]domain.Intent{
	"HUMAN_HANDOFF": domain.IntentHumanHandoff,
	"INTAKE":        domain.IntentIntake,
	"PRESENCE_PING": domain.IntentPresencePing,
	"GREETING":      domain.IntentGreeting,
}

// GuardrailRule rewrites a freshly resolved intent based on conversation
// state. Rules are evaluated in order; the first match wins.
type GuardrailRule struct {
	Name string
	When func(prior domain.State, resolved domain.Intent, risk bool) bool
	Then domain.Intent
}

// DefaultGuardrails is the ordered policy applied after trigger/classifier
// resolution. Keeping it in one slice keeps the policy auditable.
func DefaultGuardrails() []GuardrailRule {
	return []GuardrailRule{
		{
			// Risk always wins, regardless of how the raw intent resolved.
			Name: "risk-escalation",
			When: func(_ domain.State, _ domain.Intent, risk bool) bool { return risk },
			Then: domain.IntentHumanHandoff,
		},
		{
			// Mid-questionnaire answers stay with the intake agent until the
			// questionnaire completes, unless the user asks for a human.
			Name: "mid-intake",
			When: func(prior domain.State, resolved domain.Intent, _ bool) bool {
				return prior == domain.StateTriage && resolved != domain.IntentHumanHandoff
			},
			Then: domain.IntentIntake,
		},
		{
			// Same for the qualification funnel: free-form answers must not
			// bounce the conversation to another agent mid-flow.
			Name: "mid-qualification",
			When: func(prior domain.State, resolved domain.Intent, _ bool) bool {
				return prior == domain.StateQualifying && resolved != domain.IntentHumanHandoff
			},
			Then: domain.IntentQualification,
		},
		{
			// A greeting after the intro has been acknowledged moves the
			// conversation into qualification instead of greeting again.
			Name: "greeting-after-intro",
			When: func(prior domain.State, resolved domain.Intent, _ bool) bool {
				return resolved == domain.IntentGreeting && prior != domain.StateInitial
			},
			Then: domain.IntentQualification,
		},
		{
			// Post-payment intake requires a confirmed payment; without it
			// the user gets the how-it-works explanation instead.
			Name: "intake-requires-payment",
			When: func(prior domain.State, resolved domain.Intent, _ bool) bool {
				return resolved == domain.IntentIntake &&
					prior != domain.StateTriage && prior != domain.StateOnboardingComplete
			},
			Then: domain.IntentFAQHowItWorks,
		},
	}
}

// Resolver maps raw text to an intent id: fuzzy trigger match, classifier
// fallback, then guardrail rewrites.
type Resolver struct {
	catalog           *Catalog
	classifier        Classifier
	guardrails        []GuardrailRule
	classifierTimeout time.Duration
	logger            *slog.Logger
}

// ResolverOption configures NewResolver.
type ResolverOption func(*Resolver)

// WithGuardrails replaces the default guardrail rules.
func WithGuardrails(rules []GuardrailRule) ResolverOption {
	return func(r *Resolver) { r.guardrails = rules }
}

// WithClassifierTimeout overrides the classifier call bound.
func WithClassifierTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.classifierTimeout = d }
}

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver builds a Resolver over the given catalog and classifier.
func NewResolver(catalog *Catalog, classifier Classifier, opts ...ResolverOption) (*Resolver, error) {
	if catalog == nil {
		return nil, errors.New("intent: catalog must not be nil")
	}
	if classifier == nil {
		return nil, errors.New("intent: classifier must not be nil")
	}
	r := &Resolver{
		catalog:           catalog,
		classifier:        classifier,
		guardrails:        DefaultGuardrails(),
		classifierTimeout: defaultClassifierTimeout,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the intent for text given the prior conversation state and
// the risk flag for this message. It never returns an error: classifier
// failures degrade to the greeting label before guardrails run.
func (r *Resolver) Resolve(ctx context.Context, text string, prior domain.State, risk bool) domain.Intent {
	resolved, score := r.catalog.BestTrigger(text)
	if score < TriggerThreshold {
		resolved = r.classify(ctx, text)
	} else {
		r.logger.Debug("intent trigger match", "intent", resolved, "score", score)
	}

	for _, rule := range r.guardrails {
		if rule.When(prior, resolved, risk) {
			r.logger.Debug("guardrail rewrite", "rule", rule.Name, "from", resolved, "to", rule.Then)
			return rule.Then
		}
	}
	return resolved
}

func (r *Resolver) classify(ctx context.Context, text string) domain.Intent {
	cctx, cancel := context.WithTimeout(ctx, r.classifierTimeout)
	defer cancel()

	label, err := r.classifier.ClassifyIntent(cctx, text)
	if err != nil {
		r.logger.Warn("classifier unavailable, using greeting label", "err", err)
		return domain.IntentGreeting
	}
	if intent, ok := classifierLabels[label]; ok {
		return intent
	}
	return domain.IntentGreeting
}
