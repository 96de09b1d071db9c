// Package usecase contains the message orchestration pipeline: analysis
// (risk, intent, sentiment), agent dispatch and the follow-up operations the
// scheduler and payment webhook invoke.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"careline-agent/internal/domain"
	"careline-agent/internal/intent"
	"careline-agent/internal/risk"
	"careline-agent/internal/scoring"
)

// ConversationStore is the persistence surface the orchestrator needs.
type ConversationStore interface {
	Get(ctx context.Context, identity string) (*domain.ConversationContext, error)
	Apply(ctx context.Context, identity string, patch domain.ContextPatch) (*domain.ConversationContext, error)
	Delete(ctx context.Context, identity string) error
}

// SentimentAnalyzer scores the emotional tone of one message.
type SentimentAnalyzer interface {
	AnalyzeSentiment(ctx context.Context, text string) (domain.Sentiment, error)
}

// Generator produces a free-text reply. avoid, when non-empty, is a previous
// reply the generation must not repeat.
type Generator interface {
	Generate(ctx context.Context, userText, avoid string) (string, error)
}

// Deliverer sends an outbound message and returns the provider message id.
type Deliverer interface {
	Deliver(ctx context.Context, identity, text string) (string, error)
}

// Recorder persists pipeline telemetry events.
type Recorder interface {
	Record(ctx context.Context, identity, stage string, payload map[string]any) error
}

// IntentResolver maps raw text to an intent given the prior state.
type IntentResolver interface {
	Resolve(ctx context.Context, text string, prior domain.State, risk bool) domain.Intent
}

const (
	defaultSentimentTimeout = 3 * time.Second

	genericApology = "Desculpa, tive um problema aqui do meu lado. 🙏 Pode tentar " +
		"de novo em instantes?"
	repeatApology = "Acho que acabei me repetindo! Vou pedir para alguém da equipe " +
		"continuar com você por aqui, tá bom?"
)

// Orchestrator runs the full per-message pipeline. All writes for one
// identity happen under that identity's lock, so concurrent deliveries of the
// same message serialize instead of double-applying.
type Orchestrator struct {
	store     ConversationStore
	resolver  IntentResolver
	analyzer  SentimentAnalyzer
	generator Generator
	deliverer Deliverer
	recorder  Recorder
	catalog   *intent.Catalog

	agents     map[domain.Intent]Agent
	faq        Agent
	generative Agent

	sentimentTimeout time.Duration
	logger           *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures NewOrchestrator.
type Option func(*Orchestrator)

// WithSentimentTimeout overrides the sentiment analysis bound.
func WithSentimentTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.sentimentTimeout = d }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator wires the pipeline and builds the intent-to-agent registry.
// supportIdentities receive escalation notices.
func NewOrchestrator(
	store ConversationStore,
	resolver IntentResolver,
	analyzer SentimentAnalyzer,
	generator Generator,
	deliverer Deliverer,
	recorder Recorder,
	catalog *intent.Catalog,
	supportIdentities []string,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	if resolver == nil {
		return nil, errors.New("usecase: resolver must not be nil")
	}
	if analyzer == nil {
		return nil, errors.New("usecase: sentiment analyzer must not be nil")
	}
	if generator == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if deliverer == nil {
		return nil, errors.New("usecase: deliverer must not be nil")
	}
	if recorder == nil {
		return nil, errors.New("usecase: recorder must not be nil")
	}
	if catalog == nil {
		return nil, errors.New("usecase: catalog must not be nil")
	}

	o := &Orchestrator{
		store:            store,
		resolver:         resolver,
		analyzer:         analyzer,
		generator:        generator,
		deliverer:        deliverer,
		recorder:         recorder,
		catalog:          catalog,
		sentimentTimeout: defaultSentimentTimeout,
		logger:           slog.Default(),
		locks:            map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(o)
	}

	commercial := &commercialAgent{catalog: catalog, generator: generator}
	escalation := &escalationAgent{supportIdentities: supportIdentities}
	followUp := &followUpAgent{catalog: catalog}
	o.faq = &faqAgent{catalog: catalog, generator: generator}
	o.generative = &generativeAgent{generator: generator}
	o.agents = map[domain.Intent]Agent{
		domain.IntentGreeting:        &greetingAgent{catalog: catalog},
		domain.IntentPresencePing:    &presenceAgent{catalog: catalog},
		domain.IntentQualification:   commercial,
		domain.IntentPitchBasic:      commercial,
		domain.IntentPitchPremium:    commercial,
		domain.IntentCallToAction:    commercial,
		domain.IntentPriceRefusal:    commercial,
		domain.IntentHumanHandoff:    escalation,
		domain.IntentIntake:          &intakeAgent{},
		domain.IntentFollowUpQual:    followUp,
		domain.IntentFollowUpPayment: followUp,
	}
	return o, nil
}

// agentFor resolves the registry entry for an intent. FAQ-namespaced intents
// without a dedicated entry share the faq agent; everything else unknown
// falls back to free-text generation.
func (o *Orchestrator) agentFor(id domain.Intent) Agent {
	if agent, ok := o.agents[id]; ok {
		return agent
	}
	if id.IsFAQ() {
		return o.faq
	}
	return o.generative
}

// lockIdentity serializes all pipeline work for one identity.
func (o *Orchestrator) lockIdentity(identity string) func() {
	o.mu.Lock()
	lock, ok := o.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[identity] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// ProcessMessage runs the full pipeline for one inbound message.
func (o *Orchestrator) ProcessMessage(ctx context.Context, identity, text string) error {
	identity = strings.TrimSpace(identity)
	text = strings.TrimSpace(text)
	if identity == "" {
		return newError(ErrorInvalidInput, "identity must not be empty", nil)
	}
	if text == "" {
		return newError(ErrorInvalidInput, "text must not be empty", nil)
	}

	unlock := o.lockIdentity(identity)
	defer unlock()

	snapshot, err := o.store.Get(ctx, identity)
	if err != nil {
		return newError(ErrorStore, "load conversation", err)
	}
	if snapshot.State.Terminal() {
		o.record(ctx, identity, domain.StageAnalysis, map[string]any{
			"state":    string(snapshot.State),
			"terminal": true,
		})
		return nil
	}

	assessment := risk.Detect(text)
	resolved := o.resolver.Resolve(ctx, text, snapshot.State, assessment.Flagged())
	sentiment := o.analyzeSentiment(ctx, text)

	analysisMeta := map[string]any{domain.MetaSentiment: sentiment.Dominant()}
	if snapshot.State == domain.StateInitial || snapshot.State == domain.StateGreetingSent {
		analysisMeta[domain.MetaProvisionalScore] = scoring.Score(text)
	}
	updated, err := o.store.Apply(ctx, identity, domain.ContextPatch{
		LastUserText:    &text,
		MetaSet:         analysisMeta,
		BumpInteraction: true,
	})
	if err != nil {
		return newError(ErrorStore, "record inbound message", err)
	}

	o.record(ctx, identity, domain.StageAnalysis, map[string]any{
		"state":             string(updated.State),
		"intent":            string(resolved),
		"life_risk":         assessment.LifeRisk,
		"medical_emergency": assessment.MedicalEmergency,
		"sentiment":         sentiment.Dominant(),
	})

	agent := o.agentFor(resolved)
	turn := Turn{
		Context:   updated,
		Text:      text,
		Intent:    resolved,
		Sentiment: sentiment,
		Risk:      assessment,
	}

	result, respondErr := o.safeRespond(ctx, agent, turn)
	if respondErr != nil {
		o.record(ctx, identity, domain.StageError, map[string]any{
			"agent":  agent.Name(),
			"intent": string(resolved),
			"error":  respondErr.Error(),
		})
		o.deliver(ctx, identity, genericApology)
		apology := genericApology
		if _, applyErr := o.store.Apply(ctx, identity, domain.ContextPatch{
			LastBotText: &apology,
		}); applyErr != nil {
			o.logger.Error("apology patch failed", "identity", identity, "err", applyErr)
		}
		return newError(ErrorInternal, fmt.Sprintf("agent %s failed", agent.Name()), respondErr)
	}

	result = o.breakReplyLoop(ctx, updated, text, result)

	for _, notice := range result.Notices {
		if _, err := o.deliverer.Deliver(ctx, notice.Identity, notice.Text); err != nil {
			o.logger.Error("notice delivery failed", "identity", notice.Identity, "err", err)
		}
	}

	delivered := false
	if result.Reply != "" {
		delivered = o.deliver(ctx, identity, result.Reply)
	}

	patch := domain.ContextPatch{
		State:           result.NextState,
		MetaSet:         result.MetaSet,
		MetaSetIfAbsent: result.MetaSetIfAbsent,
		MetaClear:       result.MetaClear,
	}
	if result.Reply != "" {
		patch.LastBotText = &result.Reply
	}
	if _, err := o.store.Apply(ctx, identity, patch); err != nil {
		return newError(ErrorStore, "apply handler result", err)
	}

	execPayload := map[string]any{
		"agent":     agent.Name(),
		"intent":    string(resolved),
		"delivered": delivered,
	}
	if result.NextState != nil {
		execPayload["next_state"] = string(*result.NextState)
	}
	o.record(ctx, identity, domain.StageExecution, execPayload)
	return nil
}

// safeRespond shields the pipeline from a panicking agent.
func (o *Orchestrator) safeRespond(ctx context.Context, agent Agent, turn Turn) (result domain.HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panic: %v", r)
		}
	}()
	return agent.Respond(ctx, turn)
}

// breakReplyLoop rewrites a reply that repeats the previous bot message. One
// alternate generation is attempted; if that also repeats (or fails), the
// conversation is handed to a human rather than looping.
func (o *Orchestrator) breakReplyLoop(ctx context.Context, snapshot *domain.ConversationContext, text string, result domain.HandlerResult) domain.HandlerResult {
	if result.Reply == "" || !sameReply(result.Reply, snapshot.LastBotText) {
		return result
	}

	alt, err := o.generator.Generate(ctx, text, result.Reply)
	if err == nil && !sameReply(alt, snapshot.LastBotText) {
		o.logger.Info("reply loop broken with alternate generation", "identity", snapshot.Identity)
		result.Reply = alt
		return result
	}
	if err != nil {
		o.logger.Warn("alternate generation failed", "identity", snapshot.Identity, "err", err)
	}
	result.Reply = repeatApology
	return result.Transition(domain.StateAwaitingHuman)
}

func sameReply(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (o *Orchestrator) analyzeSentiment(ctx context.Context, text string) domain.Sentiment {
	sctx, cancel := context.WithTimeout(ctx, o.sentimentTimeout)
	defer cancel()

	sentiment, err := o.analyzer.AnalyzeSentiment(sctx, text)
	if err != nil {
		o.logger.Warn("sentiment analysis unavailable, using neutral", "err", err)
		return domain.NeutralSentiment()
	}
	return sentiment
}

// deliver sends a message to the user. Delivery failures are logged, not
// fatal: state has to advance even when the channel hiccups.
func (o *Orchestrator) deliver(ctx context.Context, identity, text string) bool {
	if _, err := o.deliverer.Deliver(ctx, identity, text); err != nil {
		o.logger.Error("delivery failed", "identity", identity, "err", err)
		return false
	}
	return true
}

func (o *Orchestrator) record(ctx context.Context, identity, stage string, payload map[string]any) {
	if err := o.recorder.Record(ctx, identity, stage, payload); err != nil {
		o.logger.Error("telemetry record failed", "identity", identity, "stage", stage, "err", err)
	}
}

// RunFollowUp sends the re-engagement nudge of the given kind if the
// conversation is still stalled and the kind was not sent before. The flag is
// re-checked under the identity lock, so a racing scheduler tick and user
// message cannot both send it.
func (o *Orchestrator) RunFollowUp(ctx context.Context, identity string, kind FollowUpKind) error {
	if kind.Intent() == domain.IntentUnknown {
		return newError(ErrorInvalidInput, "unknown follow-up kind", nil)
	}

	unlock := o.lockIdentity(identity)
	defer unlock()

	snapshot, err := o.store.Get(ctx, identity)
	if err != nil {
		return newError(ErrorStore, "load conversation", err)
	}
	if snapshot.MetaBool(kind.FlagKey()) {
		return nil
	}
	if !stateEligible(snapshot.State, kind.States()) {
		return nil
	}

	followUp := o.agents[kind.Intent()]
	result, err := followUp.Respond(ctx, Turn{Context: snapshot, Intent: kind.Intent()})
	if err != nil {
		return err
	}

	delivered := o.deliver(ctx, identity, result.Reply)
	if _, err := o.store.Apply(ctx, identity, domain.ContextPatch{
		MetaSet:     result.MetaSet,
		LastBotText: &result.Reply,
	}); err != nil {
		return newError(ErrorStore, "apply follow-up result", err)
	}

	o.record(ctx, identity, domain.StageFollowUp, map[string]any{
		"kind":      string(kind),
		"delivered": delivered,
	})
	return nil
}

// ConfirmPayment moves the conversation into post-payment triage and opens
// the onboarding questionnaire. Calling it again while triage is already
// under way is a no-op.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return newError(ErrorInvalidInput, "identity must not be empty", nil)
	}

	unlock := o.lockIdentity(identity)
	defer unlock()

	snapshot, err := o.store.Get(ctx, identity)
	if err != nil {
		return newError(ErrorStore, "load conversation", err)
	}
	if snapshot.State == domain.StateTriage || snapshot.State == domain.StateOnboardingComplete {
		return nil
	}

	reply := intakeIntro + "\n\n" + intakeQuestions[0]
	delivered := o.deliver(ctx, identity, reply)

	triage := domain.StateTriage
	if _, err := o.store.Apply(ctx, identity, domain.ContextPatch{
		State:       &triage,
		LastBotText: &reply,
		MetaSet:     map[string]any{domain.MetaIntakeStep: 1},
		MetaClear:   []string{FollowUpPayment.FlagKey()},
	}); err != nil {
		return newError(ErrorStore, "open triage", err)
	}

	o.record(ctx, identity, domain.StageExecution, map[string]any{
		"event":     "payment_confirmed",
		"delivered": delivered,
	})
	return nil
}

// Reset deletes the conversation record entirely.
func (o *Orchestrator) Reset(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return newError(ErrorInvalidInput, "identity must not be empty", nil)
	}

	unlock := o.lockIdentity(identity)
	defer unlock()

	if err := o.store.Delete(ctx, identity); err != nil {
		return newError(ErrorStore, "delete conversation", err)
	}
	o.record(ctx, identity, domain.StageExecution, map[string]any{"event": "reset"})
	return nil
}

func stateEligible(s domain.State, states []domain.State) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}
