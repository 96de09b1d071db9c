package usecase

import (
	"context"
	"fmt"

	"careline-agent/internal/domain"
	"careline-agent/internal/intent"
	"careline-agent/internal/risk"
)

// Turn is the resolved input an agent responds to.
type Turn struct {
	Context   *domain.ConversationContext
	Text      string
	Intent    domain.Intent
	Sentiment domain.Sentiment
	Risk      risk.Assessment
}

// Agent is the response-generation capability behind one or more intents.
// Agents propose a HandlerResult; they never write to the store or deliver
// messages themselves — the dispatcher applies the result atomically.
type Agent interface {
	Name() string
	Respond(ctx context.Context, turn Turn) (domain.HandlerResult, error)
}

// greetingAgent acknowledges a first contact and marks the intro as sent.
type greetingAgent struct {
	catalog *intent.Catalog
}

func (a *greetingAgent) Name() string { return "greeting" }

func (a *greetingAgent) Respond(_ context.Context, turn Turn) (domain.HandlerResult, error) {
	result := domain.HandlerResult{Reply: a.catalog.Response(domain.IntentGreeting)}
	if turn.Context.State == domain.StateInitial {
		return result.Transition(domain.StateGreetingSent), nil
	}
	return result, nil
}

// presenceAgent sends a short "still here" ping without touching state.
type presenceAgent struct {
	catalog *intent.Catalog
}

func (a *presenceAgent) Name() string { return "presence" }

func (a *presenceAgent) Respond(_ context.Context, _ Turn) (domain.HandlerResult, error) {
	return domain.HandlerResult{Reply: a.catalog.Response(domain.IntentPresencePing)}, nil
}

// faqAgent answers from the catalog's canned responses. It serves every
// FAQ-namespaced intent, including ones without a dedicated registry entry.
type faqAgent struct {
	catalog   *intent.Catalog
	generator Generator
}

func (a *faqAgent) Name() string { return "faq" }

func (a *faqAgent) Respond(ctx context.Context, turn Turn) (domain.HandlerResult, error) {
	if resp := a.catalog.Response(turn.Intent); resp != "" {
		return domain.HandlerResult{Reply: resp}, nil
	}
	// Cataloged but answerless: degrade to free text rather than silence.
	reply, err := a.generator.Generate(ctx, turn.Text, "")
	if err != nil {
		return domain.HandlerResult{}, newError(ErrorUpstream, "faq_generation_failed", err)
	}
	return domain.HandlerResult{Reply: reply}, nil
}

// generativeAgent is the free-text fallback for unknown intents.
type generativeAgent struct {
	generator Generator
}

func (a *generativeAgent) Name() string { return "generative" }

func (a *generativeAgent) Respond(ctx context.Context, turn Turn) (domain.HandlerResult, error) {
	reply, err := a.generator.Generate(ctx, turn.Text, "")
	if err != nil {
		return domain.HandlerResult{}, newError(ErrorUpstream, "generation_failed", err)
	}
	return domain.HandlerResult{Reply: reply}, nil
}

// escalationAgent hands the conversation to humans. On risk it notifies the
// support channel and says nothing to the user; on an explicit request it
// confirms the handoff.
type escalationAgent struct {
	supportIdentities []string
}

func (a *escalationAgent) Name() string { return "escalation" }

func (a *escalationAgent) Respond(_ context.Context, turn Turn) (domain.HandlerResult, error) {
	var result domain.HandlerResult
	if turn.Risk.Flagged() {
		notice := fmt.Sprintf("⚠️ Atenção: possível crise detectada na conversa %s.", turn.Context.Identity)
		if turn.Risk.MedicalEmergency {
			notice = fmt.Sprintf("🚨 Urgência médica possível na conversa %s. Verificar imediatamente.", turn.Context.Identity)
		}
		for _, support := range a.supportIdentities {
			result.Notices = append(result.Notices, domain.Notice{Identity: support, Text: notice})
		}
		return result.Transition(domain.StateRiskDetected), nil
	}

	for _, support := range a.supportIdentities {
		result.Notices = append(result.Notices, domain.Notice{
			Identity: support,
			Text:     fmt.Sprintf("Conversa %s pediu atendimento humano.", turn.Context.Identity),
		})
	}
	result.Reply = "Claro! Vou te conectar com uma pessoa da nossa equipe agora mesmo. 💚"
	return result.Transition(domain.StateAwaitingHuman), nil
}

// followUpAgent sends the canned re-engagement nudge for one follow-up kind
// and records the namespaced sent-flag so a kind is never re-sent.
type followUpAgent struct {
	catalog *intent.Catalog
}

func (a *followUpAgent) Name() string { return "followup" }

func (a *followUpAgent) Respond(_ context.Context, turn Turn) (domain.HandlerResult, error) {
	resp := a.catalog.Response(turn.Intent)
	if resp == "" {
		return domain.HandlerResult{}, newError(ErrorInternal, "followup_response_missing", nil)
	}
	kind, ok := followUpKindForIntent(turn.Intent)
	if !ok {
		return domain.HandlerResult{}, newError(ErrorInternal, "followup_unknown_kind", nil)
	}
	return domain.HandlerResult{
		Reply:   resp,
		MetaSet: map[string]any{kind.FlagKey(): true},
	}, nil
}
