package usecase

import (
	"context"
	"fmt"
	"strings"

	"careline-agent/internal/domain"
	"careline-agent/internal/intent"
	"careline-agent/internal/scoring"
)

// qualificationQuestions is the fixed three-question funnel asked before any
// pitch. The cursor in meta is the index of the NEXT question to ask; answers
// are stored under qualification.answer.<index>.
var qualificationQuestions = [3]string{
	"1/3 – Você procura ajuda para si ou para um familiar?",
	"2/3 – Prefere atendimento online ou presencial?",
	"3/3 – Consegue investir num cuidado profissional mensal?",
}

const (
	planEssential = "essential"
	planPremium   = "premium"

	essentialPitch = "O plano Essencial cobre o que você precisa: check-ins quinzenais " +
		"e canal direto com nossa equipe de enfermagem por R$ 79/mês. Quer começar?"
	premiumPitch = "Pelo que você me contou, o plano Premium é o ideal: acompanhamento " +
		"semanal com enfermeira dedicada, plano de cuidado personalizado e suporte " +
		"24h por R$ 199/mês. Quer garantir sua vaga?"

	awaitingPaymentReply = "Perfeito! 🎉 Assim que o pagamento for confirmado eu te aviso " +
		"por aqui e já começamos seu acolhimento."
	paymentReminderReply = "Estou de olho por aqui! Assim que o pagamento cair, seguimos " +
		"com seu acolhimento. Qualquer dúvida é só chamar."
)

// commercialAgent owns the sales funnel: qualification questions, plan pitch,
// call to action and the payment yes/no branch.
type commercialAgent struct {
	catalog   *intent.Catalog
	generator Generator
}

func (a *commercialAgent) Name() string { return "commercial" }

func (a *commercialAgent) Respond(ctx context.Context, turn Turn) (domain.HandlerResult, error) {
	switch turn.Intent {
	case domain.IntentPriceRefusal:
		return domain.HandlerResult{
			Reply: a.catalog.Response(domain.IntentPriceRefusal),
		}.Transition(domain.StateRefused), nil

	case domain.IntentCallToAction:
		return domain.HandlerResult{
			Reply: a.catalog.Response(domain.IntentCallToAction),
		}.Transition(domain.StateCTASent), nil

	case domain.IntentPitchBasic:
		return a.pitch(turn, planEssential), nil

	case domain.IntentPitchPremium:
		return a.pitch(turn, planPremium), nil
	}

	// Qualification and everything routed here by the guardrails is driven by
	// the funnel position, not the raw intent.
	switch turn.Context.State {
	case domain.StateInitial, domain.StateGreetingSent, domain.StateRefused:
		return domain.HandlerResult{
			Reply:   a.catalog.Response(domain.IntentQualification) + "\n\n" + qualificationQuestions[0],
			MetaSet: map[string]any{domain.MetaQualificationStep: 1},
		}.Transition(domain.StateQualifying), nil

	case domain.StateQualifying:
		return a.advanceQualification(turn), nil

	case domain.StatePitched:
		return domain.HandlerResult{
			Reply: a.catalog.Response(domain.IntentCallToAction),
		}.Transition(domain.StateCTASent), nil

	case domain.StateCTASent:
		if affirmative(turn.Text) {
			return domain.HandlerResult{Reply: awaitingPaymentReply}.
				Transition(domain.StateAwaitingPayment), nil
		}
		return domain.HandlerResult{
			Reply: a.catalog.Response(domain.IntentPriceRefusal),
		}.Transition(domain.StateRefused), nil

	case domain.StateAwaitingPayment:
		return domain.HandlerResult{Reply: paymentReminderReply}, nil
	}

	reply, err := a.generator.Generate(ctx, turn.Text, "")
	if err != nil {
		return domain.HandlerResult{}, newError(ErrorUpstream, "commercial_generation_failed", err)
	}
	return domain.HandlerResult{Reply: reply}, nil
}

// advanceQualification records the answer for the question last asked and
// either asks the next question or closes the funnel with a scored pitch.
// Answers are written if-absent and the cursor is written as an absolute
// value, so replaying the same turn cannot advance the funnel twice.
func (a *commercialAgent) advanceQualification(turn Turn) domain.HandlerResult {
	step, ok := turn.Context.MetaInt(domain.MetaQualificationStep)
	if !ok || step < 1 || step > len(qualificationQuestions) {
		// Cursor missing or corrupt: restart the funnel from the top.
		return domain.HandlerResult{
			Reply:   qualificationQuestions[0],
			MetaSet: map[string]any{domain.MetaQualificationStep: 1},
		}
	}

	answerKey := fmt.Sprintf("%s%d", domain.MetaQualificationAnswer, step-1)
	if step < len(qualificationQuestions) {
		return domain.HandlerResult{
			Reply:           qualificationQuestions[step],
			MetaSet:         map[string]any{domain.MetaQualificationStep: step + 1},
			MetaSetIfAbsent: map[string]any{answerKey: turn.Text},
		}
	}

	score := scoring.Score(a.joinedAnswers(turn))
	plan := planEssential
	pitchText := essentialPitch
	if score >= 4 {
		plan = planPremium
		pitchText = premiumPitch
	}
	return domain.HandlerResult{
		Reply: pitchText,
		MetaSet: map[string]any{
			domain.MetaLeadScore: score,
			domain.MetaPlan:      plan,
		},
		MetaSetIfAbsent: map[string]any{answerKey: turn.Text},
		MetaClear:       []string{domain.MetaQualificationStep},
	}.Transition(domain.StatePitched)
}

func (a *commercialAgent) pitch(turn Turn, plan string) domain.HandlerResult {
	pitchText := essentialPitch
	if plan == planPremium {
		pitchText = premiumPitch
	}
	result := domain.HandlerResult{
		Reply:   pitchText,
		MetaSet: map[string]any{domain.MetaPlan: plan},
	}
	if turn.Context.State != domain.StateCTASent && turn.Context.State != domain.StateAwaitingPayment {
		return result.Transition(domain.StatePitched)
	}
	return result
}

// joinedAnswers concatenates the stored funnel answers with the current text
// for scoring, so signals anywhere in the funnel count.
func (a *commercialAgent) joinedAnswers(turn Turn) string {
	var parts []string
	for i := 0; i < len(qualificationQuestions); i++ {
		key := fmt.Sprintf("%s%d", domain.MetaQualificationAnswer, i)
		if v, ok := turn.Context.Meta[key]; ok {
			if s, isStr := v.(string); isStr {
				parts = append(parts, s)
			}
		}
	}
	parts = append(parts, turn.Text)
	return strings.Join(parts, " ")
}

var affirmativeWords = map[string]struct{}{
	"sim": {}, "quero": {}, "pode": {}, "claro": {}, "bora": {},
	"vamos": {}, "ok": {}, "aceito": {}, "fechado": {},
}

func affirmative(text string) bool {
	for _, word := range strings.Fields(intent.Normalize(text)) {
		if _, ok := affirmativeWords[word]; ok {
			return true
		}
	}
	return false
}
