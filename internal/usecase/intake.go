package usecase

import (
	"context"
	"fmt"

	"careline-agent/internal/domain"
)

// intakeQuestions is the post-payment onboarding questionnaire. Factual and
// emotional questions interleave so the intake feels like a conversation, not
// a form. The cursor in meta is the index of the NEXT question to ask.
var intakeQuestions = [12]string{
	"Pra começar: qual o nome completo da pessoa que vai receber o cuidado?",
	"E como você está se sentindo com tudo isso hoje?",
	"Qual a idade dela?",
	"O que mais te preocupa no dia a dia dela?",
	"Ela toma algum medicamento de uso contínuo? Se sim, quais?",
	"Teve algum momento recente que te deixou mais apreensivo(a)?",
	"Ela tem alguma condição de saúde diagnosticada?",
	"Como está a rede de apoio da família? Tem mais alguém ajudando?",
	"Em qual cidade e bairro ela mora?",
	"O que você espera que melhore com o acompanhamento?",
	"Qual o melhor horário para nossas visitas ou chamadas?",
	"Quer me contar mais alguma coisa que eu deva saber antes de começarmos?",
}

const (
	intakeIntro = "Pagamento confirmado! 💚 Agora vou fazer algumas perguntas para " +
		"montar o plano de cuidado. Pode responder no seu ritmo."
	intakeComplete = "Prontinho, obrigado por compartilhar tudo isso! 🙏 Nossa equipe " +
		"vai montar o plano de cuidado e te chama em até 1 dia útil."
)

// intakeAgent walks the onboarding questionnaire during TRIAGE.
type intakeAgent struct{}

func (a *intakeAgent) Name() string { return "intake" }

func (a *intakeAgent) Respond(_ context.Context, turn Turn) (domain.HandlerResult, error) {
	if turn.Context.State == domain.StateOnboardingComplete {
		return domain.HandlerResult{Reply: intakeComplete}, nil
	}
	if turn.Context.State != domain.StateTriage {
		return domain.HandlerResult{}, newError(ErrorInvalidInput, "intake_outside_triage", nil)
	}

	step, ok := turn.Context.MetaInt(domain.MetaIntakeStep)
	if !ok || step <= 0 || step > len(intakeQuestions) {
		// Cursor missing or corrupt: (re)open with the first question.
		return domain.HandlerResult{
			Reply:   intakeQuestions[0],
			MetaSet: map[string]any{domain.MetaIntakeStep: 1},
		}, nil
	}

	answerKey := fmt.Sprintf("%s%d", domain.MetaIntakeAnswer, step-1)
	if step < len(intakeQuestions) {
		return domain.HandlerResult{
			Reply:           intakeQuestions[step],
			MetaSet:         map[string]any{domain.MetaIntakeStep: step + 1},
			MetaSetIfAbsent: map[string]any{answerKey: turn.Text},
		}, nil
	}

	return domain.HandlerResult{
		Reply:           intakeComplete,
		MetaSetIfAbsent: map[string]any{answerKey: turn.Text},
		MetaClear:       []string{domain.MetaIntakeStep},
	}.Transition(domain.StateOnboardingComplete), nil
}
