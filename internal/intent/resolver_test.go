package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"careline-agent/internal/domain"
)

type mockClassifier struct {
	label     string
	err       error
	callCount int
}

func (m *mockClassifier) ClassifyIntent(_ context.Context, _ string) (string, error) {
	m.callCount++
	return m.label, m.err
}

func newTestResolver(t *testing.T, classifier Classifier) *Resolver {
	t.Helper()
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	r, err := NewResolver(catalog, classifier)
	require.NoError(t, err)
	return r
}

func TestDefaultCatalogResponses(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	require.NotEmpty(t, catalog.Response(domain.IntentGreeting))
	require.NotEmpty(t, catalog.Response(domain.IntentFollowUpQual))
	require.NotEmpty(t, catalog.Response(domain.IntentFollowUpPayment))

	def, ok := catalog.Definition(domain.IntentHumanHandoff)
	require.True(t, ok)
	require.True(t, def.EscalateToHuman)
}

func TestBestTriggerExactMatch(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	id, score := catalog.BestTrigger("Bom dia!")
	require.Equal(t, domain.IntentGreeting, id)
	require.Equal(t, 1.0, score)
}

func TestResolveTriggerSkipsClassifier(t *testing.T) {
	classifier := &mockClassifier{label: "INTAKE"}
	r := newTestResolver(t, classifier)

	got := r.Resolve(context.Background(), "oi", domain.StateInitial, false)

	require.Equal(t, domain.IntentGreeting, got)
	require.Zero(t, classifier.callCount, "classifier must not run on a trigger match")
}

func TestResolveFuzzyTriggerAboveThreshold(t *testing.T) {
	classifier := &mockClassifier{label: "GREETING"}
	r := newTestResolver(t, classifier)

	got := r.Resolve(context.Background(), "quero ajudar", domain.StateGreetingSent, false)

	require.Equal(t, domain.IntentQualification, got)
	require.Zero(t, classifier.callCount)
}

func TestResolveClassifierFallback(t *testing.T) {
	classifier := &mockClassifier{label: "PRESENCE_PING"}
	r := newTestResolver(t, classifier)

	got := r.Resolve(context.Background(), "xxxxxxxx yyyyyyyy zzzzzzzz", domain.StateGreetingSent, false)

	require.Equal(t, domain.IntentPresencePing, got)
	require.Equal(t, 1, classifier.callCount)
}

func TestResolveClassifierErrorDegradesToGreeting(t *testing.T) {
	classifier := &mockClassifier{err: errors.New("upstream down")}
	r := newTestResolver(t, classifier)

	// Greeting on a fresh conversation survives the guardrails untouched.
	got := r.Resolve(context.Background(), "xxxxxxxx yyyyyyyy zzzzzzzz", domain.StateInitial, false)

	require.Equal(t, domain.IntentGreeting, got)
}

func TestResolveUnknownLabelDegradesToGreeting(t *testing.T) {
	classifier := &mockClassifier{label: "SOMETHING_NEW"}
	r := newTestResolver(t, classifier)

	got := r.Resolve(context.Background(), "xxxxxxxx yyyyyyyy zzzzzzzz", domain.StateInitial, false)

	require.Equal(t, domain.IntentGreeting, got)
}

func TestGuardrailRiskAlwaysEscalates(t *testing.T) {
	classifier := &mockClassifier{label: "GREETING"}
	r := newTestResolver(t, classifier)

	got := r.Resolve(context.Background(), "oi", domain.StateInitial, true)

	require.Equal(t, domain.IntentHumanHandoff, got)
}

func TestGuardrailGreetingAfterIntro(t *testing.T) {
	classifier := &mockClassifier{label: "GREETING"}
	r := newTestResolver(t, classifier)

	got := r.Resolve(context.Background(), "bom dia", domain.StateGreetingSent, false)

	require.Equal(t, domain.IntentQualification, got)
}

func TestGuardrailMidQualificationKeepsFunnel(t *testing.T) {
	classifier := &mockClassifier{label: "GREETING"}
	r := newTestResolver(t, classifier)

	got := r.Resolve(context.Background(), "xxxxxxxx yyyyyyyy zzzzzzzz", domain.StateQualifying, false)

	require.Equal(t, domain.IntentQualification, got)
}

func TestGuardrailMidQualificationAllowsHandoff(t *testing.T) {
	classifier := &mockClassifier{label: "HUMAN_HANDOFF"}
	r := newTestResolver(t, classifier)

	got := r.Resolve(context.Background(), "xxxxxxxx yyyyyyyy zzzzzzzz", domain.StateQualifying, false)

	require.Equal(t, domain.IntentHumanHandoff, got)
}

func TestGuardrailMidIntakeKeepsQuestionnaire(t *testing.T) {
	classifier := &mockClassifier{label: "GREETING"}
	r := newTestResolver(t, classifier)

	got := r.Resolve(context.Background(), "xxxxxxxx yyyyyyyy zzzzzzzz", domain.StateTriage, false)

	require.Equal(t, domain.IntentIntake, got)
}

func TestGuardrailIntakeRequiresPayment(t *testing.T) {
	classifier := &mockClassifier{label: "INTAKE"}
	r := newTestResolver(t, classifier)

	got := r.Resolve(context.Background(), "xxxxxxxx yyyyyyyy zzzzzzzz", domain.StateGreetingSent, false)

	require.Equal(t, domain.IntentFAQHowItWorks, got)
}
