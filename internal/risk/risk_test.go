package risk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectLifeRisk(t *testing.T) {
	cases := []string{
		"não aguento mais viver assim",
		"Quero me matar agora",
		"penso em suicídio",
		"vou acabar com tudo",
	}
	for _, text := range cases {
		a := Detect(text)
		require.True(t, a.LifeRisk, "text %q", text)
		require.True(t, a.Flagged())
	}
}

func TestDetectMedicalEmergency(t *testing.T) {
	cases := []string{
		"minha mãe está passando muito mal",
		"ele tomou muito remédio",
		"estou com dor no peito forte e sem ar",
	}
	for _, text := range cases {
		a := Detect(text)
		require.True(t, a.MedicalEmergency, "text %q", text)
		require.True(t, a.Flagged())
	}
}

func TestDetectWithoutDiacritics(t *testing.T) {
	require.True(t, Detect("nao aguento mais").LifeRisk)
	require.True(t, Detect("nao consigo respirar").MedicalEmergency)
}

func TestDetectCleanText(t *testing.T) {
	a := Detect("bom dia, quero agendar uma consulta")
	require.False(t, a.Flagged())
}

func TestDetectEmpty(t *testing.T) {
	require.False(t, Detect("").Flagged())
}
