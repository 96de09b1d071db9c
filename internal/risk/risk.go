// Package risk screens inbound text for crisis indicators. The scan is a
// local keyword check so the risk branch can never fail on an upstream call.
package risk

import "strings"

// lifeRiskPhrases flags potential self-harm or suicide risk. Substring match
// catches inflected variants ("quero me matar agora").
var lifeRiskPhrases = []string{
	"suicídio", "suicidio", "me matar", "quero morrer", "não aguento mais",
	"nao aguento mais", "acabar com tudo", "sem esperança", "sem esperanca",
	"não quero viver", "nao quero viver", "me cortar", "me machucar",
	"automutilação", "automutilacao", "tirar minha vida", "não vejo saída",
	"nao vejo saida", "desistir de tudo",
}

// medicalEmergencyPhrases flags acute medical urgency.
var medicalEmergencyPhrases = []string{
	"overdose", "passando muito mal", "não consigo respirar",
	"nao consigo respirar", "dor no peito forte", "desmaiado", "convulsão",
	"convulsao", "sangrando muito", "veneno", "infarto", "avc", "sem ar",
	"falta de ar", "tomou muito remédio", "tomou muito remedio",
	"ingeriu substância", "ingeriu substancia",
}

// Assessment is the per-message risk screen result.
type Assessment struct {
	LifeRisk         bool
	MedicalEmergency bool
}

// Flagged reports whether either risk class fired.
func (a Assessment) Flagged() bool {
	return a.LifeRisk || a.MedicalEmergency
}

// Detect scans text for risk indicators. Empty text is never flagged.
func Detect(text string) Assessment {
	if text == "" {
		return Assessment{}
	}
	lower := strings.ToLower(text)
	return Assessment{
		LifeRisk:         containsAny(lower, lifeRiskPhrases),
		MedicalEmergency: containsAny(lower, medicalEmergencyPhrases),
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
