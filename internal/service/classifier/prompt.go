package classifier

import (
	"fmt"
	"strings"

	"github.com/bouwupdate/intake-api/internal/model"
)

const systemPrompt = `Je bent een ervaren uitvoerder in de Nederlandse woningbouw.
Je beoordeelt bouwplaatsfoto's en antwoordt uitsluitend met een JSON-object.`

func buildPrompt(context string) string {
	var phases strings.Builder
	for _, p := range model.Phases {
		fmt.Fprintf(&phases, "- %s (%s)\n", p, p.Label())
	}

	var b strings.Builder
	b.WriteString("Analyseer deze bouwplaatsfoto en bepaal in welke bouwfase het werk zich bevindt.\n\n")
	b.WriteString("Mogelijke fasen:\n")
	b.WriteString(phases.String())
	if context = strings.TrimSpace(context); context != "" {
		fmt.Fprintf(&b, "\nToelichting van de medewerker: %q\n", context)
	}
	b.WriteString(`
Antwoord met dit JSON-formaat:
{
  "phase_id": "een van de fase-codes hierboven",
  "phase_label": "leesbare fasenaam",
  "title": "korte titel, maximaal 8 woorden",
  "description": "wat er op de foto te zien is",
  "category": "soort werkzaamheden",
  "confidence": 0.0,
  "detected_elements": ["..."],
  "materials": [{"name": "...", "type": "..."}],
  "technical_specs": ["..."],
  "quality": {"score": 1, "positives": ["..."], "issues": ["..."]},
  "safety_notes": ["..."],
  "compliance_notes": ["..."],
  "progress_percentage": 0,
  "work_status": "not_started | in_progress | completed"
}
Gebruik "confidence" tussen 0 en 1 en "quality.score" tussen 1 en 10.
Noem onder "quality.issues" alleen concrete gebreken of risico's.`)
	return b.String()
}
