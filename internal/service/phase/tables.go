package phase

import (
	"strings"

	"github.com/bouwupdate/intake-api/internal/model"
)

// keywords are lowercase substrings counted once each against the free text
// of a classification.
var keywords = map[model.Phase][]string{
	model.PhaseGrondwerk: {
		"grondwerk", "grondverzet", "graafwerk", "ontgraving", "uitgraven",
		"bouwput", "graafmachine", "bemaling", "excavat",
	},
	model.PhaseFundering: {
		"fundering", "fundament", "heipaal", "heipalen", "heiwerk",
		"funderingsbalk", "poer", "betonstort", "foundation",
	},
	model.PhaseRuwbouw: {
		"metselwerk", "metsel", "muur", "kalkzandsteen", "baksteen",
		"casco", "breedplaat", "latei", "spouw",
	},
	model.PhaseDakconstructie: {
		"dakconstructie", "dak", "dakpan", "dakbeschot", "spant",
		"gording", "dakgoot", "bitumen", "nokvorst", "dakkapel",
	},
	model.PhaseGevel: {
		"gevel", "kozijn", "voegwerk", "beglazing", "raam",
		"gevelbekleding", "vensterbank", "facade",
	},
	model.PhaseInstallaties: {
		"installatie", "leidingwerk", "elektra", "bedrading", "groepenkast",
		"meterkast", "riolering", "warmtepomp", "ventilatie", "vloerverwarming",
	},
	model.PhaseAfbouw: {
		"afbouw", "stucwerk", "stuc", "tegelwerk", "tegel",
		"schilderwerk", "binnendeur", "plafond", "dekvloer", "keuken",
	},
	model.PhaseOplevering: {
		"oplevering", "opgeleverd", "sleuteloverdracht", "eindinspectie",
		"opleverpunt", "restpunt", "handover",
	},
}

// completionIndicators are phrases that suggest the phase is finished.
var completionIndicators = map[model.Phase][]string{
	model.PhaseGrondwerk: {
		"grondwerk gereed", "grondwerk klaar", "bouwput gereed",
		"ontgraving voltooid", "klaar voor fundering",
	},
	model.PhaseFundering: {
		"fundering gereed", "fundering klaar", "fundering gestort",
		"heiwerk voltooid", "beton uitgehard", "klaar voor ruwbouw",
	},
	model.PhaseRuwbouw: {
		"ruwbouw gereed", "ruwbouw klaar", "casco gereed",
		"metselwerk voltooid", "hoogste punt", "klaar voor dak",
	},
	model.PhaseDakconstructie: {
		"dak gereed", "dak dicht", "dakpannen gelegd",
		"dakconstructie voltooid", "wind- en waterdicht",
	},
	model.PhaseGevel: {
		"gevel gereed", "gevel klaar", "kozijnen geplaatst",
		"beglazing geplaatst", "voegwerk voltooid",
	},
	model.PhaseInstallaties: {
		"installaties gereed", "leidingwerk voltooid", "elektra aangesloten",
		"installatie getest", "afgeperst",
	},
	model.PhaseAfbouw: {
		"afbouw gereed", "stucwerk voltooid", "tegelwerk voltooid",
		"schilderwerk klaar", "klaar voor oplevering",
	},
	model.PhaseOplevering: {
		"opgeleverd", "sleutels overhandigd", "oplevering voltooid",
	},
}

// classifierLabels maps loose labels produced by the vision model onto the
// canonical phase set.
var classifierLabels = map[string]model.Phase{
	"grondwerk":         model.PhaseGrondwerk,
	"site_preparation":  model.PhaseGrondwerk,
	"earthworks":        model.PhaseGrondwerk,
	"excavation":        model.PhaseGrondwerk,
	"fundering":         model.PhaseFundering,
	"foundation":        model.PhaseFundering,
	"foundation_work":   model.PhaseFundering,
	"ruwbouw":           model.PhaseRuwbouw,
	"casco":             model.PhaseRuwbouw,
	"structural":        model.PhaseRuwbouw,
	"structural_work":   model.PhaseRuwbouw,
	"shell":             model.PhaseRuwbouw,
	"dak":               model.PhaseDakconstructie,
	"dakconstructie":    model.PhaseDakconstructie,
	"roof":              model.PhaseDakconstructie,
	"roofing":           model.PhaseDakconstructie,
	"gevel":             model.PhaseGevel,
	"gevel_kozijnen":    model.PhaseGevel,
	"facade":            model.PhaseGevel,
	"facade_work":       model.PhaseGevel,
	"installaties":      model.PhaseInstallaties,
	"installatie":       model.PhaseInstallaties,
	"installation":      model.PhaseInstallaties,
	"installations":     model.PhaseInstallaties,
	"installation_work": model.PhaseInstallaties,
	"mep":               model.PhaseInstallaties,
	"afbouw":            model.PhaseAfbouw,
	"finishing":         model.PhaseAfbouw,
	"finishing_work":    model.PhaseAfbouw,
	"interior":          model.PhaseAfbouw,
	"oplevering":        model.PhaseOplevering,
	"handover":          model.PhaseOplevering,
	"completion":        model.PhaseOplevering,
}

var labelReplacer = strings.NewReplacer(" ", "_", "-", "_", "&", "_")

// MapClassifierPhase resolves a classifier label to a canonical phase. It
// returns "" when the label is empty or unknown.
func MapClassifierPhase(label string) model.Phase {
	if p, ok := model.ParsePhase(label); ok {
		return p
	}
	key := labelReplacer.Replace(strings.ToLower(strings.TrimSpace(label)))
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	return classifierLabels[key]
}

// ScoreKeywords counts keyword hits per phase in text. Each keyword counts at
// most once.
func ScoreKeywords(text string) map[model.Phase]int {
	lower := strings.ToLower(text)
	scores := make(map[model.Phase]int, len(model.Phases))
	for _, p := range model.Phases {
		for _, kw := range keywords[p] {
			if strings.Contains(lower, kw) {
				scores[p]++
			}
		}
	}
	return scores
}

// TopKeywordPhase returns the best scoring phase. Ties go to prefer when it
// is among the leaders, otherwise to the earliest phase.
func TopKeywordPhase(scores map[model.Phase]int, prefer model.Phase) (model.Phase, int) {
	var best model.Phase
	bestScore := 0
	for _, p := range model.Phases {
		if s := scores[p]; s > bestScore {
			best, bestScore = p, s
		}
	}
	if prefer != "" && bestScore > 0 && scores[prefer] == bestScore {
		return prefer, bestScore
	}
	return best, bestScore
}

// CompletionIndicatorsIn returns the distinct completion phrases for p found
// in text, in table order.
func CompletionIndicatorsIn(p model.Phase, text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range completionIndicators[p] {
		if strings.Contains(lower, phrase) {
			found = append(found, phrase)
		}
	}
	return found
}
