package issue

import (
	"strings"
	"unicode/utf8"

	"github.com/bouwupdate/intake-api/internal/model"
)

// MaxTitleLength is the rune limit for issue titles, ellipsis included.
const MaxTitleLength = 100

type severityGroup struct {
	severity model.Severity
	keywords []string
}

// severityGroups is checked in order; the first group with a hit wins.
var severityGroups = []severityGroup{
	{model.SeverityCritical, []string{"gevaar", "gevaarlijk", "veiligheid", "onveilig", "kritiek", "instortingsgevaar", "danger", "safety", "critical"}},
	{model.SeverityHigh, []string{"ernstig", "belangrijk", "lekkage", "constructief", "serious", "important", "major"}},
	{model.SeverityLow, []string{"klein", "gering", "cosmetisch", "minor", "small"}},
}

// ClassifySeverity maps free issue text onto a severity level. Text that
// matches no keyword group is medium.
func ClassifySeverity(text string) model.Severity {
	lower := strings.ToLower(text)
	for _, g := range severityGroups {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.severity
			}
		}
	}
	return model.SeverityMedium
}

// Title trims text to MaxTitleLength runes, marking truncation with an ellipsis.
func Title(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= MaxTitleLength {
		return text
	}
	r := []rune(text)
	return strings.TrimSpace(string(r[:MaxTitleLength-1])) + "…"
}
