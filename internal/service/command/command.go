// Package command answers the fixed text commands workers can send.
package command

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/bouwupdate/intake-api/internal/model"
	"github.com/bouwupdate/intake-api/internal/repository"
	"github.com/bouwupdate/intake-api/internal/service/phase"
)

type Command string

const (
	CommandNone   Command = ""
	CommandStatus Command = "status"
	CommandPhase  Command = "phase"
	CommandHelp   Command = "help"
	CommandIssues Command = "issues"
)

var aliases = map[string]Command{
	"status":    CommandStatus,
	"voortgang": CommandStatus,
	"fase":      CommandPhase,
	"phase":     CommandPhase,
	"help":      CommandHelp,
	"hulp":      CommandHelp,
	"issues":    CommandIssues,
	"problemen": CommandIssues,
	"meldingen": CommandIssues,
}

const maxListedIssues = 5

const helpText = `Beschikbare commando's:
- status of voortgang: huidige fase van het project
- fase: uitgebreide fase-analyse
- problemen: openstaande meldingen
- help of hulp: dit overzicht
Stuur een foto of spraakbericht om een update toe te voegen.`

// StatusReader returns the persisted project and a fresh analysis.
type StatusReader interface {
	Status(ctx context.Context, projectID string) (*model.Project, *phase.Analysis, error)
}

type Interpreter struct {
	status StatusReader
	issues repository.IssueRepository
}

func NewInterpreter(status StatusReader, issues repository.IssueRepository) *Interpreter {
	return &Interpreter{status: status, issues: issues}
}

// Parse maps message text onto a command. Only the first word counts and
// case, a leading slash and trailing punctuation are ignored.
func Parse(text string) Command {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return CommandNone
	}
	word := strings.TrimPrefix(fields[0], "/")
	word = strings.TrimRightFunc(word, unicode.IsPunct)
	return aliases[word]
}

// Handle returns the reply for a command message. An empty reply means the
// text is not a command and should be acknowledged silently.
func (i *Interpreter) Handle(ctx context.Context, text string, ch *model.Channel) (string, error) {
	switch Parse(text) {
	case CommandHelp:
		return helpText, nil
	case CommandStatus:
		project, analysis, err := i.status.Status(ctx, ch.ProjectID)
		if err != nil {
			return "", fmt.Errorf("load status: %w", err)
		}
		open, err := i.openIssues(ctx, ch.ProjectID)
		if err != nil {
			return "", err
		}
		return StatusText(project, analysis, len(open)), nil
	case CommandPhase:
		project, analysis, err := i.status.Status(ctx, ch.ProjectID)
		if err != nil {
			return "", fmt.Errorf("load status: %w", err)
		}
		return PhaseText(project, analysis), nil
	case CommandIssues:
		open, err := i.openIssues(ctx, ch.ProjectID)
		if err != nil {
			return "", err
		}
		return IssuesText(open), nil
	default:
		return "", nil
	}
}

func (i *Interpreter) openIssues(ctx context.Context, projectID string) ([]*model.Issue, error) {
	var out []*model.Issue
	for _, st := range []model.IssueStatus{model.IssueStatusOpen, model.IssueStatusInProgress} {
		st := st
		list, err := i.issues.ListByProject(ctx, projectID, &st)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}
		out = append(out, list...)
	}
	return out, nil
}

func StatusText(project *model.Project, a *phase.Analysis, openIssues int) string {
	current := project.EffectivePhase()
	var b strings.Builder
	fmt.Fprintf(&b, "Status %s\n", project.Name)
	fmt.Fprintf(&b, "Fase: %s (%d van %d)\n", current.Label(), current.Index()+1, len(model.Phases))
	if a.InferredPhase.Valid() && a.InferredPhase != current {
		fmt.Fprintf(&b, "Recente foto's wijzen op: %s (%s)\n", a.InferredPhase.Label(), percent(a.Confidence))
	}
	if next, ok := current.Next(); ok {
		fmt.Fprintf(&b, "Volgende fase: %s\n", next.Label())
	} else {
		b.WriteString("Dit is de laatste fase.\n")
	}
	fmt.Fprintf(&b, "Openstaande meldingen: %d", openIssues)
	return b.String()
}

func PhaseText(project *model.Project, a *phase.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fase-analyse %s\n", project.Name)
	fmt.Fprintf(&b, "Huidige fase: %s\n", project.EffectivePhase().Label())
	if len(a.DetectedPhases) == 0 {
		b.WriteString("Nog geen beoordeelde foto's.")
		return b.String()
	}
	fmt.Fprintf(&b, "Laatste %d foto's:\n", a.WindowSize)
	for _, o := range a.DetectedPhases {
		fmt.Fprintf(&b, "- %s: %d× (gem. %s)\n", o.Phase.Label(), o.Count, percent(o.Confidence))
	}
	if a.NextPhase.Valid() {
		fmt.Fprintf(&b, "Aandeel %s: %s\n", a.NextPhase.Label(), percent(a.NextRatio))
	}
	if len(a.CompletionIndicators) > 0 {
		fmt.Fprintf(&b, "Afrondingssignalen: %s\n", strings.Join(a.CompletionIndicators, ", "))
	}
	if a.Ready && a.SuggestedPhase.Valid() {
		fmt.Fprintf(&b, "Klaar voor %s. %s", a.SuggestedPhase.Label(), a.Reason)
	} else {
		fmt.Fprintf(&b, "Nog niet klaar voor de volgende fase. %s", a.Reason)
	}
	return strings.TrimRight(b.String(), "\n ")
}

func IssuesText(issues []*model.Issue) string {
	if len(issues) == 0 {
		return "Er zijn geen openstaande meldingen."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Openstaande meldingen (%d):", len(issues))
	for n, issue := range issues {
		if n == maxListedIssues {
			fmt.Fprintf(&b, "\n… en nog %d", len(issues)-maxListedIssues)
			break
		}
		fmt.Fprintf(&b, "\n- [%s] %s", issue.Severity.Label(), issue.Title)
	}
	return b.String()
}

func percent(v float64) string {
	return fmt.Sprintf("%d%%", int(v*100+0.5))
}
