package slack

import (
	"fmt"
	"strings"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"

	"github.com/medcopilot/medcopilot/pkg/models"
)

const (
	maxBlockTextLength = 2900
	maxDiagnoses       = 3
)

type statusStyle struct {
	emoji string
	label string
}

var statusStyles = map[string]statusStyle{
	"completed": {":white_check_mark:", "Analysis Complete"},
	"failed":    {":x:", "Analysis Failed"},
	"timed_out": {":hourglass:", "Analysis Timed Out"},
	"cancelled": {":no_entry_sign:", "Analysis Cancelled"},
}

var urgencyEmoji = map[string]string{
	models.UrgencyEmergent:   ":rotating_light:",
	models.UrgencyUrgent:     ":large_orange_circle:",
	models.UrgencySemiUrgent: ":large_yellow_circle:",
	models.UrgencyRoutine:    ":large_green_circle:",
}

func sessionURL(sessionID, dashboardURL string) string {
	return fmt.Sprintf("%s/sessions/%s", strings.TrimRight(dashboardURL, "/"), sessionID)
}

// notificationStatus folds a stage timeout into its own label so on-call
// readers can tell a slow backend from a broken one.
func notificationStatus(s models.Session) string {
	if s.Status == models.StatusFailed && s.Failure != nil && s.Failure.Kind == models.ErrorKindStageTimeout {
		return "timed_out"
	}
	return string(s.Status)
}

func section(text string) *goslack.SectionBlock {
	return goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
		nil, nil,
	)
}

// FallbackText is the plain notification text shown where blocks are not rendered.
func FallbackText(s models.Session) string {
	style := styleFor(notificationStatus(s))
	return fmt.Sprintf("%s: %s", style.label, s.Intake.ChiefComplaint)
}

func styleFor(status string) statusStyle {
	if st, ok := statusStyles[status]; ok {
		return st
	}
	return statusStyle{":question:", "Analysis " + status}
}

// BuildTerminalMessage creates Block Kit blocks for a terminal session notification.
func BuildTerminalMessage(s models.Session, dashboardURL string) []goslack.Block {
	status := notificationStatus(s)
	style := styleFor(status)

	header := fmt.Sprintf("%s *%s*", style.emoji, style.label)
	if s.Intake.ChiefComplaint != "" {
		header += fmt.Sprintf("\n*Chief complaint:* %s", truncateForSlack(s.Intake.ChiefComplaint))
	}
	blocks := []goslack.Block{section(header)}

	switch {
	case s.Status == models.StatusCompleted && s.Report != nil:
		blocks = append(blocks, section(truncateForSlack(reportDigest(*s.Report))))
	case s.Failure != nil:
		text := fmt.Sprintf("*Error:*\n%s", truncateForSlack(s.Failure.Message))
		if s.Failure.StageName != "" {
			text = fmt.Sprintf("*Stage:* `%s`\n%s", s.Failure.StageName, text)
		}
		blocks = append(blocks, section(text))
	}

	buttonText := "View Full Analysis"
	if s.Status != models.StatusCompleted {
		buttonText = "View Details"
	}
	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, buttonText, false, false))
	btn.URL = sessionURL(s.ID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

func reportDigest(r models.Report) string {
	var b strings.Builder
	emoji := urgencyEmoji[r.Urgency]
	if emoji == "" {
		emoji = ":grey_question:"
	}
	fmt.Fprintf(&b, "%s *Urgency:* %s   *Confidence:* %.0f%%   *Stages:* %d\n",
		emoji, r.Urgency, r.OverallConfidence*100, r.StagesCompleted)

	if len(r.DifferentialDiagnosis) > 0 {
		b.WriteString("\n*Differential:*\n")
		for i, d := range r.DifferentialDiagnosis {
			if i == maxDiagnoses {
				fmt.Fprintf(&b, "_+%d more_\n", len(r.DifferentialDiagnosis)-maxDiagnoses)
				break
			}
			line := "• " + d.Diagnosis
			if d.Probability != "" {
				line += " (" + d.Probability + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	if len(r.RedFlags) > 0 {
		b.WriteString("\n*Red flags:*\n")
		for _, f := range r.RedFlags {
			b.WriteString(":warning: " + f + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateForSlack(text string) string {
	if utf8.RuneCountInString(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated, view full analysis in dashboard)_"
}
