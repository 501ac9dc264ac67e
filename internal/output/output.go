// Package output renders CLI output: colored status lines and the findings
// table for completed reviews.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/coderev/internal/models"
)

// UI provides colored output and respects verbose mode.
type UI struct {
	Verbose bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// SeverityColor returns the severity colored by how bad it is.
func SeverityColor(severity models.Severity) string {
	s := string(severity)
	switch severity {
	case models.SeverityCritical:
		return red(strings.ToUpper(s))
	case models.SeverityMajor:
		return yellow(s)
	case models.SeverityMinor:
		return cyan(s)
	default:
		return s
	}
}

// RecommendationColor returns the verdict colored by outcome.
func RecommendationColor(rec models.Recommendation) string {
	s := strings.ReplaceAll(string(rec), "_", " ")
	switch rec {
	case models.RecommendationApprove:
		return green(s)
	case models.RecommendationRequestChanges:
		return yellow(s)
	case models.RecommendationReject:
		return red(s)
	default:
		return s
	}
}

// ScoreColor returns the string colored by quality score.
func ScoreColor(score int) string {
	s := fmt.Sprintf("%d", score)
	switch {
	case score >= 80:
		return green(s)
	case score >= 50:
		return yellow(s)
	default:
		return red(s)
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// RenderReport prints the full review result: verdict line, findings table,
// and per-finding suggestions in verbose mode.
func (u *UI) RenderReport(report *models.Report) {
	fmt.Fprintf(u.Out, "\nReview %s\n", report.ReviewID)
	fmt.Fprintf(u.Out, "Score: %s/100  Recommendation: %s\n",
		ScoreColor(report.Score), RecommendationColor(report.Recommendation))
	fmt.Fprintf(u.Out, "%s\n\n", report.Summary)

	if len(report.Issues) == 0 {
		u.Success("No issues found in %d file(s)", len(report.Files))
		return
	}

	table := u.Table([]string{"Severity", "Category", "Location", "Issue", "Confidence"})
	for _, f := range report.Issues {
		table.Append([]string{
			SeverityColor(f.Severity),
			string(f.Category),
			fmt.Sprintf("%s:%d", f.Path, f.LineStart),
			f.Title,
			fmt.Sprintf("%.2f", f.Confidence),
		})
	}
	_ = table.Render()

	if u.Verbose {
		for _, f := range report.Issues {
			if f.Suggestion == "" {
				continue
			}
			u.VerboseLog("%s:%d %s", f.Path, f.LineStart, f.Suggestion)
		}
	}

	counts := report.Statistics.BySeverity
	fmt.Fprintf(u.Out, "\n%d issue(s): %d critical, %d major, %d minor, %d info  (cost $%.4f)\n",
		report.Statistics.TotalIssues, counts.Critical, counts.Major, counts.Minor, counts.Info,
		report.Statistics.TotalCost)
}
