// Package ui renders operator-facing output: grade badges, the coverage
// grid, and tabular status lines. Everything degrades to plain text when
// stdout is not a terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hivefleet/hfo/internal/audit"
)

var (
	gradeGood = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	gradeWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	gradeBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)

	coveredCell = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	deadCell    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Grade renders a letter grade with severity coloring.
func Grade(grade string) string {
	if !ShouldUseColor() {
		return grade
	}
	switch {
	case strings.HasPrefix(grade, "A"), grade == "B":
		return gradeGood.Render(grade)
	case grade == "C", grade == "D":
		return gradeWarn.Render(grade)
	default:
		return gradeBad.Render(grade)
	}
}

// Header renders a section heading.
func Header(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return headerStyle.Render(s)
}

// Dim renders secondary detail text.
func Dim(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return dimStyle.Render(s)
}

// CoverageGrid renders the per-minute coverage grid, one row per hour.
// Covered minutes print as #, dead minutes as dots.
func CoverageGrid(report *audit.CoverageReport) string {
	if len(report.Grid) == 0 {
		return "(empty window)\n"
	}
	color := ShouldUseColor()
	var b strings.Builder
	for row := 0; row*60 < len(report.Grid); row++ {
		fmt.Fprintf(&b, "%s ", report.WindowStart.Add(time.Duration(row)*time.Hour).Format("15:04"))
		for col := 0; col < 60; col++ {
			idx := row*60 + col
			if idx >= len(report.Grid) {
				break
			}
			if report.Grid[idx] {
				if color {
					b.WriteString(coveredCell.Render("#"))
				} else {
					b.WriteByte('#')
				}
			} else {
				if color {
					b.WriteString(deadCell.Render("."))
				} else {
					b.WriteByte('.')
				}
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// CoverageSummary renders the one-line operator summary for a report.
func CoverageSummary(report *audit.CoverageReport) string {
	return fmt.Sprintf("uptime %.1f%%  grade %s  dead zones %d  longest %dm",
		report.UptimePct, Grade(report.Grade), report.DeadZoneCount, report.LongestDeadZone)
}
