package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/marketgrid/onboardengine/internal/workflow"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
)

func renderIndexRowList(rows []workflow.IndexRow) string {
	headers := []string{"ID", "Market Role", "Status", "Current Step", "Updated"}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{
			r.ID.String(), r.MarketRole, formatStatus(r.Status), r.CurrentStepID, r.UpdatedAt.Format(time.RFC3339),
		})
	}

	widths := columnWidths(headers, table)
	lines := []string{headerStyle.Render(formatRow(headers, widths))}
	for _, row := range table {
		lines = append(lines, formatRow(row, widths))
	}
	return strings.Join(lines, "\n")
}

func renderInstanceDetails(instance *workflow.Instance) string {
	lines := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("ID:"), instance.ID),
		fmt.Sprintf("%s %s", labelStyle.Render("Tenant:"), instance.TenantID),
		fmt.Sprintf("%s %s", labelStyle.Render("Market Role:"), instance.MarketRole),
		fmt.Sprintf("%s %d", labelStyle.Render("Template Version:"), instance.TemplateVersion),
		fmt.Sprintf("%s %s", labelStyle.Render("Status:"), formatStatus(instance.Status)),
		fmt.Sprintf("%s %s", labelStyle.Render("Current Step:"), instance.CurrentStepID),
	}

	if len(instance.StepStates) > 0 {
		lines = append(lines, labelStyle.Render("Steps:"))
		for stepID, state := range instance.StepStates {
			lines = append(lines, fmt.Sprintf("  %s: %s", stepID, state.Status))
		}
	}

	lines = append(lines,
		fmt.Sprintf("%s %s", labelStyle.Render("Created At:"), instance.CreatedAt.Format(time.RFC3339)),
		fmt.Sprintf("%s %s", labelStyle.Render("Updated At:"), instance.UpdatedAt.Format(time.RFC3339)),
		fmt.Sprintf("%s %d", labelStyle.Render("Version:"), instance.Version),
	)

	return strings.Join(lines, "\n")
}

func formatStatus(status workflow.Status) string {
	switch status {
	case workflow.StatusCompleted:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render(string(status))
	case workflow.StatusFailed, workflow.StatusCancelled, workflow.StatusRolledBack:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Render(string(status))
	case workflow.StatusPaused, workflow.StatusAwaitingValidation, workflow.StatusSubmitted:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623")).Render(string(status))
	default:
		return string(status)
	}
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, 0, len(cells))
	for i, cell := range cells {
		parts = append(parts, padRight(cell, widths[i]+2))
	}
	return strings.TrimRight(strings.Join(parts, ""), " ")
}

func padRight(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return fmt.Sprintf("%-*s", width, value)
}
