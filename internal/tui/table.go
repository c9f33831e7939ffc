package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RenderTable draws a bordered table for non-interactive output. When
// statusCol is a valid index, that column is colored by StatusStyle.
func RenderTable(headers []string, rows [][]string, statusCol int) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return HeaderStyle.Padding(0, 1)
			}
			if col == statusCol && row >= 0 && row < len(rows) && col < len(rows[row]) {
				return StatusStyle(rows[row][col]).Padding(0, 1)
			}
			return base
		})
	return t.Render() + "\n"
}
