package main

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/stretchr/testify/assert"
)

func TestColumnStyles_ResultTable(t *testing.T) {
	style := columnStyles(resultTextCols)

	tests := []struct {
		name  string
		col   int
		align lipgloss.Position
	}{
		{"domain", 0, lipgloss.Left},
		{"tliphs", 1, lipgloss.Right},
		{"unit", 2, lipgloss.Left},
		{"years", 3, lipgloss.Right},
		{"dsav", 6, lipgloss.Right},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.align, style(0, tt.col).GetAlign())
		})
	}

	assert.True(t, style(table.HeaderRow, 1).GetBold())
}

func TestColumnStyles_SeriesTable(t *testing.T) {
	style := columnStyles(seriesTextCols)

	assert.Equal(t, lipgloss.Left, style(0, 0).GetAlign())
	assert.Equal(t, lipgloss.Right, style(0, 1).GetAlign())
	assert.Equal(t, lipgloss.Right, style(3, 4).GetAlign())
}
