// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// The palette matches the build logger so summaries and step output agree.
var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	pathStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
)
