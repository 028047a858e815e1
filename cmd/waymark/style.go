package main

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	mintGreen  = lipgloss.Color("#A8E6CF")
	salmonPink = lipgloss.Color("#FFB3BA")
	mutedGray  = lipgloss.Color("#6B7280")
)

var (
	indexStyle     = lipgloss.NewStyle().Foreground(mutedGray).Width(4).Align(lipgloss.Right)
	permanentStyle = lipgloss.NewStyle().Foreground(mintGreen).Bold(true)
	lineStyle      = lipgloss.NewStyle().Foreground(salmonPink)
	labelStyle     = lipgloss.NewStyle().Foreground(mutedGray)
)
