// Package styles provides shared lipgloss styles for CLI and TUI components.
package styles

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// Tokyo Night color palette.
var (
	ColorGreen  = lipgloss.Color("#9ece6a")
	ColorYellow = lipgloss.Color("#e0af68")
	ColorBlue   = lipgloss.Color("#7aa2f7")
	ColorPurple = lipgloss.Color("#bb9af7")
	ColorRed    = lipgloss.Color("#f7768e")
	ColorGray   = lipgloss.Color("#565f89")
	ColorWhite  = lipgloss.Color("#c0caf5")
)

// Banner ASCII art for the header.
const Banner = `
 ╔╦╗╔═╗ ╔═╗╦ ╦╔═╗╔╦╗
 ║║║║═╬╗║  ╠═╣╠═╣ ║
 ╩ ╩╚═╝╚╚═╝╩ ╩╩ ╩ ╩ `

// BannerStyle styles the ASCII art banner.
var BannerStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true)

// HeaderStyle styles the conversation title bar.
var HeaderStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true).
	Padding(0, 1)

// SelfStyle styles the local user's name on transcript lines.
var SelfStyle = lipgloss.NewStyle().
	Foreground(ColorGreen).
	Bold(true)

// PeerStyle styles other authors on transcript lines.
var PeerStyle = lipgloss.NewStyle().
	Foreground(ColorPurple).
	Bold(true)

// StampStyle styles transcript timestamps.
var StampStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// TextStyle styles message bodies.
var TextStyle = lipgloss.NewStyle().
	Foreground(ColorWhite)

// StatusStyles map connection states to their indicator style.
var (
	StatusConnected    = lipgloss.NewStyle().Foreground(ColorGreen)
	StatusConnecting   = lipgloss.NewStyle().Foreground(ColorYellow)
	StatusDisconnected = lipgloss.NewStyle().Foreground(ColorRed)
)

// ErrorStyle styles inline error messages.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed)

// DividerStyle styles horizontal dividers.
var DividerStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// HelpStyle styles key hints.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// FormTheme returns the huh theme used by interactive forms.
func FormTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = t.Focused.Title.Foreground(ColorBlue).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(ColorGray)
	t.Focused.ErrorIndicator = t.Focused.ErrorIndicator.Foreground(ColorRed)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(ColorRed)
	t.Focused.TextInput.Prompt = t.Focused.TextInput.Prompt.Foreground(ColorPurple)
	t.Focused.TextInput.Cursor = t.Focused.TextInput.Cursor.Foreground(ColorPurple)
	t.Focused.TextInput.Placeholder = t.Focused.TextInput.Placeholder.Foreground(ColorGray)

	t.Blurred = t.Focused
	t.Blurred.Base = t.Blurred.Base.BorderStyle(lipgloss.HiddenBorder())

	return t
}
