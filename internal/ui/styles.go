package ui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("62")  // Purple
	colorMuted   = lipgloss.Color("240") // Gray
	colorSuccess = lipgloss.Color("78")  // Green
	colorWarn    = lipgloss.Color("214") // Orange
	colorError   = lipgloss.Color("196") // Red
)

var badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)

// ActiveBadge marks running gesture control.
var ActiveBadge = badgeBase.
	Foreground(lipgloss.Color("0")).
	Background(colorSuccess)

// InactiveBadge marks stopped gesture control.
var InactiveBadge = badgeBase.
	Foreground(lipgloss.Color("255")).
	Background(colorMuted)

// LoadingBadge is shown while the model loads.
var LoadingBadge = badgeBase.
	Foreground(lipgloss.Color("0")).
	Background(colorWarn)

// SlideCounter shows "n / total".
var SlideCounter = lipgloss.NewStyle().
	Foreground(colorPrimary).
	Bold(true).
	Padding(0, 1)

// SlideBox frames the current slide.
var SlideBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 3)

// FeedbackStyle flashes the last gesture.
var FeedbackStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true).
	Padding(0, 1)

// ErrorStyle for detection errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// HelpStyle for the key hints.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(0, 1)
