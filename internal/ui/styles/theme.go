// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderTitle lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	MessageIndex   lipgloss.Style
	MessageBody    lipgloss.Style
	Timestamp      lipgloss.Style
	AttachmentLine lipgloss.Style
	PendingCursor  lipgloss.Style

	// ==========================================================================
	// INPUT AREA STYLES
	// ==========================================================================

	InputContainer   lipgloss.Style
	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style
	PendingImages    lipgloss.Style

	// ==========================================================================
	// STATUS BAR STYLES
	// ==========================================================================

	StatusBar     lipgloss.Style
	StatusOnline  lipgloss.Style
	StatusOffline lipgloss.Style
	StatusModel   lipgloss.Style
	StatusNoModel lipgloss.Style
	StatusState   lipgloss.Style
	ShortcutKey   lipgloss.Style
	ShortcutDesc  lipgloss.Style

	// ==========================================================================
	// COMPLETION POPUP STYLES
	// ==========================================================================

	CompletionPopup    lipgloss.Style
	CompletionItem     lipgloss.Style
	CompletionSelected lipgloss.Style
	CompletionDesc     lipgloss.Style

	// ==========================================================================
	// NOTICE STYLES
	// ==========================================================================

	NoticeBox     lipgloss.Style
	NoticeTitle   lipgloss.Style
	NoticeMessage lipgloss.Style
	NoticeTip     lipgloss.Style

	// ==========================================================================
	// OVERLAY STYLES
	// ==========================================================================

	Overlay      lipgloss.Style
	OverlayTitle lipgloss.Style
	DiffAdded    lipgloss.Style
	DiffRemoved  lipgloss.Style

	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	InfoStyle    lipgloss.Style
}

// NewTheme creates a theme for mode "dark", "light" or "auto". Forced modes
// fix how adaptive colors resolve; "auto" asks the terminal.
func NewTheme(mode string) *Theme {
	colorProfile := termenv.ColorProfile()

	var isDark bool
	switch strings.ToLower(mode) {
	case "light":
		isDark = false
		lipgloss.SetHasDarkBackground(false)
	case "dark":
		isDark = true
		lipgloss.SetHasDarkBackground(true)
	default:
		isDark = termenv.HasDarkBackground()
	}

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

// GlamourStyle names the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderBrand = lipgloss.NewStyle().
		Bold(true).
		Foreground(Teal)

	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	// Messages
	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Teal)

	t.MessageIndex = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.MessageBody = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.AttachmentLine = lipgloss.NewStyle().
		Foreground(TextSecondary).
		PaddingLeft(2)

	t.PendingCursor = lipgloss.NewStyle().
		Foreground(Teal).
		Bold(true)

	// Input area
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.InputPlaceholder = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.PendingImages = lipgloss.NewStyle().
		Foreground(Amber).
		Padding(0, 1)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusOnline = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)

	t.StatusOffline = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.StatusModel = lipgloss.NewStyle().
		Foreground(Teal)

	t.StatusNoModel = lipgloss.NewStyle().
		Foreground(Amber)

	t.StatusState = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Completion popup
	t.CompletionPopup = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.CompletionItem = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.CompletionSelected = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Teal).
		Bold(true)

	t.CompletionDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Notices
	t.NoticeBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		Padding(0, 1)

	t.NoticeTitle = lipgloss.NewStyle().
		Bold(true)

	t.NoticeMessage = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.NoticeTip = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	// Overlays
	t.Overlay = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Teal).
		Padding(1, 2)

	t.OverlayTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Teal).
		MarginBottom(1)

	t.DiffAdded = lipgloss.NewStyle().
		Foreground(DiffAdded).
		Bold(true)

	t.DiffRemoved = lipgloss.NewStyle().
		Foreground(DiffRemoved).
		Strikethrough(true)

	t.SuccessStyle = lipgloss.NewStyle().Foreground(SuccessHighContrast).Bold(true)
	t.ErrorStyle = lipgloss.NewStyle().Foreground(ErrorHighContrast).Bold(true)
	t.WarningStyle = lipgloss.NewStyle().Foreground(WarningHighContrast).Bold(true)
	t.InfoStyle = lipgloss.NewStyle().Foreground(InfoHighContrast).Bold(true)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)
