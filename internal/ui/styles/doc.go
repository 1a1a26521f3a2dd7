// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and lipgloss styles of the lingshu TUI.

All colors are lipgloss.AdaptiveColor values. NewTheme("auto") lets the
terminal background decide between the light and dark variants; "dark" and
"light" force one.

	theme := styles.NewTheme(cfg.UI.Theme)
	label := theme.AssistantLabel.Render("Lingshu")

Status text always carries an ASCII indicator ([OK], [X], [!], [i]) next to
its color so it reads without color.
*/
package styles
