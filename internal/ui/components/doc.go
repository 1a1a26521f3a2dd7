// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the visual pieces of the Lingshu chat screen.

# Display

Header (statusbar.go) - Brand, session title and session count.
StatusBar (statusbar.go) - Backend reachability, loaded model, generation state and key hints.
MessageBubble (message.go) - One transcript message; assistant replies go through glamour.
EditPreview (edit_preview.go) - Diff of an edited user message before regeneration.

# Input

InputArea (input.go) - Prompt box with the images queued for the next send.
CompletionPopup (completion.go) - Command and argument completions.

# Feedback

Spinner (spinner.go) - ASCII spinner for the status bar.
ToastManager (toast.go) - Corner notices. Warnings and errors stay until dismissed.

All components take a *styles.Theme and render with lipgloss; none of them
hold references to the controller.
*/
package components
