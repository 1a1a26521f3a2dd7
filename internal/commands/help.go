// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"strings"
)

// =============================================================================
// HELP TEXT
// =============================================================================

// HelpText renders the command reference. With a topic it describes that
// one command, or the commands of a category when the topic names one.
func HelpText(reg *Registry, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return helpOverview(reg)
	}

	name := topic
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	if cmd := reg.Get(name); cmd != nil {
		return helpCommand(cmd)
	}

	for _, category := range Categories() {
		if strings.EqualFold(category, topic) {
			var sb strings.Builder
			writeCategory(&sb, category, reg.ByCategory()[category])
			return sb.String()
		}
	}
	return fmt.Sprintf("No help for %q. Type /help to list commands.\n", topic)
}

func helpOverview(reg *Registry) string {
	var sb strings.Builder
	byCategory := reg.ByCategory()
	for i, category := range Categories() {
		cmds := byCategory[category]
		if len(cmds) == 0 {
			continue
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		writeCategory(&sb, category, cmds)
	}
	sb.WriteString("\nAnything that does not start with / is sent to the model.\n")
	return sb.String()
}

func writeCategory(sb *strings.Builder, category string, cmds []*Command) {
	sb.WriteString(category + "\n")
	for _, cmd := range cmds {
		usage := cmd.Usage
		if usage == "" {
			usage = cmd.Name
		}
		fmt.Fprintf(sb, "  %-28s %s\n", usage, cmd.Description)
	}
}

func helpCommand(cmd *Command) string {
	var sb strings.Builder
	usage := cmd.Usage
	if usage == "" {
		usage = cmd.Name
	}
	fmt.Fprintf(&sb, "%s\n  %s\n", usage, cmd.Description)
	if len(cmd.Aliases) > 0 {
		fmt.Fprintf(&sb, "\nAliases: %s\n", strings.Join(cmd.Aliases, ", "))
	}
	if len(cmd.Args) > 0 {
		sb.WriteString("\nArguments:\n")
		for _, a := range cmd.Args {
			req := "optional"
			if a.Required {
				req = "required"
			}
			line := fmt.Sprintf("  %-14s %-9s %s", a.Name, req, a.Description)
			if len(a.Values) > 0 {
				line += " (" + strings.Join(a.Values, ", ") + ")"
			}
			sb.WriteString(line + "\n")
		}
	}
	return sb.String()
}
