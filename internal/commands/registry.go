// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"sort"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/export"
	"github.com/jeranaias/lingshu-tui/internal/model"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/switch <session>")
	Usage string

	// Args defines the expected arguments
	Args []ArgDef

	// Handler executes the command. The returned tea.Cmd performs the work
	// and yields the result message; the REPL calls it synchronously.
	Handler func(ctx *Context, args []string) tea.Cmd

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString  ArgType = iota // Free-form string
	ArgTypeSession                // Session reference
	ArgTypeFile                   // Image path
	ArgTypeEnum                   // One of predefined values
	ArgTypeIndex                  // Message index
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns visible commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Categories lists help categories in display order.
func Categories() []string {
	return []string{"Conversation", "Sessions", "Attachments", "Model", "General"}
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	// Conversation
	r.Register(&Command{
		Name:        "/regen",
		Aliases:     []string{"/r", "/retry"},
		Description: "Regenerate the last reply",
		Category:    "Conversation",
		Handler:     HandleRegenerate,
	})

	r.Register(&Command{
		Name:        "/edit",
		Aliases:     []string{"/e"},
		Description: "Replace one of your messages and regenerate from it",
		Usage:       "/edit <index> <text>",
		Args: []ArgDef{
			{Name: "index", Required: true, Type: ArgTypeIndex, Description: "message number shown in the transcript"},
			{Name: "text", Required: true, Type: ArgTypeString, Description: "new message text"},
		},
		Category: "Conversation",
		Handler:  HandleEdit,
	})

	r.Register(&Command{
		Name:        "/preview",
		Description: "Show what an edit would change without running it",
		Usage:       "/preview <index> <text>",
		Args: []ArgDef{
			{Name: "index", Required: true, Type: ArgTypeIndex, Description: "message number shown in the transcript"},
			{Name: "text", Required: true, Type: ArgTypeString, Description: "new message text"},
		},
		Category: "Conversation",
		Handler:  HandlePreview,
	})

	r.Register(&Command{
		Name:        "/stop",
		Aliases:     []string{"/abort"},
		Description: "Stop the reply being generated",
		Category:    "Conversation",
		Handler:     HandleStop,
	})

	r.Register(&Command{
		Name:        "/clear",
		Aliases:     []string{"/c"},
		Description: "Clear the messages of the current chat",
		Category:    "Conversation",
		Handler:     HandleClear,
	})

	r.Register(&Command{
		Name:        "/export",
		Description: "Export the current chat",
		Usage:       "/export [md|json|yaml] [directory]",
		Args: []ArgDef{
			{Name: "format", Type: ArgTypeEnum, Values: export.Formats(), Description: "output format"},
			{Name: "directory", Type: ArgTypeFile, Description: "output directory"},
		},
		Category: "Conversation",
		Handler:  HandleExport,
	})

	// Sessions
	r.Register(&Command{
		Name:        "/new",
		Aliases:     []string{"/n"},
		Description: "Start a new chat",
		Category:    "Sessions",
		Handler:     HandleNew,
	})

	r.Register(&Command{
		Name:        "/sessions",
		Aliases:     []string{"/ls"},
		Description: "List saved chats",
		Category:    "Sessions",
		Handler:     HandleSessions,
	})

	r.Register(&Command{
		Name:        "/switch",
		Aliases:     []string{"/s", "/open"},
		Description: "Switch to another chat",
		Usage:       "/switch <session>",
		Args: []ArgDef{
			{Name: "session", Required: true, Type: ArgTypeSession, Description: "number, id or id prefix"},
		},
		Category: "Sessions",
		Handler:  HandleSwitch,
	})

	r.Register(&Command{
		Name:        "/rename",
		Description: "Rename the current chat",
		Usage:       "/rename <title>",
		Args: []ArgDef{
			{Name: "title", Required: true, Type: ArgTypeString, Description: "new title"},
		},
		Category: "Sessions",
		Handler:  HandleRename,
	})

	r.Register(&Command{
		Name:        "/delete",
		Aliases:     []string{"/rm"},
		Description: "Delete a chat (default: the current one)",
		Usage:       "/delete [session]",
		Args: []ArgDef{
			{Name: "session", Type: ArgTypeSession, Description: "number, id or id prefix"},
		},
		Category: "Sessions",
		Handler:  HandleDelete,
	})

	// Attachments
	r.Register(&Command{
		Name:        "/attach",
		Aliases:     []string{"/a", "/image"},
		Description: "Attach images to the next message",
		Usage:       "/attach <path>...",
		Args: []ArgDef{
			{Name: "path", Required: true, Type: ArgTypeFile, Description: "png, jpg, gif, bmp or webp file"},
		},
		Category: "Attachments",
		Handler:  HandleAttach,
	})

	r.Register(&Command{
		Name:        "/detach",
		Description: "Remove a pending image (default: all)",
		Usage:       "/detach [index|all]",
		Args: []ArgDef{
			{Name: "index", Type: ArgTypeIndex, Description: "pending image number"},
		},
		Category: "Attachments",
		Handler:  HandleDetach,
	})

	// Model
	r.Register(&Command{
		Name:        "/load",
		Description: "Load the model on the backend",
		Usage:       "/load [4bit|8bit|standard|cpu]",
		Args: []ArgDef{
			{Name: "quantization", Type: ArgTypeEnum, Values: quantizationNames(), Description: "load mode"},
		},
		Category: "Model",
		Handler:  HandleLoad,
	})

	r.Register(&Command{
		Name:        "/unload",
		Description: "Unload the model and free memory",
		Category:    "Model",
		Handler:     HandleUnload,
	})

	r.Register(&Command{
		Name:        "/status",
		Aliases:     []string{"/st"},
		Description: "Show backend and model status",
		Category:    "Model",
		Handler:     HandleStatus,
	})

	r.Register(&Command{
		Name:        "/set",
		Description: "Change a generation setting",
		Usage:       "/set <temperature|max_tokens|quantization> <value>",
		Args: []ArgDef{
			{Name: "key", Required: true, Type: ArgTypeEnum, Values: SettingKeys(), Description: "setting name"},
			{Name: "value", Required: true, Type: ArgTypeString, Description: "new value"},
		},
		Category: "Model",
		Handler:  HandleSet,
	})

	// General
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show help and available commands",
		Usage:       "/help [command]",
		Category:    "General",
		Handler:     HandleHelp,
	})

	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit lingshu",
		Category:    "General",
		Handler:     HandleQuit,
	})
}

func quantizationNames() []string {
	quants := model.Quantizations()
	names := make([]string, len(quants))
	for i, q := range quants {
		names[i] = string(q)
	}
	return names
}

// =============================================================================
// CONTEXT TYPE
// =============================================================================

// Context provides access to application state for command handlers.
type Context struct {
	// Controller owns sessions, attachments and the in-flight generation.
	Controller *controller.Controller

	// Base bounds backend calls made by handlers. Default: context.Background().
	Base context.Context

	// Export configures /export. Default: export.DefaultOptions().
	Export *export.Options
}

// NewContext creates a new command context.
func NewContext(ctrl *controller.Controller) *Context {
	return &Context{Controller: ctrl}
}

func (c *Context) base() context.Context {
	if c.Base != nil {
		return c.Base
	}
	return context.Background()
}

// =============================================================================
// COMPLETION TYPE
// =============================================================================

// Completion represents a completion suggestion.
type Completion struct {
	// Value to insert
	Value string

	// Display text (may include formatting)
	Display string

	// Description shown alongside
	Description string

	// Score for ranking (higher = better match)
	Score int
}
