package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"discord-economy-bot/internal/handler"
)

// Command is one registered chat command.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Help    string
	Admin   bool
	Handler handler.HandlerFunc
}

// Router maps prefixed messages to command handlers.
type Router struct {
	prefix   string
	commands map[string]*Command
	names    []string
}

// NewRouter creates a router for messages starting with prefix.
func NewRouter(prefix string) *Router {
	return &Router{prefix: prefix, commands: make(map[string]*Command)}
}

// Register adds cmd under its name and aliases. The handler is wrapped in mws.
func (r *Router) Register(cmd Command, mws ...MiddlewareFunc) {
	cmd.Handler = Chain(cmd.Handler, mws...)
	c := &cmd
	for _, key := range append([]string{cmd.Name}, cmd.Aliases...) {
		key = strings.ToLower(key)
		if _, dup := r.commands[key]; dup {
			panic(fmt.Sprintf("bot: command %q registered twice", key))
		}
		r.commands[key] = c
	}
	r.names = append(r.names, cmd.Name)
}

// Parse splits content into a lower-cased command and its arguments.
// ok is false when content does not carry the prefix.
func (r *Router) Parse(content string) (command string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, r.prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, r.prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Lookup returns the command registered under name or alias.
func (r *Router) Lookup(name string) (*Command, bool) {
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// Dispatch runs the handler for c.Command. Unknown commands are ignored.
func (r *Router) Dispatch(ctx context.Context, c *handler.Context) error {
	cmd, ok := r.Lookup(c.Command)
	if !ok {
		return nil
	}
	return cmd.Handler(ctx, c)
}

// HelpText lists the commands, admin ones only when admin is set.
func (r *Router) HelpText(admin bool) string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("📖 **Commands**\n")
	for _, name := range names {
		cmd := r.commands[strings.ToLower(name)]
		if cmd.Admin && !admin {
			continue
		}
		fmt.Fprintf(&b, "\n`%s%s` %s", r.prefix, cmd.Usage, cmd.Help)
		if len(cmd.Aliases) > 0 {
			fmt.Fprintf(&b, " (aliases: %s)", strings.Join(cmd.Aliases, ", "))
		}
	}
	return b.String()
}
