package telegram

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging for routing decisions.
	Debug bool
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS
// ══════════════════════════════════════════════════════════════════════════════

// Access says who may run a command.
type Access int

const (
	// AccessAnyone - no checks.
	AccessAnyone Access = iota
	// AccessOwner - only the configured owner account.
	AccessOwner
	// AccessParticipant - a participant of the current olymp.
	AccessParticipant
	// AccessExaminer - an examiner of the current olymp.
	AccessExaminer
)

func (a Access) denial() string {
	switch a {
	case AccessOwner:
		return "Эта команда доступна только организатору"
	case AccessParticipant:
		return "Эта команда доступна только участникам. Если ты участник, напиши /start"
	case AccessExaminer:
		return "Эта команда доступна только принимающим. Если ты принимающий, напиши /start"
	default:
		return ""
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT TYPES
// These types carry context information through the routing process.
// ══════════════════════════════════════════════════════════════════════════════

// CommandContext contains context for command handling.
type CommandContext struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// Username is the user's Telegram username without "@".
	Username string

	// ChatID is the chat ID where the command was sent.
	ChatID int64

	// Args is the command arguments (text after the command).
	Args string

	// Olymp is the context of the current olymp at the time of the update.
	Olymp olymp.Context

	// Participant is set for AccessParticipant commands.
	Participant *member.Participant

	// Examiner is set for AccessExaminer commands.
	Examiner *member.Examiner
}

// Fields splits Args by whitespace.
func (c CommandContext) Fields() []string {
	return strings.Fields(c.Args)
}

// CallbackContext contains context for callback query handling.
type CallbackContext struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// ChatID is the chat ID where the callback originated.
	ChatID int64

	// MessageID is the ID of the message with the inline keyboard.
	MessageID int64

	// QueryID is the callback query ID (for answering).
	QueryID string

	// Data is the callback data string.
	Data string

	Olymp    olymp.Context
	Examiner *member.Examiner
}

// CommandFunc handles a command and returns the reply text. An empty reply
// sends nothing.
type CommandFunc func(ctx context.Context, c CommandContext) (string, error)

// CallbackFunc handles a callback query and returns the toast text.
type CallbackFunc func(ctx context.Context, c CallbackContext) (string, error)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Routes incoming updates to appropriate handlers.
// ══════════════════════════════════════════════════════════════════════════════

type commandRoute struct {
	handle CommandFunc
	access Access
	help   string
}

type callbackRoute struct {
	handle CallbackFunc
	access Access
}

// Router maps commands and callback prefixes to handlers.
type Router struct {
	config RouterConfig
	logger *slog.Logger

	mu        sync.RWMutex
	commands  map[string]commandRoute
	callbacks map[string]callbackRoute
}

// NewRouter creates a new router.
func NewRouter(config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Router{
		config:    config,
		logger:    config.Logger,
		commands:  make(map[string]commandRoute),
		callbacks: make(map[string]callbackRoute),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION METHODS
// ══════════════════════════════════════════════════════════════════════════════

// RegisterCommand registers a handler for a command without the leading "/".
// help is shown by /help; commands without help are hidden.
func (r *Router) RegisterCommand(command string, access Access, help string, h CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands[command] = commandRoute{handle: h, access: access, help: help}

	if r.config.Debug {
		r.logger.Debug("registered command handler", "command", command)
	}
}

// RegisterCallbackPrefix registers a handler for callbacks matching a prefix.
// The prefix should include the trailing delimiter (e.g., "judge:").
func (r *Router) RegisterCallbackPrefix(prefix string, access Access, h CallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbacks[prefix] = callbackRoute{handle: h, access: access}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING METHODS
// ══════════════════════════════════════════════════════════════════════════════

func (r *Router) command(name string) (commandRoute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.commands[name]
	return route, ok
}

// callback finds the longest matching prefix.
func (r *Router) callback(data string) (callbackRoute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		matched string
		route   callbackRoute
	)
	for prefix, rt := range r.callbacks {
		if strings.HasPrefix(data, prefix) && len(prefix) > len(matched) {
			matched, route = prefix, rt
		}
	}
	return route, matched != ""
}

// Help lists the commands available with the given access levels.
func (r *Router) Help(levels ...Access) string {
	allowed := make(map[Access]bool, len(levels))
	for _, l := range levels {
		allowed[l] = true
	}

	r.mu.RLock()
	lines := make([]string, 0, len(r.commands))
	for name, route := range r.commands {
		if route.help == "" || !allowed[route.access] {
			continue
		}
		lines = append(lines, "/"+name+" - "+route.help)
	}
	r.mu.RUnlock()

	sort.Strings(lines)
	return telegram.EscapeMarkdown(strings.Join(lines, "\n"))
}
