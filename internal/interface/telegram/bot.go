// Package telegram is the Telegram interface of the olymp queue bot. It turns
// updates into engine commands and engine results into replies.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/command"
	"github.com/hselingforschool/olymp-queue-bot/internal/application/query"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/external/telegram"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// OwnerID is the Telegram ID of the organizer. Owner commands are
	// refused for everyone else.
	OwnerID int64

	// OwnerHandle is shown to users in error messages ("@owner").
	OwnerHandle string

	// Debug enables debug logging.
	Debug bool

	// Logger for structured logging.
	Logger *slog.Logger

	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// GracefulShutdownTimeout is the timeout for graceful shutdown.
	GracefulShutdownTimeout time.Duration

	// MergeTTL is how long a merge proposal waits for /confirm_merge.
	MergeTTL time.Duration

	// MuteOwnerReports stops forwarding internal errors to the owner chat.
	MuteOwnerReports bool
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Logger:                  slog.Default(),
		MaxConcurrentUpdates:    32,
		GracefulShutdownTimeout: 30 * time.Second,
		MergeTTL:                10 * time.Minute,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// API is the part of the Bot API client the bot uses.
type API interface {
	SendText(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
	EditMessageKeyboard(ctx context.Context, chatID, messageID int64, kb *telegram.InlineKeyboardMarkup) error
	GetMe(ctx context.Context) (*telegram.User, error)
	StartPolling(ctx context.Context, handler telegram.UpdateHandler) error
}

var _ API = (*telegram.Client)(nil)

// BotDependencies contains all dependencies for the bot handlers.
type BotDependencies struct {
	API     API
	Engine  *command.Engine
	Queries *query.Service
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot is the main Telegram bot controller.
type Bot struct {
	config  BotConfig
	api     API
	engine  *command.Engine
	queries *query.Service
	router  *Router
	logger  *slog.Logger

	merges *mergeBook

	// Lifecycle management
	running   bool
	runningMu sync.RWMutex
	updateSem chan struct{}
	wg        sync.WaitGroup

	stats BotStats
}

// BotStats holds runtime statistics.
type BotStats struct {
	StartedAt       time.Time
	UpdatesReceived atomic.Int64
	UpdatesHandled  atomic.Int64
	ErrorsCount     atomic.Int64
}

// NewBot creates a new Telegram bot with all dependencies.
func NewBot(config BotConfig, deps BotDependencies) (*Bot, error) {
	if deps.API == nil {
		return nil, errors.New("telegram api client is required")
	}
	if deps.Engine == nil || deps.Queries == nil {
		return nil, errors.New("engine and queries are required")
	}
	defaults := DefaultBotConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = defaults.MaxConcurrentUpdates
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = defaults.GracefulShutdownTimeout
	}
	if config.MergeTTL <= 0 {
		config.MergeTTL = defaults.MergeTTL
	}

	log := config.Logger.With(logger.Component("telegram_bot"))
	b := &Bot{
		config:    config,
		api:       deps.API,
		engine:    deps.Engine,
		queries:   deps.Queries,
		router:    NewRouter(RouterConfig{Logger: log, Debug: config.Debug}),
		logger:    log,
		merges:    newMergeBook(config.MergeTTL),
		updateSem: make(chan struct{}, config.MaxConcurrentUpdates),
	}
	b.registerRoutes()
	return b, nil
}

// registerRoutes wires every command of the bot.
func (b *Bot) registerRoutes() {
	r := b.router

	r.RegisterCommand("start", AccessAnyone, "авторизация в боте", b.handleStart)
	r.RegisterCommand("confirm_merge", AccessAnyone, "", b.handleConfirmMerge)
	r.RegisterCommand("help", AccessAnyone, "список команд", b.handleHelp)

	// Owner
	r.RegisterCommand("olymp_create", AccessOwner, "создать олимпиаду: /olymp_create Название", b.handleOlympCreate)
	r.RegisterCommand("olymp_registration_start", AccessOwner, "открыть регистрацию", b.handleRegistrationStart)
	r.RegisterCommand("olymp_reg_start", AccessOwner, "", b.handleRegistrationStart)
	r.RegisterCommand("olymp_start", AccessOwner, "начать олимпиаду", b.handleOlympStart)
	r.RegisterCommand("olymp_finish", AccessOwner, "завершить олимпиаду", b.handleOlympFinish)
	r.RegisterCommand("olymp_info", AccessOwner, "сводка по олимпиаде", b.handleOlympInfo)
	r.RegisterCommand("add_problem", AccessOwner, "добавить задачу: /add_problem Название", b.handleAddProblem)
	r.RegisterCommand("add_block", AccessOwner, "добавить блок: /add_block junior_1 id1 id2 id3 [файл]", b.handleAddBlock)
	r.RegisterCommand("add_participant", AccessOwner, "добавить участника: /add_participant ник имя фамилия класс", b.handleAddParticipant)
	r.RegisterCommand("add_examiner", AccessOwner, "добавить принимающего: /add_examiner ник имя фамилия ссылка [id задач через запятую]", b.handleAddExaminer)
	r.RegisterCommand("examiner_add_problem", AccessOwner, "дать принимающему задачу: /examiner_add_problem id_принимающего id_задачи", b.handleOwnerAddProblem)
	r.RegisterCommand("examiner_remove_problem", AccessOwner, "забрать у принимающего задачу", b.handleOwnerRemoveProblem)
	r.RegisterCommand("withdraw", AccessOwner, "снять принимающего со сдачи: /withdraw id_принимающего [free]", b.handleOwnerWithdraw)
	r.RegisterCommand("cancel_entry", AccessOwner, "отменить запись: /cancel_entry id_записи", b.handleCancelEntry)
	r.RegisterCommand("queue_list", AccessOwner, "текущая очередь", b.handleQueueList)

	// Participant
	r.RegisterCommand("queue", AccessParticipant, "записаться на сдачу задачи: /queue номер", b.handleQueue)
	r.RegisterCommand("leave", AccessParticipant, "выйти из очереди", b.handleLeave)
	r.RegisterCommand("absent", AccessParticipant, "принимающий не пришёл", b.handleAbsent)
	r.RegisterCommand("progress", AccessParticipant, "мои задачи и попытки", b.handleProgress)

	// Examiner
	r.RegisterCommand("free", AccessExaminer, "готов принимать", b.handleFree)
	r.RegisterCommand("busy", AccessExaminer, "не готов принимать", b.handleBusy)
	r.RegisterCommand("accept", AccessExaminer, "задача принята", b.judgeCommand(judgeSuccess))
	r.RegisterCommand("reject", AccessExaminer, "задача не принята", b.judgeCommand(judgeFail))
	r.RegisterCommand("cancel", AccessExaminer, "отменить сдачу без потери попытки", b.judgeCommand(judgeCanceled))
	r.RegisterCommand("problems", AccessExaminer, "мои задачи", b.handleProblems)
	r.RegisterCommand("take", AccessExaminer, "добавить задачу: /take id", b.handleTake)
	r.RegisterCommand("drop", AccessExaminer, "убрать задачу: /drop id", b.handleDrop)

	r.RegisterCallbackPrefix("judge:", AccessExaminer, b.handleJudgeCallback)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Start verifies the token and polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.stats.StartedAt = time.Now()
	b.runningMu.Unlock()

	me, err := b.api.GetMe(ctx)
	if err != nil {
		b.setStopped()
		return fmt.Errorf("failed to verify bot token: %w", err)
	}
	b.logger.Info("bot verified", "id", me.ID, "username", me.Username)

	err = b.api.StartPolling(ctx, b.HandleUpdate)
	b.setStopped()
	return err
}

func (b *Bot) setStopped() {
	b.runningMu.Lock()
	b.running = false
	b.runningMu.Unlock()
}

// Stop waits for in-flight updates.
func (b *Bot) Stop(ctx context.Context) error {
	b.logger.Info("stopping telegram bot")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("all handlers completed gracefully")
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
	case <-ctx.Done():
		b.logger.Warn("context cancelled during shutdown")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the bot is currently polling.
func (b *Bot) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

// Stats returns runtime counters.
func (b *Bot) Stats() map[string]any {
	return map[string]any{
		"started_at":       b.stats.StartedAt,
		"updates_received": b.stats.UpdatesReceived.Load(),
		"updates_handled":  b.stats.UpdatesHandled.Load(),
		"errors_count":     b.stats.ErrorsCount.Load(),
		"running":          b.IsRunning(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes a single Telegram update.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	select {
	case b.updateSem <- struct{}{}:
		defer func() { <-b.updateSem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	b.wg.Add(1)
	defer b.wg.Done()

	b.stats.UpdatesReceived.Add(1)
	start := time.Now()

	log := b.logger.With(
		logger.CorrelationID(uuid.NewString()),
		slog.Int64("update_id", update.UpdateID),
	)
	ctx = logger.WithContext(ctx, log)

	var err error
	switch {
	case update.Message != nil:
		err = b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		err = b.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		return nil
	}

	if err != nil {
		b.stats.ErrorsCount.Add(1)
		log.Error("failed to handle update", logger.Err(err), logger.Latency(time.Since(start)))
		return err
	}
	b.stats.UpdatesHandled.Add(1)
	if b.config.Debug {
		log.Debug("update handled", logger.Latency(time.Since(start)))
	}
	return nil
}

// handleMessage processes a Telegram message.
func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.From == nil || !telegram.IsPrivateChat(msg) {
		return nil
	}

	cmd := telegram.ExtractCommand(msg)
	if cmd == "" {
		return b.reply(ctx, msg.Chat.ID, "Я понимаю только команды. Список команд: /help")
	}

	route, ok := b.router.command(cmd)
	if !ok {
		return b.reply(ctx, msg.Chat.ID, "Неизвестная команда. Список команд: /help")
	}

	log := logger.FromContext(ctx).With(logger.TelegramID(msg.From.ID), slog.String("command", cmd))
	ctx = logger.WithContext(ctx, log)

	cc := CommandContext{
		TelegramID: msg.From.ID,
		Username:   msg.From.Username,
		ChatID:     msg.Chat.ID,
		Args:       telegram.ExtractCommandArgs(msg),
		Olymp:      b.engine.Contexts().Get(),
	}

	allowed, err := b.authorize(ctx, route.access, &cc)
	if err != nil {
		return b.replyError(ctx, cc.ChatID, err)
	}
	if !allowed {
		return b.reply(ctx, cc.ChatID, route.access.denial())
	}

	var text string
	err = b.safely(ctx, func() error {
		var err error
		text, err = route.handle(ctx, cc)
		return err
	})
	if err != nil {
		return b.replyError(ctx, cc.ChatID, err)
	}
	if text == "" {
		return nil
	}
	return b.reply(ctx, cc.ChatID, text)
}

// handleCallbackQuery processes a press on an inline keyboard button.
func (b *Bot) handleCallbackQuery(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq.From == nil {
		return nil
	}

	cc := CallbackContext{
		TelegramID: cq.From.ID,
		QueryID:    cq.ID,
		Data:       cq.Data,
		Olymp:      b.engine.Contexts().Get(),
	}
	if cq.Message != nil && cq.Message.Chat != nil {
		cc.ChatID = cq.Message.Chat.ID
		cc.MessageID = cq.Message.MessageID
	}
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(
		logger.TelegramID(cc.TelegramID), slog.String("callback", cq.Data)))

	toast, err := b.runCallback(ctx, &cc)
	if err != nil {
		toast = b.errorText(ctx, err)
	}
	if answerErr := b.api.AnswerCallbackQuery(ctx, cq.ID, toast); answerErr != nil {
		logger.FromContext(ctx).Warn("failed to answer callback query", logger.Err(answerErr))
	}
	if err != nil || cc.MessageID == 0 {
		return nil
	}

	// The keyboard is single-use.
	if err := b.api.EditMessageKeyboard(ctx, cc.ChatID, cc.MessageID, nil); err != nil {
		logger.FromContext(ctx).Warn("failed to remove keyboard", logger.Err(err))
	}
	return nil
}

func (b *Bot) runCallback(ctx context.Context, cc *CallbackContext) (string, error) {
	route, ok := b.router.callback(cc.Data)
	if !ok {
		return "Кнопка устарела", nil
	}

	cmdCtx := CommandContext{TelegramID: cc.TelegramID, ChatID: cc.ChatID, Olymp: cc.Olymp}
	allowed, err := b.authorize(ctx, route.access, &cmdCtx)
	if err != nil {
		return "", err
	}
	if !allowed {
		return route.access.denial(), nil
	}
	cc.Examiner = cmdCtx.Examiner

	var toast string
	err = b.safely(ctx, func() error {
		var err error
		toast, err = route.handle(ctx, *cc)
		return err
	})
	return toast, err
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHORIZATION
// ══════════════════════════════════════════════════════════════════════════════

// authorize checks access and fills the member of the command context.
func (b *Bot) authorize(ctx context.Context, access Access, cc *CommandContext) (bool, error) {
	switch access {
	case AccessAnyone:
		return true, nil
	case AccessOwner:
		return b.config.OwnerID != 0 && cc.TelegramID == b.config.OwnerID, nil
	}

	m, err := b.queries.ResolveMember(ctx, cc.Olymp, shared.TelegramID(cc.TelegramID))
	if shared.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch v := m.(type) {
	case *member.Participant:
		if access != AccessParticipant {
			return false, nil
		}
		cc.Participant = v
	case *member.Examiner:
		if access != AccessExaminer {
			return false, nil
		}
		cc.Examiner = v
	default:
		return false, nil
	}
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPLIES
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) reply(ctx context.Context, chatID int64, text string) error {
	if _, err := b.api.SendText(ctx, chatID, text); err != nil {
		return fmt.Errorf("reply to %d: %w", chatID, err)
	}
	return nil
}

// replyError reports a failed command. Domain errors are shown as is,
// internal ones are logged and forwarded to the owner.
func (b *Bot) replyError(ctx context.Context, chatID int64, err error) error {
	return b.reply(ctx, chatID, "Ошибка!\n"+b.errorText(ctx, err))
}

func (b *Bot) errorText(ctx context.Context, err error) string {
	if shared.IsUserFacing(err) {
		text := telegram.EscapeMarkdown(shared.UserMessage(err))
		if b.config.OwnerHandle != "" {
			text += "\nЕсли тебе кажется, что это баг, сообщи " + telegram.EscapeMarkdown(b.config.OwnerHandle)
		}
		return text
	}

	log := logger.FromContext(ctx)
	log.Error("internal error", logger.Err(err))
	if b.config.OwnerID != 0 && !b.config.MuteOwnerReports {
		if _, sendErr := b.api.SendText(ctx, b.config.OwnerID, "Внутренняя ошибка:\n"+telegram.EscapeMarkdown(err.Error())); sendErr != nil {
			log.Warn("failed to notify owner", logger.Err(sendErr))
		}
	}
	return "Что-то пошло не так. Организатор уже знает об этом"
}

// safely turns a handler panic into an internal error.
func (b *Bot) safely(ctx context.Context, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("panic recovered in handler",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// ══════════════════════════════════════════════════════════════════════════════
// PENDING MERGES
// ══════════════════════════════════════════════════════════════════════════════

type pendingMerge struct {
	proposal member.MergeProposal
	expires  time.Time
}

// mergeBook keeps merge proposals until the user confirms them.
type mergeBook struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[int64]pendingMerge
}

func newMergeBook(ttl time.Duration) *mergeBook {
	return &mergeBook{ttl: ttl, now: time.Now, pending: make(map[int64]pendingMerge)}
}

func (m *mergeBook) put(telegramID int64, p member.MergeProposal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[telegramID] = pendingMerge{proposal: p, expires: m.now().Add(m.ttl)}
}

// take removes and returns the proposal of the user.
func (m *mergeBook) take(telegramID int64) (member.MergeProposal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[telegramID]
	delete(m.pending, telegramID)
	if !ok || m.now().After(p.expires) {
		return member.MergeProposal{}, false
	}
	return p.proposal, true
}
