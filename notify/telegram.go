// Package notify provides the Telegram alert sink: circuit-breaker trips,
// engine start/stop, fills, and daily summaries (§2b, ambient only — never
// consulted for trading decisions).
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PositionSummary is the minimal view of an open position the bot reports.
type PositionSummary struct {
	MarketSlug string
	Side       string
	Quantity   int
	AvgPrice   decimal.Decimal
	OpenedAt   time.Time
}

// StatsProvider supplies the figures the bot reports on command. Kept
// narrow and interface-bound so this package never imports state or risk
// directly.
type StatsProvider interface {
	GetStats() (trades, wins, losses int, pnl, equity decimal.Decimal)
	GetBalance() (decimal.Decimal, error)
	GetOpenPositions() ([]PositionSummary, error)
}

// TelegramBot manages the Telegram interface: alerts plus a small command
// set for status/control.
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	statsProvider StatsProvider

	onPause  func()
	onResume func()
}

// NewTelegramBot creates a bot bound to the given token/chat.
func NewTelegramBot(token string, chatID int64, statsProvider StatsProvider) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id not set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:           api,
		chatID:        chatID,
		stopCh:        make(chan struct{}),
		statsProvider: statsProvider,
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 telegram bot initialized")
	return bot, nil
}

// SetControlCallbacks wires the /pause and /resume commands.
func (b *TelegramBot) SetControlCallbacks(onPause, onResume func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPause = onPause
	b.onResume = onResume
}

// Start begins listening for commands in the background.
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 telegram bot started")
}

// Stop ends the command loop.
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	close(b.stopCh)
	log.Info().Msg("telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyEngineStart announces the strategy engine coming online.
func (b *TelegramBot) NotifyEngineStart(mode string) {
	balanceStr := "N/A"
	if b.statsProvider != nil {
		if bal, err := b.statsProvider.GetBalance(); err == nil {
			balanceStr = "$" + bal.StringFixed(2)
		}
	}

	msg := fmt.Sprintf(`🚀 *ENGINE STARTED*
━━━━━━━━━━━━━━━━━━━━
📊 Mode: *%s*
💰 Balance: *%s*

Use /help for commands`, mode, balanceStr)

	b.sendMarkdown(msg)
}

// NotifyEngineStop announces the strategy engine shutting down.
func (b *TelegramBot) NotifyEngineStop(reason string) {
	msg := fmt.Sprintf("🛑 *ENGINE STOPPED*\n━━━━━━━━━━━━━━━━━━━━\n%s", reason)
	b.sendMarkdown(msg)
}

// NotifyBreakerTripped alerts on a circuit breaker trip.
func (b *TelegramBot) NotifyBreakerTripped(reason string, dailyPnL decimal.Decimal) {
	msg := fmt.Sprintf(`🚨 *CIRCUIT BREAKER TRIPPED*
━━━━━━━━━━━━━━━━━━━━
📝 %s
💵 Daily P&L: *$%s*

Trading halted until manual reset.`,
		reason, dailyPnL.StringFixed(2))

	b.sendMarkdown(msg)
}

// NotifyFill sends a fill execution alert.
func (b *TelegramBot) NotifyFill(marketSlug, intent string, price decimal.Decimal, quantity int) {
	msg := fmt.Sprintf(`✅ *FILL*

📊 %s — %s
💵 Price: *%s¢*
📦 Qty: *%d*`,
		marketSlug, intent,
		price.Mul(decimal.NewFromInt(100)).StringFixed(1),
		quantity,
	)
	b.sendMarkdown(msg)
}

// NotifyDailySummary sends the end-of-day rollup.
func (b *TelegramBot) NotifyDailySummary() {
	if b.statsProvider == nil {
		return
	}

	trades, wins, losses, pnl, equity := b.statsProvider.GetStats()

	winRate := float64(0)
	if trades > 0 {
		winRate = float64(wins) / float64(trades) * 100
	}

	emoji := "📈"
	sign := "+"
	if pnl.IsNegative() {
		emoji = "📉"
		sign = ""
	}

	msg := fmt.Sprintf(`%s *DAILY SUMMARY*
━━━━━━━━━━━━━━━━━━━━

📊 Trades: *%d*
✅ Wins: *%d*
❌ Losses: *%d*
📈 Win Rate: *%.1f%%*

━━━━━━━━━━━━━━━━━━━━
💵 P&L: *%s$%s*
💰 Equity: *$%s*`,
		emoji,
		trades, wins, losses, winRate,
		sign, pnl.StringFixed(2),
		equity.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

// NotifyError sends an error alert.
func (b *TelegramBot) NotifyError(err error) {
	b.sendMarkdown(fmt.Sprintf("⚠️ *ERROR*\n\n`%s`", err.Error()))
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.Chat.ID != b.chatID {
				continue
			}
			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	switch strings.ToLower(msg.Command()) {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "balance":
		b.cmdBalance()
	case "stats":
		b.cmdStats()
	case "positions":
		b.cmdPositions()
	case "pause":
		b.cmdPause()
	case "resume":
		b.cmdResume()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	b.sendMarkdown(`🤖 *COMMANDS*
━━━━━━━━━━━━━━━━━━━━
📊 /status — Engine status
💰 /balance — Account balance
📈 /stats — Trading statistics
💼 /positions — Open positions
⏸️ /pause — Pause trading
▶️ /resume — Resume trading
🏓 /ping — Test connection`)
}

func (b *TelegramBot) cmdStatus() {
	balanceStr := "N/A"
	if b.statsProvider != nil {
		if bal, err := b.statsProvider.GetBalance(); err == nil {
			balanceStr = "$" + bal.StringFixed(2)
		}
	}
	b.sendMarkdown(fmt.Sprintf(`📊 *STATUS*
━━━━━━━━━━━━━━━━━━━━
🟢 RUNNING
💰 Balance: *%s*`, balanceStr))
}

func (b *TelegramBot) cmdStats() {
	if b.statsProvider == nil {
		b.send("❌ Stats not available")
		return
	}
	trades, wins, losses, pnl, equity := b.statsProvider.GetStats()
	winRate := float64(0)
	if trades > 0 {
		winRate = float64(wins) / float64(trades) * 100
	}
	sign := "+"
	if pnl.IsNegative() {
		sign = ""
	}
	b.sendMarkdown(fmt.Sprintf(`📈 *TRADING STATS*
━━━━━━━━━━━━━━━━━━━━
📊 Trades: *%d*
✅ Wins: *%d*
❌ Losses: *%d*
📈 Win Rate: *%.1f%%*
━━━━━━━━━━━━━━━━━━━━
💵 P&L: *%s$%s*
💰 Equity: *$%s*`,
		trades, wins, losses, winRate,
		sign, pnl.StringFixed(2),
		equity.StringFixed(2),
	))
}

func (b *TelegramBot) cmdPositions() {
	if b.statsProvider == nil {
		b.send("❌ Positions not available")
		return
	}
	positions, err := b.statsProvider.GetOpenPositions()
	if err != nil {
		b.send("❌ Failed to fetch positions")
		return
	}
	if len(positions) == 0 {
		b.send("📭 No open positions")
		return
	}

	msg := "💼 *OPEN POSITIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for i, pos := range positions {
		sideEmoji := "🟢"
		if pos.Side == "NO" {
			sideEmoji = "🔴"
		}
		duration := time.Since(pos.OpenedAt).Round(time.Second)
		msg += fmt.Sprintf("%s *%s* — %s\n💵 Avg: %s¢ | Qty: %d\n⏱️ Held: %v\n\n",
			sideEmoji, pos.MarketSlug, pos.Side,
			pos.AvgPrice.Mul(decimal.NewFromInt(100)).StringFixed(1),
			pos.Quantity, duration,
		)
		if i >= 9 {
			msg += fmt.Sprintf("_... and %d more_", len(positions)-10)
			break
		}
	}
	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdBalance() {
	if b.statsProvider == nil {
		b.send("❌ Balance not available")
		return
	}
	balance, err := b.statsProvider.GetBalance()
	if err != nil {
		b.send("❌ Failed to fetch balance")
		return
	}
	b.sendMarkdown(fmt.Sprintf("💰 *ACCOUNT BALANCE*\n━━━━━━━━━━━━━━━━━━━━\n💵 Available: *$%s*", balance.StringFixed(2)))
}

func (b *TelegramBot) cmdPause() {
	b.mu.RLock()
	cb := b.onPause
	b.mu.RUnlock()
	if cb != nil {
		cb()
	}
	b.send("⏸️ Trading paused")
	log.Info().Msg("trading paused via telegram")
}

func (b *TelegramBot) cmdResume() {
	b.mu.RLock()
	cb := b.onResume
	b.mu.RUnlock()
	if cb != nil {
		cb()
	}
	b.send("▶️ Trading resumed")
	log.Info().Msg("trading resumed via telegram")
}

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("failed to send telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("failed to send telegram message")
	}
}
