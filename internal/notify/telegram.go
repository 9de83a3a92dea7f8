package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tradeclash/contest-engine/internal/config"
	"github.com/tradeclash/contest-engine/internal/models"
)

// sender is the bot surface the notifier needs, split out for tests.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (interface{}, error)
}

type botSender struct {
	bot *bot.Bot
}

func (s *botSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (interface{}, error) {
	return s.bot.SendMessage(ctx, params)
}

// TelegramNotifier announces contest lifecycle events and settlement
// results to a Telegram channel. Without a bot token it degrades to a
// no-op so the engine runs fine in development.
type TelegramNotifier struct {
	sender sender
	chatID int64
	logger *logrus.Logger

	titler  cases.Caser
	printer *message.Printer
}

// NewTelegramNotifier creates a notifier from configuration. An empty
// bot token disables delivery.
func NewTelegramNotifier(cfg config.TelegramConfig, logger *logrus.Logger) (*TelegramNotifier, error) {
	n := &TelegramNotifier{
		chatID:  cfg.ChatID,
		logger:  logger,
		titler:  cases.Title(language.English),
		printer: message.NewPrinter(language.English),
	}

	if cfg.BotToken == "" {
		logger.Info("Telegram notifications disabled: no bot token configured")
		return n, nil
	}

	b, err := bot.New(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	n.sender = &botSender{bot: b}
	return n, nil
}

// Enabled reports whether messages will actually be delivered.
func (n *TelegramNotifier) Enabled() bool {
	return n.sender != nil
}

// ContestOpened announces a newly created contest.
func (n *TelegramNotifier) ContestOpened(ctx context.Context, def *models.ContestDefinition) error {
	return n.send(ctx, n.formatContestOpened(def))
}

// RegistrationClosed announces that a contest's registration window
// has ended.
func (n *TelegramNotifier) RegistrationClosed(ctx context.Context, def *models.ContestDefinition) error {
	return n.send(ctx, n.formatRegistrationClosed(def))
}

// PublishPayouts announces the winners of a settled contest.
func (n *TelegramNotifier) PublishPayouts(ctx context.Context, def *models.ContestDefinition, result *models.SettlementResult) error {
	return n.send(ctx, n.formatSettlement(def, result))
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	if n.sender == nil {
		return nil
	}
	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	n.logger.WithField("chat_id", n.chatID).Debug("Telegram notification sent")
	return nil
}

func (n *TelegramNotifier) formatContestOpened(def *models.ContestDefinition) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🏆 %s %s Contest Open\n\n",
		n.titler.String(string(def.Kind)), n.titler.String(string(def.AssetClass))))
	sb.WriteString(fmt.Sprintf("Entry fee: %s\n", n.amount(def.EntryFee)))
	sb.WriteString(fmt.Sprintf("Prize pool: %s\n", n.amount(def.PrizePool)))
	sb.WriteString(fmt.Sprintf("Starting capital: %s\n", n.amount(def.StartingCapital)))
	sb.WriteString(fmt.Sprintf("Trading: %s to %s\n",
		def.MarketStart.Format("Mon 02 Jan 15:04"), def.MarketEnd.Format("Mon 02 Jan 15:04")))
	sb.WriteString(fmt.Sprintf("Register before %s", def.RegistrationDeadline.Format("Mon 02 Jan 15:04 MST")))
	return sb.String()
}

func (n *TelegramNotifier) formatRegistrationClosed(def *models.ContestDefinition) string {
	return fmt.Sprintf("🔒 Registration closed for %s %s contest. Trading starts at %s.",
		n.titler.String(string(def.Kind)), n.titler.String(string(def.AssetClass)),
		def.MarketStart.Format("15:04 MST"))
}

func (n *TelegramNotifier) formatSettlement(def *models.ContestDefinition, result *models.SettlementResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🏁 %s %s Contest Settled\n",
		n.titler.String(string(def.Kind)), n.titler.String(string(def.AssetClass))))
	if result.Degraded {
		sb.WriteString("⚠️ Settled on last known prices\n")
	}
	sb.WriteString(fmt.Sprintf("Settled at %s\n\n", result.SettledAt.Format(time.RFC822)))

	medals := map[int]string{1: "🥇", 2: "🥈", 3: "🥉"}
	for _, award := range result.Awards {
		prefix, ok := medals[award.Rank]
		if !ok {
			prefix = fmt.Sprintf("#%d", award.Rank)
		}
		sb.WriteString(fmt.Sprintf("%s %s wins %s\n", prefix, award.UserID, n.amount(award.Amount)))
	}
	if len(result.Awards) == 0 {
		sb.WriteString("No participants, no prizes awarded.")
	}
	return sb.String()
}

// amount renders a decimal with thousands separators.
func (n *TelegramNotifier) amount(d decimal.Decimal) string {
	if d.IsInteger() {
		return n.printer.Sprintf("%d", d.IntPart())
	}
	return n.printer.Sprintf("%.2f", d.InexactFloat64())
}
