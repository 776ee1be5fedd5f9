package bot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"torch/internal/catalog"
	"torch/internal/config"
	"torch/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	msgWelcome = "Hello! I'm your Torch Concierge. Ask me about booking, hours, guests or studio rules.\n\n" +
		"/tiers - membership plans\n/help - what I can do"
	msgHelp = "I can help with:\n" +
		"• booking a session\n" +
		"• your monthly hours\n" +
		"• bringing guests\n" +
		"• studio rules\n\n" +
		"Just type your question. /tiers lists the membership plans."
	msgRateLimited = "You're sending messages too quickly. Please wait a moment."
	msgUnsupported = "I can only read text messages. Please type your question."
)

// Bot answers member questions over Telegram with the keyword concierge.
type Bot struct {
	tgService domain.TelegramSender
	concierge domain.Concierge
	catalog   *catalog.Catalog
	limiter   domain.KVStore
	cfg       config.TelegramConfig
	metrics   *Metrics
	logger    *zerolog.Logger
}

func NewBot(
	tgService domain.TelegramSender,
	concierge domain.Concierge,
	cat *catalog.Catalog,
	limiter domain.KVStore,
	cfg config.TelegramConfig,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tgService == nil {
		return nil, fmt.Errorf("telegram service is required")
	}
	if concierge == nil {
		return nil, fmt.Errorf("concierge is required")
	}
	if cat == nil {
		cat = catalog.Default()
	}

	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}

	return &Bot{
		tgService: tgService,
		concierge: concierge,
		catalog:   cat,
		limiter:   limiter,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates (best-effort).
func (b *Bot) Stop() {
	if b == nil || b.tgService == nil {
		return
	}
	b.tgService.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Logger()

	b.withRecovery(func() {
		msg := update.Message
		if msg == nil || msg.From == nil {
			return
		}
		if b.metrics != nil {
			b.metrics.MessagesProcessed.Inc()
		}

		if !b.allow(updateCtx, msg.Chat.ID, &l) {
			b.sendMessage(msg.Chat.ID, msgRateLimited)
			return
		}

		if msg.IsCommand() {
			b.handleCommand(msg, &l)
			return
		}

		text := strings.TrimSpace(msg.Text)
		if text == "" {
			b.sendMessage(msg.Chat.ID, msgUnsupported)
			return
		}
		l.Debug().Int64("chat_id", msg.Chat.ID).Msg("concierge question")
		b.sendMessage(msg.Chat.ID, b.concierge.Respond(text))
	})
}

// allow applies the per-chat throttle. Limiter failures let the message through.
func (b *Bot) allow(ctx context.Context, chatID int64, l *zerolog.Logger) bool {
	if b.limiter == nil || b.cfg.RateLimitMessages <= 0 {
		return true
	}
	window := time.Duration(b.cfg.RateLimitWindow) * time.Second
	allowed, err := b.limiter.CheckRateLimit(ctx, fmt.Sprintf("torch:bot:ratelimit:%d", chatID), b.cfg.RateLimitMessages, window)
	if err != nil {
		l.Error().Err(err).Int64("chat_id", chatID).Msg("Rate limit check failed")
		return true
	}
	if !allowed {
		l.Warn().Int64("chat_id", chatID).Msg("Rate limit exceeded")
		if b.metrics != nil {
			b.metrics.RateLimited.Inc()
		}
	}
	return allowed
}

func (b *Bot) handleCommand(msg *tgbotapi.Message, l *zerolog.Logger) {
	command := msg.Command()
	if b.metrics != nil {
		b.metrics.CommandsProcessed.WithLabelValues(command).Inc()
	}

	switch command {
	case "start":
		b.sendMessage(msg.Chat.ID, msgWelcome)
	case "help":
		b.sendMessage(msg.Chat.ID, msgHelp)
	case "tiers":
		b.sendMessage(msg.Chat.ID, FormatTiers(b.catalog))
	default:
		// неизвестные команды отдаем консьержу как обычный текст
		l.Debug().Str("command", command).Msg("unknown command")
		b.sendMessage(msg.Chat.ID, b.concierge.Respond(strings.TrimPrefix(msg.Text, "/")))
	}
}

// FormatTiers renders the plan list in priority order.
func FormatTiers(cat *catalog.Catalog) string {
	var sb strings.Builder
	sb.WriteString("Torch membership plans:\n")
	for _, t := range cat.All() {
		fmt.Fprintf(&sb, "\n%s: $%d/mo (founding $%d), %d hrs/month, up to %d guests, book %d days ahead",
			t.Name, t.MonthlyRate, t.FoundingRate, t.Hours, t.GuestLimit, t.BookingWindow)
	}
	return sb.String()
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tgService.Send(msg); err != nil {
		if b.metrics != nil {
			b.metrics.ErrorsTotal.Inc()
		}
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}
