package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"chance-winner-hub/internal/config"
	"chance-winner-hub/internal/models"
)

// TelegramNotifier sends operator alerts to an admin chat. When no chat ID is
// configured, the first chat that sends /start becomes the admin chat.
type TelegramNotifier struct {
	bot         *tgbotapi.BotAPI
	adminChatID atomic.Int64
	pinned      bool
	log         *logrus.Logger

	pending func(ctx context.Context) ([]models.Transaction, error)
}

func NewTelegramNotifier(cfg config.TelegramConfig, log *logrus.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}

	n := &TelegramNotifier{bot: bot, pinned: cfg.AdminChatID != 0, log: log}
	n.adminChatID.Store(cfg.AdminChatID)

	log.WithField("bot", bot.Self.UserName).Info("telegram bot authorised")
	return n, nil
}

// SetPendingSource backs the /pending command.
func (n *TelegramNotifier) SetPendingSource(fn func(ctx context.Context) ([]models.Transaction, error)) {
	n.pending = fn
}

// Listen handles bot commands until ctx is cancelled.
func (n *TelegramNotifier) Listen(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := n.bot.GetUpdatesChan(u)
	defer n.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			n.handleCommand(ctx, update.Message)
		}
	}
}

func (n *TelegramNotifier) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		if n.pinned && chatID != n.adminChatID.Load() {
			return
		}
		if !n.pinned {
			n.adminChatID.Store(chatID)
		}
		n.send(chatID, fmt.Sprintf("Admin chat registered: %d. Withdrawal and deposit alerts will arrive here.", chatID))
		n.log.WithField("chat_id", chatID).Info("telegram admin chat registered")

	case "pending":
		if chatID != n.adminChatID.Load() || n.pending == nil {
			return
		}
		txs, err := n.pending(ctx)
		if err != nil {
			n.send(chatID, "Could not load pending withdrawals.")
			return
		}
		n.send(chatID, formatPending(txs))
	}
}

func formatPending(txs []models.Transaction) string {
	if len(txs) == 0 {
		return "No pending withdrawals."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pending withdrawal(s):\n", len(txs))
	for _, tx := range txs {
		fmt.Fprintf(&b, "%s  %s  %s via %s\n", tx.ID, tx.UserID, tx.Amount.StringFixed(2), tx.Detail("method"))
	}
	return b.String()
}

func (n *TelegramNotifier) NotifyAdmin(text string) {
	chatID := n.adminChatID.Load()
	if chatID == 0 {
		n.log.Warn("telegram admin chat unknown, dropping notification")
		return
	}
	n.send(chatID, text)
}

func (n *TelegramNotifier) send(chatID int64, text string) {
	if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		n.log.WithError(err).Warn("failed to send telegram message")
	}
}
