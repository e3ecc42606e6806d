package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ppiankov/ranger/internal/logging"
	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/model"
	"github.com/ppiankov/ranger/internal/util"
)

const (
	transportTelegram = "telegram"
	maxTelegramText   = 4000
	pollTimeout       = 30
)

const telegramHelp = `I learn facts from the conversation and check them against trusted sources.

/learn <topic> - search the web and remember what I find
/knowledge <query> - tell you what I know
/feedback good|bad [comment] - rate my last answer
/status - what I have learned so far
/improve - apply queued self-improvements`

// BotAPI is the subset of tgbotapi.BotAPI the bot uses
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBot relays Telegram messages to the pipeline and answers its commands
type TelegramBot struct {
	api       BotAPI
	service   Service
	allowFrom map[string]bool
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewTelegramBot connects to the Bot API with the configured token and proxy
func NewTelegramBot(cfg model.TelegramConfig, service Service, logger *zap.Logger, m *metrics.Metrics) (*TelegramBot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	client := util.NewHTTPClient(util.ClientOptions{
		Timeout:    (pollTimeout + 10) * time.Second,
		HTTPProxy:  cfg.Proxy,
		HTTPSProxy: cfg.Proxy,
	})
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logging.OrNop(logger).Info("telegram authorized", zap.String("username", api.Self.UserName))
	return NewTelegramBotWithAPI(api, cfg, service, logger, m), nil
}

// NewTelegramBotWithAPI creates a bot around an existing API client
func NewTelegramBotWithAPI(api BotAPI, cfg model.TelegramConfig, service Service, logger *zap.Logger, m *metrics.Metrics) *TelegramBot {
	allow := make(map[string]bool, len(cfg.AllowFrom))
	for _, id := range cfg.AllowFrom {
		if id = strings.TrimPrefix(strings.TrimSpace(id), "@"); id != "" {
			allow[strings.ToLower(id)] = true
		}
	}
	return &TelegramBot{
		api:       api,
		service:   service,
		allowFrom: allow,
		logger:    logging.OrNop(logger).Named("telegram"),
		metrics:   m,
	}
}

// Run polls for updates until ctx is cancelled
func (t *TelegramBot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	t.logger.Info("polling started")
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				t.handle(ctx, update.Message)
			}
		}
	}
}

// allowed reports whether the sender may talk to the bot; an empty list allows everyone
func (t *TelegramBot) allowed(from *tgbotapi.User) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	if from == nil {
		return false
	}
	return t.allowFrom[strconv.FormatInt(from.ID, 10)] || t.allowFrom[strings.ToLower(from.UserName)]
}

func (t *TelegramBot) handle(ctx context.Context, msg *tgbotapi.Message) {
	if !t.allowed(msg.From) {
		t.logger.Debug("message rejected", zap.Int64("chat", msg.Chat.ID))
		return
	}
	t.metrics.ObserveMessage(transportTelegram)

	if msg.IsCommand() {
		t.reply(msg, t.command(ctx, msg))
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	var userID string
	if msg.From != nil {
		userID = strconv.FormatInt(msg.From.ID, 10)
	}
	out, err := t.service.ProcessMessage(ctx, model.Message{
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		UserID:    userID,
		Content:   msg.Text,
		Timestamp: msg.Time(),
	})
	if err != nil {
		t.logger.Warn("message not processed", zap.Int64("chat", msg.Chat.ID), zap.Error(err))
		return
	}
	if out.Verification != nil && out.Verification.IsVerified {
		t.reply(msg, fmt.Sprintf("✓ Noted and verified: %s", out.Claim.Content))
	}
}

func (t *TelegramBot) command(ctx context.Context, msg *tgbotapi.Message) string {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return telegramHelp

	case "learn":
		if args == "" {
			return "Usage: /learn <topic>"
		}
		rec, err := t.service.Learn(ctx, args)
		if errors.Is(err, model.ErrTransientFetch) {
			return fmt.Sprintf("I couldn't find trusted information about %s.", args)
		}
		if err != nil {
			t.logger.Warn("learn failed", zap.String("topic", args), zap.Error(err))
			return "Learning failed, try again later."
		}
		return fmt.Sprintf("✓ Learned about %s:\n%s", rec.Claim.Topic, rec.Claim.Content)

	case "knowledge", "ask":
		if args == "" {
			return "Usage: /knowledge <query>"
		}
		res, err := t.service.Ask(ctx, args)
		if err != nil {
			t.logger.Warn("lookup failed", zap.String("query", args), zap.Error(err))
			return "Lookup failed, try again later."
		}
		if !res.Found() {
			return fmt.Sprintf("I don't know anything about %s yet. I'll look into it.", args)
		}
		return formatAnswer(res.Answer.Text, res.Record)

	case "feedback":
		positive, comment, ok := parseFeedback(args)
		if !ok {
			return "Usage: /feedback good|bad [comment]"
		}
		userID := ""
		if msg.From != nil {
			userID = strconv.FormatInt(msg.From.ID, 10)
		}
		if err := t.service.Feedback(ctx, userID, positive, comment); err != nil {
			t.logger.Warn("feedback not recorded", zap.Error(err))
			return "Feedback could not be recorded."
		}
		return "Thanks for the feedback."

	case "status":
		report, err := t.service.Status(ctx)
		if err != nil {
			t.logger.Warn("status incomplete", zap.Error(err))
		}
		return formatStatus(report)

	case "improve":
		applied := t.service.Improve()
		if len(applied) == 0 {
			return "No improvements to apply."
		}
		lines := []string{fmt.Sprintf("✓ Applied %d improvements:", len(applied))}
		for _, p := range applied {
			lines = append(lines, "- "+p.Description)
		}
		return strings.Join(lines, "\n")

	default:
		if err := t.service.UnknownCommand(ctx, msg.Command()); err != nil {
			t.logger.Warn("unknown command not recorded", zap.Error(err))
		}
		return fmt.Sprintf("Unknown command /%s. Try /help.", msg.Command())
	}
}

func parseFeedback(args string) (positive bool, comment string, ok bool) {
	verdict, comment, _ := strings.Cut(args, " ")
	switch strings.ToLower(verdict) {
	case "good", "+", "yes", "👍":
		return true, strings.TrimSpace(comment), true
	case "bad", "-", "no", "👎":
		return false, strings.TrimSpace(comment), true
	}
	return false, "", false
}

func formatAnswer(text string, rec *model.KnowledgeRecord) string {
	status := "unverified"
	if rec.Verified {
		status = "verified"
	}
	return fmt.Sprintf("%s\n\n(%s, %s, confidence %.2f)", text, rec.Claim.Topic, status, rec.Claim.Confidence)
}

func formatStatus(r model.StatusReport) string {
	var b strings.Builder
	b.WriteString(r.Headline())
	fmt.Fprintf(&b, "\nVerifications: %d (%d verified)", r.Verification.Total, r.Verification.Verified)
	fmt.Fprintf(&b, "\nLearning events: %d", r.Learning.Total)
	fmt.Fprintf(&b, "\nPending improvements: %d", r.Improvement.Pending)
	fmt.Fprintf(&b, "\nModifications this session: %d/%d", r.Session.Applied, r.Session.MaxPerSession)
	return b.String()
}

func (t *TelegramBot) reply(msg *tgbotapi.Message, text string) {
	for _, chunk := range splitText(text, maxTelegramText) {
		out := tgbotapi.NewMessage(msg.Chat.ID, chunk)
		out.ReplyToMessageID = msg.MessageID
		if _, err := t.api.Send(out); err != nil {
			t.logger.Warn("reply not sent", zap.Int64("chat", msg.Chat.ID), zap.Error(err))
			return
		}
	}
}

// splitText breaks text into chunks of at most n bytes, preferring newline boundaries
func splitText(text string, n int) []string {
	var chunks []string
	for len(text) > n {
		cut := strings.LastIndex(text[:n], "\n")
		if cut <= 0 {
			cut = n
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
