package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/user/vernacular/internal/delivery"
	"github.com/user/vernacular/internal/gateway"
	"github.com/user/vernacular/internal/identity"
	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/preview"
	"github.com/user/vernacular/internal/render"
	"github.com/user/vernacular/internal/session"
	"github.com/user/vernacular/internal/types"
)

const (
	maxTelegramMessage = 4096
	maxDocumentBytes   = 20 << 20

	helpText = "Commands: /login <email> <password>, /logout, /sources, /drop <name>, /status. " +
		"Send a CSV document to load it, or any text to analyze."
)

// Bot is the subset of *tgbotapi.BotAPI the adapter uses.
type Bot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Gateway is the part of gateway.Gateway the adapter needs.
type Gateway interface {
	Session() (*session.Orchestrator, error)
	Login(ctx context.Context, email, credential string) (*types.Identity, error)
	Logout(ctx context.Context) error
	Mode() identity.Mode
}

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot      Bot
	gateway  Gateway
	previews *preview.Parser
	client   *http.Client
	log      *zap.Logger

	lastChat atomic.Int64
	wg       sync.WaitGroup
}

// New creates a Telegram adapter.
func New(token string, gw Gateway, previews *preview.Parser, logger *zap.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return NewWithBot(bot, gw, previews, logger), nil
}

// NewWithBot creates an adapter over an existing bot client.
func NewWithBot(bot Bot, gw Gateway, previews *preview.Parser, logger *zap.Logger) *Adapter {
	if previews == nil {
		previews = preview.New(preview.DefaultRows, logger)
	}
	return &Adapter{
		bot:      bot,
		gateway:  gw,
		previews: previews,
		client:   &http.Client{Timeout: 60 * time.Second},
		log:      logging.Named(logger, "telegram"),
	}
}

// Start long-polls for updates until ctx is cancelled. Each message is
// handled on its own goroutine so a running analysis does not block
// /status or uploads; Start waits for them before returning.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	defer a.wg.Wait()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.handleMessage(ctx, msg)
			}()
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

// Celebrate sends a celebration notice to the most recently active chat.
// It is registered as a delivery handler.
func (a *Adapter) Celebrate(_ context.Context, n delivery.Notification) error {
	chatID := a.lastChat.Load()
	if chatID == 0 {
		return nil
	}
	a.sendResponse(chatID, fmt.Sprintf("🎉 Strong %s insight (confidence %d%%)\n%s",
		strings.ToLower(string(n.InsightType)), n.Confidence, n.Message))
	return nil
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	a.lastChat.Store(msg.Chat.ID)

	switch {
	case msg.IsCommand():
		a.handleCommand(ctx, msg)
	case msg.Document != nil:
		a.handleDocument(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		a.handleText(ctx, msg)
	}
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "help":
		a.sendResponse(chatID, session.WelcomeMessage+"\n\n"+helpText)

	case "login":
		a.forget(chatID, msg.MessageID)
		email, password, _ := strings.Cut(strings.TrimSpace(msg.CommandArguments()), " ")
		id, err := a.gateway.Login(ctx, email, strings.TrimSpace(password))
		if err != nil {
			a.log.Info("telegram login rejected", zap.Error(err))
			a.sendResponse(chatID, identity.UserMessage(identity.CodeOf(err)))
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("Logged in as %s.", id.DisplayName))

	case "logout":
		if err := a.gateway.Logout(ctx); err != nil {
			a.log.Warn("telegram logout failed", zap.Error(err))
		}
		a.sendResponse(chatID, "Logged out.")

	case "sources":
		sess, ok := a.session(chatID)
		if !ok {
			return
		}
		a.sendResponse(chatID, sourcesText(sess.Snapshot()))

	case "drop":
		sess, ok := a.session(chatID)
		if !ok {
			return
		}
		name := strings.TrimSpace(msg.CommandArguments())
		if !sess.Evict(name) {
			a.sendResponse(chatID, fmt.Sprintf("No source named %q.", name))
			return
		}
		a.sendLast(chatID, sess)

	case "status":
		sess, ok := a.session(chatID)
		if !ok {
			return
		}
		a.sendResponse(chatID, statusText(sess.Snapshot()))

	default:
		a.sendResponse(chatID, "Unknown command. "+helpText)
	}
}

func (a *Adapter) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	sess, ok := a.session(chatID)
	if !ok {
		return
	}

	doc := msg.Document
	if doc.FileSize > maxDocumentBytes {
		a.sendResponse(chatID, "File too large.")
		return
	}
	content, err := a.download(ctx, doc.FileID)
	if err != nil {
		a.log.Error("document download failed", zap.String("file", doc.FileName), zap.Error(err))
		a.sendResponse(chatID, "Could not download the file.")
		return
	}

	name := doc.FileName
	if name == "" {
		name = doc.FileUniqueID + ".csv"
	}
	if err := sess.Ingest(name, content, a.previews.Count(content)); err != nil {
		a.sendResponse(chatID, err.Error())
		return
	}
	a.sendLast(chatID, sess)
}

func (a *Adapter) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	sess, ok := a.session(chatID)
	if !ok {
		return
	}

	if !sess.Submit(ctx, msg.Text) {
		a.sendResponse(chatID, "Still analyzing the previous command. Please wait.")
		return
	}
	a.sendLast(chatID, sess)
}

func (a *Adapter) session(chatID int64) (*session.Orchestrator, bool) {
	sess, err := a.gateway.Session()
	if errors.Is(err, gateway.ErrNoSession) {
		a.sendResponse(chatID, "Please /login <email> <password> first.")
		return nil, false
	}
	if err != nil {
		a.sendResponse(chatID, "Session unavailable.")
		return nil, false
	}
	return sess, true
}

// sendLast sends the newest system transcript entry.
func (a *Adapter) sendLast(chatID int64, sess *session.Orchestrator) {
	if m, ok := sess.LastMessage(); ok && m.Sender == types.SenderSystem {
		a.sendResponse(chatID, formatMessage(m))
	}
}

// forget deletes a message carrying credentials.
func (a *Adapter) forget(chatID int64, messageID int) {
	if _, err := a.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		a.log.Debug("delete login message failed", zap.Error(err))
	}
}

func (a *Adapter) download(ctx context.Context, fileID string) (string, error) {
	url, err := a.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch file: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(body), nil
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				a.log.Error("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
			}
		}
	}
}

// formatMessage renders a transcript entry as Markdown, converting HTML
// narratives and appending chart and table payloads as code blocks.
func formatMessage(m types.TranscriptMessage) string {
	var b strings.Builder
	b.WriteString(narrative(m.Text))

	if points := render.Chart(m.ChartData); len(points) > 0 {
		top := render.MaxValue(points)
		b.WriteString("\n\n```\n")
		for _, p := range points {
			fmt.Fprintf(&b, "%-12s %10.2f %s\n", p.Name, p.Value, render.Bar(p.Value, top, 16))
		}
		b.WriteString("```")
	}
	if headers, rows := render.Table(m.TableData); len(headers) > 0 {
		b.WriteString("\n\n```\n")
		b.WriteString(strings.Join(headers, " | "))
		b.WriteString("\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
		b.WriteString("```")
	}
	return b.String()
}

func narrative(text string) string {
	if !looksLikeHTML(text) {
		return text
	}
	md, err := htmltomarkdown.ConvertString(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(md)
}

func looksLikeHTML(s string) bool {
	i := strings.Index(s, "<")
	return i >= 0 && strings.Contains(s[i:], ">") && strings.Contains(s[i:], "</")
}

func statusText(s session.Snapshot) string {
	return fmt.Sprintf("Status: %s\nData layer: %s\nRecords loaded: %d\nInsight: %s (%d%%)\n%s",
		s.State.Status, s.DataLayer(), s.State.RecordsLoaded,
		s.State.InsightType, s.State.ConfidenceScore, s.State.Message)
}

func sourcesText(s session.Snapshot) string {
	if len(s.Sources) == 0 {
		return preview.EmptyState
	}
	var b strings.Builder
	for _, src := range s.Sources {
		fmt.Fprintf(&b, "%s (%d rows)\n", src.Name, src.RecordCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

// splitMessage cuts text into chunks of at most maxTelegramMessage bytes
// without splitting a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end >= len(text) {
			end = len(text)
		} else {
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
