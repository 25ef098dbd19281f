package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"nutricoach/internal/auth"
	"nutricoach/internal/models"
	"nutricoach/pkg/logger"
)

// maxPhotoBytes matches the Telegram Bot API download limit.
const maxPhotoBytes = 20 << 20

type Gateway interface {
	AnalyzeMealImage(ctx context.Context, imageBase64, mimeType string) (*models.NutritionalInfo, error)
	GeneratePersonalizedPlan(ctx context.Context, metrics models.UserMetrics, goal string) (*models.PersonalizedPlan, error)
	GetHistory(ctx context.Context) (models.HistoryData, error)
	ClearHistory(ctx context.Context) error
}

// Sessions is the single active sign-in shared with the HTTP API.
type Sessions interface {
	Login(ctx context.Context, email, password string) (*models.User, error)
	Logout(ctx context.Context) error
	Current() *models.User
}

// botAPI is the part of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type TelegramBot struct {
	bot        botAPI
	gateway    Gateway
	sessions   Sessions
	logger     *logger.Logger
	httpClient *http.Client

	// keyed by Telegram user id
	conversations map[int64]*planConversation
	accounts      map[int64]string
	stateMutex    sync.RWMutex
}

func NewTelegramBot(token string, gw Gateway, sessions Sessions, l *logger.Logger) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	t := newTelegramBot(api, gw, sessions, l)
	t.logger.Infow("Authorized on Telegram", "username", api.Self.UserName)
	return t, nil
}

func newTelegramBot(api botAPI, gw Gateway, sessions Sessions, l *logger.Logger) *TelegramBot {
	if l == nil {
		l = logger.NewNop()
	}
	return &TelegramBot{
		bot:           api,
		gateway:       gw,
		sessions:      sessions,
		logger:        l.Named("telegram"),
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		conversations: make(map[int64]*planConversation),
		accounts:      make(map[int64]string),
	}
}

// Start begins receiving updates from Telegram via polling
func (t *TelegramBot) Start(ctx context.Context) error {
	t.logger.Infow("Removing any existing webhook")
	_, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{
		DropPendingUpdates: true,
	})
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := t.bot.GetUpdatesChan(updateConfig)

	t.logger.Infow("Started receiving Telegram updates")
	go t.handleUpdates(ctx, updates)

	return nil
}

func (t *TelegramBot) handleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		go func(update tgbotapi.Update) {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Errorw("Recovered from panic while processing update", "error", r)
				}
			}()

			t.dispatch(ctx, update.Message)
		}(update)
	}
}

func (t *TelegramBot) dispatch(ctx context.Context, message *tgbotapi.Message) {
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}
	t.logger.Debugw("Received message",
		"chat_id", message.Chat.ID,
		"from", message.From.UserName)

	switch {
	case message.IsCommand():
		t.handleCommand(ctx, message)
	case len(message.Photo) > 0:
		t.handlePhoto(ctx, message)
	default:
		t.handleMessage(ctx, message)
	}
}

// signedIn reports whether the Telegram user is linked to the account that
// currently holds the session.
func (t *TelegramBot) signedIn(userID int64) bool {
	t.stateMutex.RLock()
	email, ok := t.accounts[userID]
	t.stateMutex.RUnlock()
	if !ok {
		return false
	}
	current := t.sessions.Current()
	return current != nil && current.Email == email
}

func (t *TelegramBot) requireSignIn(chatID, userID int64) bool {
	if t.signedIn(userID) {
		return true
	}
	t.send(chatID, reply{Text: "Please sign in first with /login <email> <password>."})
	return false
}

func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID

	switch message.Command() {
	case "start", "help":
		t.send(chatID, reply{Text: "👋 Send me a photo of your meal and I'll estimate its nutrition.\n\n" +
			"/login <email> <password> - sign in\n" +
			"/logout - sign out and clear history\n" +
			"/plan - build a personalized 7-day meal and workout plan\n" +
			"/history - list past analyses and plans\n" +
			"/clear - delete your history\n" +
			"/cancel - stop the current plan questions"})

	case "login":
		t.handleLogin(ctx, message)

	case "logout":
		if t.signedIn(userID) {
			if err := t.sessions.Logout(ctx); err != nil {
				t.logger.Errorw("Failed to log out", "error", err)
				t.send(chatID, reply{Text: "Sorry, I couldn't sign you out. Please try again later."})
				return
			}
		}
		t.stateMutex.Lock()
		delete(t.accounts, userID)
		delete(t.conversations, userID)
		t.stateMutex.Unlock()
		t.send(chatID, reply{Text: "Signed out."})

	case "plan":
		if !t.requireSignIn(chatID, userID) {
			return
		}
		conv, first := newPlanConversation()
		t.stateMutex.Lock()
		t.conversations[userID] = conv
		t.stateMutex.Unlock()
		t.send(chatID, first)

	case "cancel":
		t.stateMutex.Lock()
		delete(t.conversations, userID)
		t.stateMutex.Unlock()
		t.send(chatID, reply{Text: "Cancelled."})

	case "history":
		if !t.requireSignIn(chatID, userID) {
			return
		}
		history, err := t.gateway.GetHistory(ctx)
		if err != nil {
			t.logger.Errorw("Failed to load history", "error", err)
			t.send(chatID, reply{Text: "Sorry, I couldn't load your history. Please try again later."})
			return
		}
		t.send(chatID, reply{Text: formatHistory(history)})

	case "clear":
		if !t.requireSignIn(chatID, userID) {
			return
		}
		if err := t.gateway.ClearHistory(ctx); err != nil {
			t.logger.Errorw("Failed to clear history", "error", err)
			t.send(chatID, reply{Text: "Sorry, I couldn't clear your history. Please try again later."})
			return
		}
		t.send(chatID, reply{Text: "History cleared."})

	default:
		t.send(chatID, reply{Text: "Unknown command. Use /help to see what I can do."})
	}
}

func (t *TelegramBot) handleLogin(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	// the message carries a password
	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, message.MessageID)); err != nil {
		t.logger.Warnw("Failed to delete login message", "error", err, "chat_id", chatID)
	}

	args := strings.Fields(message.CommandArguments())
	if len(args) != 2 {
		t.send(chatID, reply{Text: "Usage: /login <email> <password>"})
		return
	}

	user, err := t.sessions.Login(ctx, args[0], args[1])
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrAccountNotFound):
		t.send(chatID, reply{Text: "No account found with this email."})
		return
	case errors.Is(err, auth.ErrInvalidPassword):
		t.send(chatID, reply{Text: "Incorrect password."})
		return
	case errors.Is(err, auth.ErrMissingFields):
		t.send(chatID, reply{Text: "Usage: /login <email> <password>"})
		return
	default:
		t.logger.Errorw("Login failed", "error", err)
		t.send(chatID, reply{Text: "Sorry, I couldn't sign you in. Please try again later."})
		return
	}

	t.stateMutex.Lock()
	t.accounts[message.From.ID] = user.Email
	t.stateMutex.Unlock()
	t.send(chatID, reply{Text: fmt.Sprintf("Welcome, %s!", user.Name)})
}

// handleMessage feeds plain text into the user's plan conversation.
func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	userID := message.From.ID

	t.stateMutex.Lock()
	conv, exists := t.conversations[userID]
	if !exists {
		t.stateMutex.Unlock()
		t.send(chatID, reply{Text: "Send a meal photo, or use /plan to build a weekly plan."})
		return
	}
	next, done := conv.Advance(message.Text)
	if done {
		delete(t.conversations, userID)
	}
	t.stateMutex.Unlock()

	t.send(chatID, next)
	if !done || !t.requireSignIn(chatID, userID) {
		return
	}

	plan, err := t.gateway.GeneratePersonalizedPlan(ctx, conv.Metrics, conv.Goal)
	if err != nil {
		t.send(chatID, reply{Text: "Sorry, I couldn't generate your plan. Please try /plan again."})
		return
	}
	t.send(chatID, reply{Text: formatPlan(plan)})
}

func (t *TelegramBot) handlePhoto(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	if !t.requireSignIn(chatID, message.From.ID) {
		return
	}

	// the last size is the largest
	photo := message.Photo[len(message.Photo)-1]
	data, mimeType, err := t.download(ctx, photo.FileID)
	if err != nil {
		t.logger.Errorw("Failed to download photo", "error", err, "file_id", photo.FileID)
		t.send(chatID, reply{Text: "Sorry, I couldn't read that photo. Please try again."})
		return
	}

	t.send(chatID, reply{Text: "Analyzing your meal..."})
	info, err := t.gateway.AnalyzeMealImage(ctx, base64.StdEncoding.EncodeToString(data), mimeType)
	if err != nil {
		t.send(chatID, reply{Text: "Sorry, I couldn't analyze that meal. Please try another photo."})
		return
	}
	t.send(chatID, reply{Text: formatNutrition(info)})
}

func (t *TelegramBot) download(ctx context.Context, fileID string) ([]byte, string, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("file download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("unsupported file type %s", mimeType)
	}
	return data, mimeType, nil
}

func (t *TelegramBot) send(chatID int64, r reply) {
	chunks := splitMessage(r.Text, maxMessageLen)
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == len(chunks)-1 {
			msg.ReplyMarkup = keyboard(r.Buttons)
		}
		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Errorw("Failed to send message", "error", err, "chat_id", chatID)
			return
		}
	}
}

func keyboard(rows [][]string) interface{} {
	if len(rows) == 0 {
		return tgbotapi.NewRemoveKeyboard(true)
	}
	buttons := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		r := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			r = append(r, tgbotapi.NewKeyboardButton(label))
		}
		buttons = append(buttons, r)
	}
	kb := tgbotapi.NewReplyKeyboard(buttons...)
	kb.OneTimeKeyboard = true
	return kb
}

// Stop gracefully shuts down the bot
func (t *TelegramBot) Stop(ctx context.Context) error {
	t.bot.StopReceivingUpdates()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}
