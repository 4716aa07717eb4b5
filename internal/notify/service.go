package notify

import (
	"context"
	"fmt"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scanner_bot/internal/models"
	"scanner_bot/internal/modules/config"
	"scanner_bot/pkg/logger"
)

// Operator — операции сканера, доступные из команд телеграма.
// Setter разрывает цикл сканер↔нотификатор при сборке fx-графа.
type Operator interface {
	SetMode(mode string) (string, error)
	StatusText() string
	AIStatsText() string
	ResetAI() string
	AnalyzeText(ctx context.Context, userSym string) string
}

// Service — телеграм-нотификатор: исходящие сигналы и отчёты плюс
// входящие команды оператора.
type Service struct {
	bot *tgbot.BotAPI
	cfg *config.Config

	mu     sync.RWMutex
	chatID int64
	op     Operator
}

func New(cfg *config.Config) (*Service, error) {
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	return &Service{
		bot:    b,
		cfg:    cfg,
		chatID: cfg.Telegram.ChatID,
	}, nil
}

func (s *Service) SetOperator(op Operator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.op = op
}

func (s *Service) operator() Operator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.op
}

// ChatID — чат оператора: из конфига либо пойманный на /start.
func (s *Service) ChatID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatID
}

func (s *Service) rememberChat(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID != chatID {
		s.chatID = chatID
		logger.Info("telegram chat attached: %d", chatID)
	}
}

func (s *Service) Start(ctx context.Context) error {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := s.bot.GetUpdatesChan(u)
	for update := range updates {
		s.handleUpdate(ctx, update)
	}
	return nil
}

func (s *Service) Stop() {
	s.bot.StopReceivingUpdates()
}

// SendText — произвольное сообщение оператору. Без чата (до первого
// /start) молча пропускается.
func (s *Service) SendText(text string) error {
	chatID := s.ChatID()
	if chatID == 0 {
		logger.Info("telegram: нет чата, жду /start")
		return nil
	}
	msg := tgbot.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	_, err := s.bot.Send(msg)
	return err
}

func (s *Service) SendF(format string, args ...any) error {
	return s.SendText(fmt.Sprintf(format, args...))
}

// SendSignal — карточка подтверждённого сигнала.
func (s *Service) SendSignal(ps *models.PendingSignal) error {
	return s.SendText(formatSignal(ps, s.cfg.Mode))
}
