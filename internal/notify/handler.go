package notify

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scanner_bot/pkg/logger"
)

func (s *Service) handleUpdate(ctx context.Context, update tgbot.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	s.rememberChat(msg.Chat.ID)

	op := s.operator()
	if op == nil {
		_ = s.SendText("⏳ Сканер ещё поднимается, попробуй через минуту")
		return
	}

	switch msg.Command() {
	case "start":
		_ = s.SendText("👋 Сканер на связи. Сигналы пойдут в этот чат.\n\n" +
			"Команды:\n" +
			"/mode aggressive|balanced|conservative — сменить режим\n" +
			"/status — отчёт по производительности\n" +
			"/aistats — состояние AI-модели\n" +
			"/aireset — сброс AI-модели\n" +
			"/analyze SYMBOL — разовый анализ")
	case "mode":
		s.handleMode(msg.CommandArguments(), op)
	case "status":
		_ = s.SendText(op.StatusText())
	case "aistats":
		_ = s.SendText(op.AIStatsText())
	case "aireset":
		_ = s.SendText(op.ResetAI())
	case "analyze":
		s.handleAnalyze(ctx, msg.CommandArguments(), op)
	default:
		// прочее игнорируем
	}
}

func (s *Service) handleMode(args string, op Operator) {
	mode := strings.ToLower(strings.TrimSpace(args))
	if mode == "" {
		_ = s.SendText("Использование: /mode aggressive | balanced | conservative")
		return
	}
	reply, err := op.SetMode(mode)
	if err != nil {
		logger.Error("set mode: %v", err)
		_ = s.SendText("❗ Неизвестный режим. Варианты: aggressive | balanced | conservative")
		return
	}
	_ = s.SendText(reply)
}

func (s *Service) handleAnalyze(ctx context.Context, args string, op Operator) {
	sym := strings.TrimSpace(args)
	if sym == "" {
		_ = s.SendText("Использование: /analyze SYMBOL (например /analyze WIFUSDT)")
		return
	}
	_ = s.SendF("⏳ Анализирую: %s", strings.ToUpper(sym))
	_ = s.SendText(op.AnalyzeText(ctx, sym))
}
