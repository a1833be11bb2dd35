package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/models"
)

const (
	msgDownloadFailed = "Не удалось загрузить фото. Попробуйте отправить его ещё раз."
	msgNoAccess       = "У вас нет доступа к статистике."
	msgUnavailable    = "Статистика сейчас недоступна."
	msgUnknownCommand = "Неизвестная команда. Список команд: /help"
)

const helpText = `Я помогаю с домашними заданиями.

Как спросить:
• напишите вопрос текстом
• или отправьте фото задания из учебника или тетради

Команды:
/subject - выбрать предмет
/help - эта справка`

const adminText = `Админ-панель

Статистика:
/stats - общая статистика
/stats_today - статистика за сегодня
/stats_week - статистика за неделю

Пользователи:
/top_users - топ активных пользователей

Кеш:
/cache_stats - статистика кеша
/clear_cache - очистить старый кеш

Система:
/health - проверка здоровья бота`

func (b *Bot) command(ctx context.Context, m *tgbotapi.Message) {
	switch m.Command() {
	case "start":
		b.start(ctx, m)
	case "help":
		b.reply(m, helpText)
	case "subject":
		b.subjectCommand(m)
	case "admin", "stats", "stats_today", "stats_week", "top_users", "cache_stats", "clear_cache", "health":
		b.admin(ctx, m)
	default:
		b.reply(m, msgUnknownCommand)
	}
}

func (b *Bot) start(ctx context.Context, m *tgbotapi.Message) {
	if b.stats != nil {
		if err := b.stats.TouchUser(ctx, m.From.ID, m.From.UserName); err != nil {
			b.log.Warn("user registration dropped", zap.Int64("user_id", m.From.ID), zap.Error(err))
		}
	}
	name := m.From.FirstName
	if name == "" {
		name = "друг"
	}
	b.reply(m, fmt.Sprintf("Привет, %s! Я Училка.\n\n%s", name, helpText))
}

func (b *Bot) subjectCommand(m *tgbotapi.Message) {
	code := strings.ToLower(strings.TrimSpace(m.CommandArguments()))
	if code == "" {
		b.reply(m, formatSubjects(b.subject(m.Chat.ID)))
		return
	}
	if _, ok := models.Subjects[code]; !ok {
		b.reply(m, fmt.Sprintf("Не знаю предмет %q.\n\n%s", code, formatSubjects(b.subject(m.Chat.ID))))
		return
	}
	b.setSubject(m.Chat.ID, code)
	b.reply(m, fmt.Sprintf("Предмет: %s. Задавайте вопрос!", models.SubjectName(code)))
}

// admin runs an allow-listed command. Other users get a refusal for /stats
// and silence for the rest.
func (b *Bot) admin(ctx context.Context, m *tgbotapi.Message) {
	cmd := m.Command()
	if !b.cfg.Bot.IsAdmin(m.From.ID) {
		if cmd == "stats" {
			b.reply(m, msgNoAccess)
		}
		return
	}

	text, err := b.adminText(ctx, cmd)
	if err != nil {
		b.log.Warn("admin command failed", zap.String("command", cmd), zap.Error(err))
		text = msgUnavailable
	}
	b.reply(m, text)
}

func (b *Bot) adminText(ctx context.Context, cmd string) (string, error) {
	if cmd == "admin" {
		return adminText, nil
	}
	if cmd == "health" {
		return b.health(ctx), nil
	}

	switch cmd {
	case "cache_stats", "clear_cache":
		if b.cache == nil {
			return "Кеш отключён.", nil
		}
	default:
		if b.stats == nil {
			return msgUnavailable, nil
		}
	}

	switch cmd {
	case "stats":
		o, err := b.stats.Overview(ctx)
		if err != nil {
			return "", err
		}
		subjects, err := b.stats.SubjectStats(ctx)
		if err != nil {
			return "", err
		}
		return formatOverview(o, subjects), nil
	case "stats_today":
		p, err := b.stats.Today(ctx)
		if err != nil {
			return "", err
		}
		return formatToday(p), nil
	case "stats_week":
		p, err := b.stats.Week(ctx)
		if err != nil {
			return "", err
		}
		return formatWeek(p), nil
	case "top_users":
		users, err := b.stats.TopUsers(ctx, 10)
		if err != nil {
			return "", err
		}
		return formatTopUsers(users), nil
	case "cache_stats":
		st, err := b.cache.Stats(ctx)
		if err != nil {
			return "", err
		}
		top, err := b.cache.Top(ctx, 5)
		if err != nil {
			return "", err
		}
		return formatCacheStats(st, top), nil
	case "clear_cache":
		ret := b.cfg.Cache.Retention
		n, err := b.cache.PurgeStale(ctx, ret.MaxAge, ret.MinHits)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Очищен кеш старше %d дней без обращений.\n\nУдалено записей: %d", days(ret.MaxAge), n), nil
	}
	return msgUnknownCommand, nil
}

func (b *Bot) health(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString("Проверка системы\n\n")

	if b.stats != nil {
		if _, err := b.stats.Overview(ctx); err != nil {
			b.log.Warn("health: database check failed", zap.Error(err))
			sb.WriteString("База данных: ОШИБКА\n")
		} else {
			sb.WriteString("База данных: OK\n")
		}
	}
	if b.probe != nil {
		if err := b.probe(ctx); err != nil {
			b.log.Warn("health: completion check failed", zap.Error(err))
			sb.WriteString("Сервис ответов: ОШИБКА\n")
		} else {
			sb.WriteString("Сервис ответов: OK\n")
		}
	}
	fmt.Fprintf(&sb, "\nAPI ключей: %d\n", len(b.cfg.Provider.APIKeys))
	return sb.String()
}
