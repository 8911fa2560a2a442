package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/psds-microservice/intake-bot/internal/model"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	VK struct {
		// Token — токен группы для Bots API; обязателен в режиме api.
		Token string
		// APIBaseURL можно переопределить в тестах и при работе через прокси.
		APIBaseURL string
		APIVersion string
		// CallbackConfirmation — строка, которую ждёт VK при подтверждении
		// callback-сервера; CallbackSecret сверяется на каждом событии.
		CallbackConfirmation string
		CallbackSecret       string
	}

	// NotificationChatID — беседа операторов для уведомлений о заявках.
	// ID бесед VK начинаются с 2000000000.
	NotificationChatID int64
	// AdminIDs — личные ID администраторов для дублирования уведомлений.
	AdminIDs []int64

	NewTicketTemplate     string
	TicketDeletedTemplate string

	WelcomeMessage      string
	FormStartMessage    string
	FormCompleteMessage string
	CancelMessage       string

	Kafka struct {
		Brokers string
		Topic   string
	}

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	// Fields — порядок и правила вопросов формы. Фиксируется при старте
	// процесса; менять на лету нельзя.
	Fields []model.FieldSpec
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:  getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort: firstEnv("APP_PORT", "HTTP_PORT", "8099"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	cfg.VK.Token = getEnv("VK_TOKEN", "")
	cfg.VK.APIBaseURL = getEnv("VK_API_BASE_URL", "https://api.vk.com")
	cfg.VK.APIVersion = getEnv("VK_API_VERSION", "5.199")
	cfg.VK.CallbackConfirmation = getEnv("VK_CALLBACK_CONFIRMATION", "")
	cfg.VK.CallbackSecret = getEnv("VK_CALLBACK_SECRET", "")

	if raw := getEnv("NOTIFICATION_CHAT_ID", ""); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: NOTIFICATION_CHAT_ID is not an integer: %q", raw)
		}
		cfg.NotificationChatID = id
	}
	admins, err := parseIDList(getEnv("ADMIN_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("config: ADMIN_IDS: %w", err)
	}
	cfg.AdminIDs = admins

	cfg.NewTicketTemplate = getEnv("NEW_TICKET_NOTIFICATION_TEMPLATE",
		"🔔 Новая заявка! 🔔\n\nID заявки: {ticket_id}\nОт пользователя: {user_link}\n\n{form_summary}")
	cfg.TicketDeletedTemplate = getEnv("TICKET_DELETED_NOTIFICATION_TEMPLATE",
		"🗑️ Заявка удалена пользователем 🗑️\n\nID заявки: {ticket_id}\nПользователь: {user_link}")

	cfg.WelcomeMessage = getEnv("WELCOME_MESSAGE",
		"Добро пожаловать! Я могу помочь вам создать заявку на заказ сайта или IT-продукта.")
	cfg.FormStartMessage = getEnv("FORM_START_MESSAGE",
		"Отлично! Давайте начнем заполнение формы. Я буду задавать вопросы по одному.")
	cfg.FormCompleteMessage = getEnv("FORM_COMPLETE_MESSAGE",
		"Спасибо! Ваша заявка создана. Мы свяжемся с вами в ближайшее время.")
	cfg.CancelMessage = getEnv("CANCEL_MESSAGE",
		"Заполнение формы отменено. Нажмите \"Заполнить заявку\" в любое время, чтобы начать снова.")

	cfg.Kafka.Brokers = getEnv("KAFKA_BROKERS", "")
	cfg.Kafka.Topic = getEnv("KAFKA_TICKET_TOPIC", "")

	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "intake_bot")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Fields = DefaultFields()
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	return nil
}

// ValidateVK — проверки, нужные только боту (команда migrate обходится без них).
func (c *Config) ValidateVK() error {
	if c.VK.Token == "" {
		return errors.New("config: VK_TOKEN is required, create .env from .env.example")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

// DefaultFields — анкета заявки: семь вопросов в порядке показа.
// Пустое правило означает необязательное поле.
func DefaultFields() []model.FieldSpec {
	return []model.FieldSpec{
		{Name: "Ваше имя", Rule: model.Rule{Kind: model.RuleMinLength, MinLength: 2}},
		{Name: "Электронная почта", Rule: model.Rule{
			Kind:    model.RuleRegex,
			Pattern: regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`),
		}},
		{Name: "Номер телефона", Rule: model.Rule{Kind: model.RulePhone}},
		{Name: "Название компании", Rule: model.Rule{Kind: model.RuleNone}},
		{Name: "Сайт/CRM-система/Мобильное приложение/Другое", Rule: model.Rule{Kind: model.RuleNone}},
		{Name: "Краткое описание", Rule: model.Rule{Kind: model.RuleMinLength, MinLength: 10}},
		{Name: "Дополнительная информация", Rule: model.Rule{Kind: model.RuleNone}},
	}
}

func parseIDList(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("non-integer value %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
