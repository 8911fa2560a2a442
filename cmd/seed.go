package cmd

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/psds-microservice/intake-bot/internal/config"
	"github.com/psds-microservice/intake-bot/internal/database"
	"github.com/psds-microservice/intake-bot/internal/store"
	"github.com/psds-microservice/intake-bot/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	seedUserID int64
	seedCount  int
)

// seedCmd — команда разработчика: создаёт тестовые заявки со случайными,
// но правдоподобными данными (аналог dev/create_random_ticket в чате).
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create random test tickets for a user",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().Int64Var(&seedUserID, "user", 0, "VK user id that will own the tickets")
	seedCmd.Flags().IntVar(&seedCount, "count", 1, "number of tickets to create")
	_ = seedCmd.MarkFlagRequired("user")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.LogLevel)

	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	tickets := store.NewGormStore(db)

	for i := 0; i < seedCount; i++ {
		t := store.NewTicket(seedUserID, randomFormData(cfg))
		if err := tickets.Create(cmd.Context(), t); err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		log.Info().Str("ticket_id", t.TicketID).Int64("user_id", seedUserID).Msg("seed: ticket created")
	}
	return nil
}

// randomFormData заполняет все поля формы случайными значениями.
func randomFormData(cfg *config.Config) map[string]string {
	names := []string{"Иван", "Петр", "Алексей", "Ольга", "Мария", "Елена", "Андрей"}
	domains := []string{"mail.ru", "gmail.com", "yandex.ru", "example.com"}
	companyPrefixes := []string{"ООО", "АО", "ИП", "ПАО"}
	companyNames := []string{"Техноцентр", "Инфосистемы", "Датацентр", "Прогресс", "Мегасофт"}
	projectTypes := []string{"Сайт", "CRM-система", "Мобильное приложение", "Корпоративный портал"}
	descriptions := []string{
		"Нужен современный адаптивный сайт для нашей компании.",
		"Требуется система учета клиентов с интеграцией с 1С.",
		"Ищем разработчиков для создания мобильного приложения.",
		"Необходимо разработать корпоративный портал с авторизацией.",
	}

	name := names[rand.Intn(len(names))]
	values := []string{
		name,
		fmt.Sprintf("%s%d@%s", strings.ToLower(translitName(name)), rand.Intn(999)+1, domains[rand.Intn(len(domains))]),
		fmt.Sprintf("+7%d", 9000000000+rand.Int63n(1000000000)),
		companyPrefixes[rand.Intn(len(companyPrefixes))] + " " + companyNames[rand.Intn(len(companyNames))],
		projectTypes[rand.Intn(len(projectTypes))],
		descriptions[rand.Intn(len(descriptions))],
		"Тестовая заявка. Автоматически сгенерирована.",
	}

	data := make(map[string]string, len(cfg.Fields))
	for i, f := range cfg.Fields {
		if i < len(values) {
			data[f.Name] = values[i]
		} else {
			data[f.Name] = "-"
		}
	}
	return data
}

// translitName — грубая транслитерация имени для тестового email.
func translitName(name string) string {
	repl := strings.NewReplacer(
		"Иван", "ivan", "Петр", "petr", "Алексей", "aleksei",
		"Ольга", "olga", "Мария", "maria", "Елена", "elena", "Андрей", "andrei",
	)
	return repl.Replace(name)
}
