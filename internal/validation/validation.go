package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/psds-microservice/intake-bot/internal/model"
	"github.com/rs/zerolog"
)

const minPhoneDigits = 10

// Engine проверяет ответ пользователя по правилу поля формы.
// Без состояния и побочных эффектов: одно правило + одно значение -> результат.
type Engine struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// Validate возвращает nil, если значение проходит правило, иначе ошибку
// с текстом для пользователя. Пустое значение допустимо только для полей
// без правила. Неизвестное правило считается ошибкой конфигурации:
// логируем и пропускаем ответ, чтобы не блокировать форму всем пользователям.
func (e *Engine) Validate(rule model.Rule, value string) error {
	value = strings.TrimSpace(value)

	if value == "" {
		if rule.Kind == model.RuleNone || rule.Kind == "" {
			return nil
		}
		return errors.New("Поле не может быть пустым.")
	}

	switch rule.Kind {
	case model.RuleNone, "":
		return nil
	case model.RuleMinLength:
		if utf8.RuneCountInString(value) < rule.MinLength {
			return fmt.Errorf("Слишком короткий ответ: нужно не менее %d символов.", rule.MinLength)
		}
		return nil
	case model.RuleRegex:
		if rule.Pattern == nil {
			e.log.Error().Msg("validation: regex rule without compiled pattern, accepting value")
			return nil
		}
		if !rule.Pattern.MatchString(value) {
			return errors.New("Неверный формат. Проверьте ввод и попробуйте снова.")
		}
		return nil
	case model.RulePhone:
		if digitCount(value) < minPhoneDigits {
			return fmt.Errorf("Укажите номер телефона, содержащий не менее %d цифр.", minPhoneDigits)
		}
		return nil
	default:
		e.log.Error().Str("rule", string(rule.Kind)).Msg("validation: unknown rule kind, accepting value")
		return nil
	}
}

// digitCount — количество цифр в строке; остальные символы (+, скобки,
// дефисы, пробелы) игнорируются, чтобы не отбрасывать международные форматы.
func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
